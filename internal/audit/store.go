package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	eventKeyPrefix = "audit:"

	// ログイン名ごとに保持する件数
	maxEventsPerLogin = 100
)

// Store は認証イベントをログイン名ごとのリストとして Redis に保存します。
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore は Store を作成します。
func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{
		rdb: rdb,
		ttl: ttl,
	}
}

// Append はイベントを先頭に追加し、古いものを切り詰めます。
func (s *Store) Append(ctx context.Context, event *Event) error {
	if event == nil {
		return fmt.Errorf("event is nil")
	}
	if event.LoginName == "" {
		return fmt.Errorf("event.LoginName is required")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	key := eventKey(event.LoginName)
	tx := s.rdb.TxPipeline()
	tx.LPush(ctx, key, payload)
	tx.LTrim(ctx, key, 0, maxEventsPerLogin-1)
	if s.ttl > 0 {
		tx.Expire(ctx, key, s.ttl)
	}
	_, err = tx.Exec(ctx)
	return err
}

// List は新しい順に最大 limit 件のイベントを返します。
func (s *Store) List(ctx context.Context, loginName string, limit int) ([]Event, error) {
	if loginName == "" {
		return nil, fmt.Errorf("loginName is required")
	}
	if limit <= 0 || limit > maxEventsPerLogin {
		limit = maxEventsPerLogin
	}

	raw, err := s.rdb.LRange(ctx, eventKey(loginName), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(raw))
	for _, item := range raw {
		var event Event
		if err := json.Unmarshal([]byte(item), &event); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}

func eventKey(loginName string) string {
	return eventKeyPrefix + loginName
}
