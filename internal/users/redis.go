package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const (
	loginKeyPrefix = "user:login:"
	idKeyPrefix    = "user:id:"
)

// RedisStore はユーザー情報を Redis に保存します。
// ログイン名のキーにレコード本体、IDのキーにログイン名を置きます。
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore は RedisStore を作成します。
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// FindByLoginName はログイン名でユーザーを検索します。
func (s *RedisStore) FindByLoginName(ctx context.Context, loginName string) (*User, error) {
	data, err := s.rdb.Get(ctx, loginKey(loginName)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: redis get: %w", err)
	}
	var user User
	if err := json.Unmarshal(data, &user); err != nil {
		return nil, fmt.Errorf("users: decode user: %w", err)
	}
	return &user, nil
}

// FindByID はIDでユーザーを検索します。
func (s *RedisStore) FindByID(ctx context.Context, id string) (*User, error) {
	loginName, err := s.rdb.Get(ctx, idKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("users: redis get: %w", err)
	}
	return s.FindByLoginName(ctx, loginName)
}

// Create はユーザーを登録します。
// ログイン名のキーを WATCH し、レコードとIDの索引を同じ MULTI/EXEC で書き込みます。
func (s *RedisStore) Create(ctx context.Context, loginName, displayName, passwordHash string) (*User, error) {
	if err := validateNew(loginName, passwordHash); err != nil {
		return nil, err
	}

	user := newUser(loginName, displayName, passwordHash)
	payload, err := json.Marshal(user)
	if err != nil {
		return nil, err
	}

	key := loginKey(loginName)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("users: redis exists: %w", err)
		}
		if exists > 0 {
			return ErrDuplicateAccount
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			pipe.Set(ctx, idKey(user.ID), loginName, 0)
			return nil
		})
		return err
	}, key)
	switch {
	case err == nil:
		return user, nil
	case errors.Is(err, ErrDuplicateAccount), errors.Is(err, redis.TxFailedErr):
		// WATCH 中に同じログイン名が書き込まれた場合も重複として扱う
		return nil, ErrDuplicateAccount
	default:
		return nil, fmt.Errorf("users: redis create: %w", err)
	}
}

func loginKey(loginName string) string {
	return loginKeyPrefix + loginName
}

func idKey(id string) string {
	return idKeyPrefix + id
}
