package session

import (
	"crypto/rand"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"

	"github.com/yourusername/session-gate/internal/config"
)

// StoreOptions はセッションストア作成時の設定です。
type StoreOptions struct {
	Kind   string // config.SessionStoreMemory または config.SessionStoreCookie
	Secret []byte
	MaxAge time.Duration
	Secure bool

	// IdleTimeout が MaxAge より短ければ memory のセッションはその時間で破棄されます。
	IdleTimeout time.Duration
}

// NewStore はセッションストアを作成します。
// memory はサーバー側にセッションを保持し、cookie は署名付きクッキーに保持します。
func NewStore(opts StoreOptions) (sessions.Store, error) {
	if len(opts.Secret) == 0 {
		return nil, fmt.Errorf("session: secret is required")
	}

	var store sessions.Store
	switch opts.Kind {
	case config.SessionStoreMemory, "":
		memory, err := newMemoryStore(opts.evictionWindow(), opts.Secret)
		if err != nil {
			return nil, fmt.Errorf("session: create memory store: %w", err)
		}
		store = memory
	case config.SessionStoreCookie:
		store = cookie.NewStore(opts.Secret)
	default:
		return nil, fmt.Errorf("session: unknown store %q", opts.Kind)
	}

	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(opts.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   opts.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return store, nil
}

func (o StoreOptions) evictionWindow() time.Duration {
	window := o.MaxAge
	if o.IdleTimeout > 0 && (window <= 0 || o.IdleTimeout < window) {
		window = o.IdleTimeout
	}
	if window < time.Second {
		window = time.Second
	}
	return window
}

// RandomSecret は開発用の署名鍵を生成します。再起動するとセッションは無効になります。
func RandomSecret() ([]byte, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
