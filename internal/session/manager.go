// Package session はリクエストに紐づくセッションの認証状態を管理します。
package session

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/session-gate/internal/logutil"
)

const (
	// CookieName はセッションクッキーの名前です。
	CookieName = "sg_session"

	sessionKeyUser       = "auth_user"
	sessionKeyIssuedAt   = "issued_at"
	sessionKeyLastActive = "last_activity"
)

// ContextUserIDKey は RequireLogin 通過後のユーザーIDを gin.Context に置くキーです。
const ContextUserIDKey = "session.user_id"

// ErrSave はセッションの保存に失敗した場合のエラーです。
var ErrSave = errors.New("session: save failed")

// Manager はセッションの状態遷移（未認証 → 認証済み）と有効期限を扱います。
type Manager struct {
	maxLifetime time.Duration
	idleTimeout time.Duration
	now         func() time.Time
}

// NewManager は Manager を作成します。idleTimeout が 0 の場合は無操作での失効を行いません。
func NewManager(maxLifetime, idleTimeout time.Duration) *Manager {
	return &Manager{
		maxLifetime: maxLifetime,
		idleTimeout: idleTimeout,
		now:         time.Now,
	}
}

// Establish は初回アクセス時にセッションを開始し、期限切れの認証を解除するミドルウェアです。
func (m *Manager) Establish() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		now := m.now()

		issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
		switch {
		case issuedAt.IsZero():
			// 初回アクセス: 未認証のままクッキーだけ発行する
			session.Set(sessionKeyIssuedAt, now.Unix())
			session.Set(sessionKeyLastActive, now.Unix())
			if err := session.Save(); err != nil {
				logger := logutil.GetOrDefault(c.Request.Context())
				logger.Warn().Err(err).Msg("failed to start session")
			}
		case m.userID(session) != "":
			if m.expired(session, now) {
				session.Delete(sessionKeyUser)
				session.Set(sessionKeyIssuedAt, now.Unix())
				session.AddFlash("セッションの有効期限が切れました。再度ログインしてください。")
			}
			session.Set(sessionKeyLastActive, now.Unix())
			if err := session.Save(); err != nil {
				logger := logutil.GetOrDefault(c.Request.Context())
				logger.Warn().Err(err).Msg("failed to refresh session")
			}
		}

		c.Next()
	}
}

// Authenticate はセッションをユーザーに紐づけます。既に認証済みの場合は上書きします。
func (m *Manager) Authenticate(c *gin.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: empty user id", ErrSave)
	}
	session := sessions.Default(c)
	now := m.now()
	session.Set(sessionKeyUser, userID)
	session.Set(sessionKeyIssuedAt, now.Unix())
	session.Set(sessionKeyLastActive, now.Unix())
	if err := session.Save(); err != nil {
		return fmt.Errorf("%w: %v", ErrSave, err)
	}
	return nil
}

// IsAuthenticated はセッションが認証済みかを返します。
func (m *Manager) IsAuthenticated(c *gin.Context) bool {
	_, ok := m.CurrentUserID(c)
	return ok
}

// CurrentUserID は認証済みセッションのユーザーIDを返します。
func (m *Manager) CurrentUserID(c *gin.Context) (string, bool) {
	session := sessions.Default(c)
	id := m.userID(session)
	if id == "" || m.expired(session, m.now()) {
		return "", false
	}
	return id, true
}

// Clear はセッションの認証を解除します（ログアウト）。
func (m *Manager) Clear(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionKeyIssuedAt, m.now().Unix())
	if err := session.Save(); err != nil {
		return fmt.Errorf("%w: %v", ErrSave, err)
	}
	return nil
}

// AddFlash は次のページ表示で一度だけ出すメッセージを積みます。
func (m *Manager) AddFlash(c *gin.Context, message string) error {
	session := sessions.Default(c)
	session.AddFlash(message)
	if err := session.Save(); err != nil {
		return fmt.Errorf("%w: %v", ErrSave, err)
	}
	return nil
}

// Flashes は積まれたメッセージを取り出します。取り出したメッセージは消えます。
func (m *Manager) Flashes(c *gin.Context) []string {
	session := sessions.Default(c)
	raw := session.Flashes()
	if len(raw) == 0 {
		return nil
	}
	if err := session.Save(); err != nil {
		logger := logutil.GetOrDefault(c.Request.Context())
		logger.Warn().Err(err).Msg("failed to consume flash messages")
	}

	messages := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			messages = append(messages, s)
		}
	}
	return messages
}

// RequireLogin は未認証のリクエストを redirectTo へリダイレクトするミドルウェアです。
func (m *Manager) RequireLogin(redirectTo string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := m.CurrentUserID(c)
		if !ok {
			c.Redirect(http.StatusFound, redirectTo)
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, userID)
		c.Next()
	}
}

func (m *Manager) userID(session sessions.Session) string {
	id, _ := session.Get(sessionKeyUser).(string)
	return id
}

func (m *Manager) expired(session sessions.Session, now time.Time) bool {
	issuedAt := readUnix(session.Get(sessionKeyIssuedAt))
	if issuedAt.IsZero() || now.Sub(issuedAt) > m.maxLifetime {
		return true
	}
	if m.idleTimeout > 0 {
		lastActive := readUnix(session.Get(sessionKeyLastActive))
		if lastActive.IsZero() || now.Sub(lastActive) > m.idleTimeout {
			return true
		}
	}
	return false
}

func readUnix(v interface{}) time.Time {
	switch t := v.(type) {
	case int64:
		return time.Unix(t, 0)
	case int:
		return time.Unix(int64(t), 0)
	case float64:
		return time.Unix(int64(t), 0)
	default:
		return time.Time{}
	}
}
