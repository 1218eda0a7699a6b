// Package audit は認証イベントを非同期に記録します。
package audit

import "time"

// Kind は認証イベントの種類です。
type Kind string

const (
	KindSignup         Kind = "signup"
	KindLoginSucceeded Kind = "login_succeeded"
	KindLoginFailed    Kind = "login_failed"
	KindLogout         Kind = "logout"
)

// Event は1件の認証イベントです。パスワードは含めません。
type Event struct {
	Kind       Kind      `json:"kind"`
	LoginName  string    `json:"loginName"`
	UserID     string    `json:"userId,omitempty"`
	ClientIP   string    `json:"clientIp,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}
