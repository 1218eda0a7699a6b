// Package users は登録ユーザーの保存と検索を提供します。
package users

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound は該当ユーザーが存在しない場合に返されます。
	ErrNotFound = errors.New("users: user not found")
	// ErrDuplicateAccount はログイン名が既に登録済みの場合に返されます。
	ErrDuplicateAccount = errors.New("users: login name already exists")
)

// User は登録済みユーザーを表します。
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	LoginName    string    `json:"loginName"`
	PasswordHash string    `json:"passwordHash"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Store はユーザーの保存先が実装するインターフェースです。
type Store interface {
	FindByLoginName(ctx context.Context, loginName string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, loginName, displayName, passwordHash string) (*User, error)
}

func newUser(loginName, displayName, passwordHash string) *User {
	return &User{
		ID:           uuid.NewString(),
		Name:         displayName,
		LoginName:    loginName,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
}

func validateNew(loginName, passwordHash string) error {
	if strings.TrimSpace(loginName) == "" {
		return errors.New("users: login name is required")
	}
	if passwordHash == "" {
		return errors.New("users: password hash is required")
	}
	return nil
}
