// Package auth はサインアップ・ログイン・ログアウトと保護ページの制御を提供します。
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/yourusername/session-gate/internal/password"
	"github.com/yourusername/session-gate/internal/users"
)

var (
	// ErrInvalidCredentials はログイン名が無い場合とパスワード不一致の両方を表します。
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrSessionBinding はユーザー作成後にセッションへ紐づけられなかった場合のエラーです。
	ErrSessionBinding = errors.New("auth: session binding failed")
)

// Service は資格情報の検証とユーザー登録を行います。
type Service struct {
	store  users.Store
	hasher *password.Hasher
}

// NewService は Service を作成します。
func NewService(store users.Store, hasher *password.Hasher) *Service {
	return &Service{
		store:  store,
		hasher: hasher,
	}
}

// Authenticate はログイン名とパスワードを検証し、一致したユーザーを返します。
// ログイン名が存在しない場合も bcrypt の照合を1回行い、応答時間で存在が分からないようにします。
func (s *Service) Authenticate(ctx context.Context, loginName, plaintext string) (*users.User, error) {
	user, err := s.store.FindByLoginName(ctx, loginName)
	if err != nil {
		if errors.Is(err, users.ErrNotFound) {
			s.hasher.VerifyDummy(plaintext)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	if !s.hasher.Verify(plaintext, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Register は新しいユーザーを登録します。ログイン名が既にあれば users.ErrDuplicateAccount を返します。
func (s *Service) Register(ctx context.Context, loginName, displayName, plaintext string) (*users.User, error) {
	_, err := s.store.FindByLoginName(ctx, loginName)
	switch {
	case err == nil:
		return nil, users.ErrDuplicateAccount
	case !errors.Is(err, users.ErrNotFound):
		return nil, fmt.Errorf("find user: %w", err)
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	// 同時登録はストア側の一意制約で弾かれる
	user, err := s.store.Create(ctx, loginName, displayName, hash)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UserByID はセッションに保存されたIDからユーザーを取得します。
func (s *Service) UserByID(ctx context.Context, id string) (*users.User, error) {
	return s.store.FindByID(ctx, id)
}
