// Package password は bcrypt によるパスワードのハッシュ化と検証を提供します。
package password

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// bcrypt が扱える最大長（バイト）
const MaxLength = 72

var (
	// ErrEmptyPassword は空のパスワードをハッシュ化しようとした場合のエラーです。
	ErrEmptyPassword = errors.New("password: empty password")
	// ErrTooLong は MaxLength を超えるパスワードのエラーです。
	ErrTooLong = errors.New("password: longer than 72 bytes")
)

// Hasher はパスワードのハッシュ化と照合を行います。
type Hasher struct {
	cost      int
	dummyHash []byte
}

// NewHasher は指定コストの Hasher を作成します。範囲外のコストは bcrypt.DefaultCost になります。
// 存在しないユーザーの照合に使うダミーハッシュもここで作ります。
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	dummy, err := bcrypt.GenerateFromPassword([]byte("session-gate/dummy"), cost)
	if err != nil {
		// cost は範囲内に揃えてあるので、失敗するのは乱数源が壊れている場合だけ
		panic(fmt.Sprintf("password: generate dummy hash: %v", err))
	}
	return &Hasher{cost: cost, dummyHash: dummy}
}

// Hash は平文パスワードをソルト付きでハッシュ化します。
func (h *Hasher) Hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPassword
	}
	if len(plaintext) > MaxLength {
		return "", ErrTooLong
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", fmt.Errorf("password: hash failed: %w", err)
	}
	return string(hashed), nil
}

// Verify は平文がハッシュと一致するかを返します。壊れたハッシュと MaxLength を超える平文は不一致です。
func (h *Hasher) Verify(plaintext, hash string) bool {
	if hash == "" || len(plaintext) > MaxLength {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// VerifyDummy は存在しないユーザーに対しても同じコストの照合を行い、常に false を返します。
func (h *Hasher) VerifyDummy(plaintext string) bool {
	_ = bcrypt.CompareHashAndPassword(h.dummyHash, []byte(plaintext))
	return false
}
