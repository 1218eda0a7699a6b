package users

import (
	"context"
	"sync"
)

// MemoryStore はプロセス内に保持するユーザーストアです。再起動すると内容は失われます。
type MemoryStore struct {
	lock    sync.RWMutex
	byLogin map[string]*User
	byID    map[string]*User
}

// NewMemoryStore は空の MemoryStore を作成します。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byLogin: make(map[string]*User),
		byID:    make(map[string]*User),
	}
}

// FindByLoginName はログイン名でユーザーを検索します。
func (s *MemoryStore) FindByLoginName(ctx context.Context, loginName string) (*User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	user, ok := s.byLogin[loginName]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}

// FindByID はIDでユーザーを検索します。
func (s *MemoryStore) FindByID(ctx context.Context, id string) (*User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *user
	return &clone, nil
}

// Create はユーザーを登録します。ログイン名が既にあれば ErrDuplicateAccount を返します。
func (s *MemoryStore) Create(ctx context.Context, loginName, displayName, passwordHash string) (*User, error) {
	if err := validateNew(loginName, passwordHash); err != nil {
		return nil, err
	}

	s.lock.Lock()
	defer s.lock.Unlock()

	if _, exists := s.byLogin[loginName]; exists {
		return nil, ErrDuplicateAccount
	}

	user := newUser(loginName, displayName, passwordHash)
	s.byLogin[loginName] = user
	s.byID[user.ID] = user

	clone := *user
	return &clone, nil
}
