package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/session-gate/internal/password"
	"github.com/yourusername/session-gate/internal/users"
)

type brokenStore struct {
	users.Store
	err error
}

func (b *brokenStore) FindByLoginName(ctx context.Context, loginName string) (*users.User, error) {
	return nil, b.err
}

func newTestService() (*Service, *users.MemoryStore) {
	store := users.NewMemoryStore()
	return NewService(store, password.NewHasher(bcrypt.MinCost)), store
}

func TestRegisterThenAuthenticate(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	created, err := svc.Register(ctx, "alice", "Alice", "s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", created.PasswordHash)

	user, err := svc.Authenticate(ctx, "alice", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, created.ID, user.ID)

	byID, err := svc.UserByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", byID.Name)
}

func TestAuthenticateFailuresCollapse(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()
	_, err := svc.Register(ctx, "alice", "Alice", "s3cret")
	require.NoError(t, err)

	_, wrongPassword := svc.Authenticate(ctx, "alice", "wrong")
	_, unknownUser := svc.Authenticate(ctx, "mallory", "s3cret")

	assert.ErrorIs(t, wrongPassword, ErrInvalidCredentials)
	assert.ErrorIs(t, unknownUser, ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownUser.Error())
}

func TestRegisterDuplicateKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService()

	first, err := svc.Register(ctx, "alice", "Alice", "first-password")
	require.NoError(t, err)

	_, err = svc.Register(ctx, "alice", "Alice 2", "second-password")
	assert.ErrorIs(t, err, users.ErrDuplicateAccount)

	stored, err := store.FindByLoginName(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, first.PasswordHash, stored.PasswordHash)

	_, err = svc.Authenticate(ctx, "alice", "first-password")
	assert.NoError(t, err)
	_, err = svc.Authenticate(ctx, "alice", "second-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestStoreErrorsAreNotInvalidCredentials(t *testing.T) {
	ctx := context.Background()
	storeErr := errors.New("connection refused")
	svc := NewService(&brokenStore{err: storeErr}, password.NewHasher(bcrypt.MinCost))

	_, err := svc.Authenticate(ctx, "alice", "pw")
	assert.ErrorIs(t, err, storeErr)
	assert.NotErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Register(ctx, "alice", "Alice", "pw")
	assert.ErrorIs(t, err, storeErr)
}
