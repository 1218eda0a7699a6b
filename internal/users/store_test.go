package users

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories はテスト可能なバックエンドを列挙します。
func storeFactories(t *testing.T) map[string]func(t *testing.T) Store {
	factories := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemoryStore()
		},
		"sqlite": func(t *testing.T) Store {
			store, err := OpenSQLite(filepath.Join(t.TempDir(), "users.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = store.Close() })
			return store
		},
	}

	if url := os.Getenv("TEST_REDIS_URL"); url != "" {
		factories["redis"] = func(t *testing.T) Store {
			opt, err := redis.ParseURL(url)
			require.NoError(t, err)
			rdb := redis.NewClient(opt)
			require.NoError(t, rdb.FlushDB(context.Background()).Err())
			t.Cleanup(func() { _ = rdb.Close() })
			return NewRedisStore(rdb)
		}
	}
	return factories
}

func TestStoreCreateAndFind(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			created, err := store.Create(ctx, "bob", "Bob", "hash-1")
			require.NoError(t, err)
			assert.NotEmpty(t, created.ID)
			assert.Equal(t, "Bob", created.Name)

			byLogin, err := store.FindByLoginName(ctx, "bob")
			require.NoError(t, err)
			assert.Equal(t, created.ID, byLogin.ID)
			assert.Equal(t, "hash-1", byLogin.PasswordHash)

			byID, err := store.FindByID(ctx, created.ID)
			require.NoError(t, err)
			assert.Equal(t, "bob", byID.LoginName)
		})
	}
}

func TestStoreNotFound(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			_, err := store.FindByLoginName(ctx, "nobody")
			assert.ErrorIs(t, err, ErrNotFound)

			_, err = store.FindByID(ctx, "missing-id")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStoreRejectsDuplicateLoginName(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			first, err := store.Create(ctx, "alice", "Alice", "original-hash")
			require.NoError(t, err)

			_, err = store.Create(ctx, "alice", "Impostor", "other-hash")
			assert.ErrorIs(t, err, ErrDuplicateAccount)

			stored, err := store.FindByLoginName(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, first.ID, stored.ID)
			assert.Equal(t, "original-hash", stored.PasswordHash)
			assert.Equal(t, "Alice", stored.Name)
		})
	}
}

func TestStoreRejectsInvalidInput(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			_, err := store.Create(ctx, "  ", "Blank", "hash")
			assert.Error(t, err)
			_, err = store.Create(ctx, "carol", "Carol", "")
			assert.Error(t, err)
		})
	}
}

func TestMemoryStoreConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const workers = 16
	var (
		wg      sync.WaitGroup
		lock    sync.Mutex
		success int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Create(ctx, "race", "Race", "hash"); err == nil {
				lock.Lock()
				success++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, success)
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	created, err := store.Create(ctx, "dave", "Dave", "hash")
	require.NoError(t, err)
	created.PasswordHash = "tampered"

	stored, err := store.FindByLoginName(ctx, "dave")
	require.NoError(t, err)
	assert.Equal(t, "hash", stored.PasswordHash)
}

// failIDIndex は user:id: への書き込みを含むコマンドを失敗させるフックです。
type failIDIndex struct{}

func (failIDIndex) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (failIDIndex) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if writesIDIndex(cmd) {
			return errors.New("injected id index failure")
		}
		return next(ctx, cmd)
	}
}

func (failIDIndex) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		for _, cmd := range cmds {
			if writesIDIndex(cmd) {
				return errors.New("injected id index failure")
			}
		}
		return next(ctx, cmds)
	}
}

func writesIDIndex(cmd redis.Cmder) bool {
	args := cmd.Args()
	if len(args) < 2 || cmd.Name() != "set" {
		return false
	}
	return strings.HasPrefix(fmt.Sprint(args[1]), idKeyPrefix)
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL is not set")
	}
	opt, err := redis.ParseURL(url)
	require.NoError(t, err)
	rdb := redis.NewClient(opt)
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRedisStoreCreateLeavesNothingOnIndexFailure(t *testing.T) {
	rdb := redisClient(t)
	ctx := context.Background()

	failing := redis.NewClient(rdb.Options())
	failing.AddHook(failIDIndex{})
	t.Cleanup(func() { _ = failing.Close() })

	_, err := NewRedisStore(failing).Create(ctx, "erin", "Erin", "hash")
	require.Error(t, err)

	store := NewRedisStore(rdb)
	_, err = store.FindByLoginName(ctx, "erin")
	assert.ErrorIs(t, err, ErrNotFound)

	// 失敗後も同じログイン名で登録できる
	created, err := store.Create(ctx, "erin", "Erin", "hash")
	require.NoError(t, err)
	byID, err := store.FindByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "erin", byID.LoginName)
}

func TestRedisStoreConcurrentCreate(t *testing.T) {
	store := NewRedisStore(redisClient(t))
	ctx := context.Background()

	const workers = 16
	var (
		wg      sync.WaitGroup
		lock    sync.Mutex
		winners []*User
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, err := store.Create(ctx, "race", "Race", "hash")
			if err != nil {
				assert.ErrorIs(t, err, ErrDuplicateAccount)
				return
			}
			lock.Lock()
			winners = append(winners, user)
			lock.Unlock()
		}()
	}
	wg.Wait()

	require.Len(t, winners, 1)
	byID, err := store.FindByID(ctx, winners[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "race", byID.LoginName)
}
