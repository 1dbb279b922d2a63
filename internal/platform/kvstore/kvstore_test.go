package kvstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseStore runs the behaviour every Store implementation must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.False(t, ok, "empty store should not report a value")

	require.NoError(t, s.Set(ctx, "access_token", "tok-1"))
	require.NoError(t, s.Set(ctx, "user", `{"id":"u1"}`))

	v, ok, err := s.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-1", v)

	require.NoError(t, s.Set(ctx, "access_token", "tok-2"))
	v, _, err = s.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.Equal(t, "tok-2", v)

	require.NoError(t, s.Delete(ctx, "access_token", "user", "missing"))
	_, ok, err = s.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = s.Get(ctx, "user")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(ctx, "access_token"))
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestMemoryStore_Closed(t *testing.T) {
	s := NewMemoryStore()
	require.NoError(t, s.Close())
	_, _, err := s.Get(context.Background(), "k")
	assert.True(t, errors.Is(err, ErrClosed))
	assert.True(t, errors.Is(s.Set(context.Background(), "k", "v"), ErrClosed))
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	s, err := NewFileStore(path)
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestFileStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	s1, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "access_token", "persisted"))
	require.NoError(t, s1.Close())

	s2, err := NewFileStore(path)
	require.NoError(t, err)
	v, ok, err := s2.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", v)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	s, err := NewFileStore(path)
	require.NoError(t, err)
	_, _, err = s.Get(context.Background(), "access_token")
	assert.Error(t, err)
}

func TestFileStore_RequiresPath(t *testing.T) {
	_, err := NewFileStore("")
	assert.Error(t, err)
}

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, NewRedisStore(client, "octscan:test:")
}

func TestRedisStore(t *testing.T) {
	_, s := setupTestRedis(t)
	exerciseStore(t, s)
}

func TestRedisStore_UsesPrefix(t *testing.T) {
	mr, s := setupTestRedis(t)
	require.NoError(t, s.Set(context.Background(), "access_token", "tok"))

	v, err := mr.Get("octscan:test:access_token")
	require.NoError(t, err)
	assert.Equal(t, "tok", v)
	assert.False(t, mr.Exists("access_token"))
}

func TestOpenRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	s, err := OpenRedisStore(context.Background(), "redis://"+mr.Addr()+"/0", "p:")
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Set(context.Background(), "k", "v"))
	assert.True(t, mr.Exists("p:k"))
}

func TestOpenRedisStore_BadURL(t *testing.T) {
	_, err := OpenRedisStore(context.Background(), "not-a-url://", "p:")
	assert.Error(t, err)
}
