package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"commenthub/pkg/models"
)

func backends(t *testing.T) map[string]func() Backend {
	dir := t.TempDir()
	return map[string]func() Backend{
		"file": func() Backend {
			b, err := NewFileBackend(filepath.Join(dir, "file", "session.yaml"))
			require.NoError(t, err)
			return b
		},
		"sqlite": func() Backend {
			b, err := NewSQLiteBackend(context.Background(), filepath.Join(dir, "sqlite", "session.db"))
			require.NoError(t, err)
			return b
		},
		"memory": func() Backend { return NewMemoryBackend() },
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, mk := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := New(mk())
			defer s.Close()

			has, err := s.HasTokens(ctx)
			require.NoError(t, err)
			assert.False(t, has)

			u, err := s.User(ctx)
			require.NoError(t, err)
			assert.Nil(t, u)

			require.NoError(t, s.SetAccessToken(ctx, "a1"))
			has, err = s.HasTokens(ctx)
			require.NoError(t, err)
			assert.False(t, has, "refresh token still missing")

			require.NoError(t, s.SetRefreshToken(ctx, "r1"))
			require.NoError(t, s.SetUser(ctx, &models.User{ID: 42, Username: "alice", Email: "a@example.com"}))

			has, err = s.HasTokens(ctx)
			require.NoError(t, err)
			assert.True(t, has)

			access, err := s.AccessToken(ctx)
			require.NoError(t, err)
			assert.Equal(t, "a1", access)

			u, err = s.User(ctx)
			require.NoError(t, err)
			require.NotNil(t, u)
			assert.Equal(t, int64(42), u.ID)
			assert.Equal(t, "alice", u.Username)

			require.NoError(t, s.Clear(ctx))
			access, _ = s.AccessToken(ctx)
			refresh, _ := s.RefreshToken(ctx)
			u, _ = s.User(ctx)
			assert.Empty(t, access)
			assert.Empty(t, refresh)
			assert.Nil(t, u)

			// clearing an empty store is fine
			require.NoError(t, s.Clear(ctx))
		})
	}
}

func TestFileBackendSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.yaml")

	b, err := NewFileBackend(path)
	require.NoError(t, err)
	require.NoError(t, New(b).SetAccessToken(ctx, "persisted"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	b2, err := NewFileBackend(path)
	require.NoError(t, err)
	got, err := New(b2).AccessToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got)
}

func TestSQLiteBackendSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.db")

	b, err := NewSQLiteBackend(ctx, path)
	require.NoError(t, err)
	require.NoError(t, b.Set(ctx, KeyRefreshToken, "r1"))
	require.NoError(t, b.Set(ctx, KeyRefreshToken, "r2"))
	require.NoError(t, b.Close())

	b2, err := NewSQLiteBackend(ctx, path)
	require.NoError(t, err)
	defer b2.Close()
	v, ok, err := b2.Get(ctx, KeyRefreshToken)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "r2", v)
}

func TestCorruptUserIsReported(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()
	require.NoError(t, b.Set(ctx, KeyUser, "{not json"))
	_, err := New(b).User(ctx)
	assert.Error(t, err)
}

func TestRedisBackend(t *testing.T) {
	ctx := context.Background()
	// This test requires a running Redis instance
	b, err := NewRedisBackend(ctx, RedisOptions{Addr: "localhost:6379", Namespace: "commenthub-test"})
	if err != nil {
		t.Skipf("Skipping test: Redis not available: %v", err)
		return
	}
	defer b.Close()

	s := New(b)
	require.NoError(t, s.Clear(ctx))
	require.NoError(t, s.SetAccessToken(ctx, "a1"))
	require.NoError(t, s.SetRefreshToken(ctx, "r1"))

	has, err := s.HasTokens(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, s.Clear(ctx))
	has, err = s.HasTokens(ctx)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Options{Driver: "etcd"})
	assert.Error(t, err)

	s, err := Open(context.Background(), Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

// failingBackend rejects the next failures writes to failKey
type failingBackend struct {
	*MemoryBackend
	failKey  string
	failures int
}

func (b *failingBackend) Set(ctx context.Context, key, value string) error {
	if key == b.failKey && b.failures > 0 {
		b.failures--
		return errors.New("disk full")
	}
	return b.MemoryBackend.Set(ctx, key, value)
}

func TestSave(t *testing.T) {
	ctx := context.Background()
	old := Record{AccessToken: "a1", RefreshToken: "r1", User: &models.User{ID: 1, Username: "alice"}}
	next := Record{AccessToken: "a2", RefreshToken: "r2", User: &models.User{ID: 2, Username: "bob"}}

	load := func(t *testing.T, s *Store) Record {
		t.Helper()
		var rec Record
		var err error
		rec.AccessToken, err = s.AccessToken(ctx)
		require.NoError(t, err)
		rec.RefreshToken, err = s.RefreshToken(ctx)
		require.NoError(t, err)
		rec.User, err = s.User(ctx)
		require.NoError(t, err)
		return rec
	}

	t.Run("writes every key", func(t *testing.T) {
		s := New(NewMemoryBackend())
		require.NoError(t, s.Save(ctx, old))
		require.NoError(t, s.Save(ctx, next))
		assert.Equal(t, next, load(t, s))
	})

	t.Run("nil user removes the cached profile", func(t *testing.T) {
		s := New(NewMemoryBackend())
		require.NoError(t, s.Save(ctx, old))
		require.NoError(t, s.Save(ctx, Record{AccessToken: "a2", RefreshToken: "r2"}))
		assert.Nil(t, load(t, s).User)
	})

	for _, key := range []string{KeyRefreshToken, KeyUser} {
		t.Run("failed write of "+key+" restores the previous record", func(t *testing.T) {
			b := &failingBackend{MemoryBackend: NewMemoryBackend()}
			s := New(b)
			require.NoError(t, s.Save(ctx, old))

			b.failKey, b.failures = key, 1
			assert.Error(t, s.Save(ctx, next))
			assert.Equal(t, old, load(t, s))
		})
	}

	t.Run("failed restore clears the store", func(t *testing.T) {
		b := &failingBackend{MemoryBackend: NewMemoryBackend()}
		s := New(b)
		require.NoError(t, s.Save(ctx, old))

		b.failKey, b.failures = KeyRefreshToken, 2
		assert.Error(t, s.Save(ctx, next))
		assert.Equal(t, Record{}, load(t, s))
	})

	t.Run("failed write on an empty store leaves it empty", func(t *testing.T) {
		b := &failingBackend{MemoryBackend: NewMemoryBackend(), failKey: KeyUser, failures: 1}
		s := New(b)
		assert.Error(t, s.Save(ctx, next))
		assert.Equal(t, Record{}, load(t, s))
	})
}
