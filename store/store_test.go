package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oriumgames/persist"
	"github.com/oriumgames/persist/store"
)

// conformance exercises the persist.Store contract against s.
func conformance(t *testing.T, s persist.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing blob reports not found", func(t *testing.T) {
		_, err := s.Read(ctx, "slot_missing")
		require.Error(t, err)
		assert.True(t, errors.Is(err, persist.ErrBlobNotFound))
		assert.True(t, errors.Is(err, store.ErrNotFound))
	})

	t.Run("write then read returns the same bytes", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, "slot_a", []byte(`{"v":1}`)))
		got, err := s.Read(ctx, "slot_a")
		require.NoError(t, err)
		assert.Equal(t, []byte(`{"v":1}`), got)
	})

	t.Run("write overwrites", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, "slot_a", []byte("second")))
		got, err := s.Read(ctx, "slot_a")
		require.NoError(t, err)
		assert.Equal(t, []byte("second"), got)
	})

	t.Run("list filters by prefix and sorts", func(t *testing.T) {
		require.NoError(t, s.Write(ctx, "slot_c", []byte("c")))
		require.NoError(t, s.Write(ctx, "slot_b", []byte("b")))
		require.NoError(t, s.Write(ctx, "other", []byte("x")))

		names, err := s.List(ctx, "slot_")
		require.NoError(t, err)
		assert.Equal(t, []string{"slot_a", "slot_b", "slot_c"}, names)
	})

	t.Run("delete removes and is idempotent", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "slot_b"))
		require.NoError(t, s.Delete(ctx, "slot_b"))

		_, err := s.Read(ctx, "slot_b")
		assert.True(t, errors.Is(err, persist.ErrBlobNotFound))

		names, err := s.List(ctx, "slot_")
		require.NoError(t, err)
		assert.Equal(t, []string{"slot_a", "slot_c"}, names)
	})

	t.Run("invalid names are rejected", func(t *testing.T) {
		err := s.Write(ctx, "../escape", []byte("x"))
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrInvalidName))
	})
}

func TestMemory(t *testing.T) {
	conformance(t, store.NewMemory())
}

func TestMemoryCopiesData(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()

	data := []byte("abc")
	require.NoError(t, s.Write(ctx, "slot_x", data))
	data[0] = 'z'

	got, err := s.Read(ctx, "slot_x")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), got)
}

func TestDir(t *testing.T) {
	s, err := store.NewDir(filepath.Join(t.TempDir(), "saves"))
	require.NoError(t, err)
	conformance(t, s)
}

func TestDirSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	s, err := store.NewDir(root)
	require.NoError(t, err)
	require.NoError(t, s.Write(ctx, "slot_keep", []byte("kept")))

	again, err := store.NewDir(root)
	require.NoError(t, err)
	got, err := again.Read(ctx, "slot_keep")
	require.NoError(t, err)
	assert.Equal(t, []byte("kept"), got)
}

func TestDirHonoursContext(t *testing.T) {
	s, err := store.NewDir(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Write(ctx, "slot_x", []byte("x")), context.Canceled)
}

func TestSQLite(t *testing.T) {
	s, err := store.OpenSQLite(filepath.Join(t.TempDir(), "saves.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	conformance(t, s)
}

func TestSQLiteClosed(t *testing.T) {
	s, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Read(context.Background(), "slot_a")
	assert.ErrorIs(t, err, store.ErrClosed)
}

func newRedis(t *testing.T, prefix string) (*store.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := store.NewRedis(client, prefix)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedis(t *testing.T) {
	s, _ := newRedis(t, "")
	conformance(t, s)
}

func TestRedisPrefix(t *testing.T) {
	ctx := context.Background()
	s, mr := newRedis(t, "game1:")

	require.NoError(t, s.Write(ctx, "slot_a", []byte("payload")))
	assert.True(t, mr.Exists("game1:slot_a"))

	val, err := mr.Get("game1:slot_a")
	require.NoError(t, err)
	assert.Equal(t, "payload", val)

	// Keys outside the prefix are invisible.
	require.NoError(t, mr.Set("game2:slot_b", "other"))
	names, err := s.List(ctx, "slot_")
	require.NoError(t, err)
	assert.Equal(t, []string{"slot_a"}, names)
}

func TestRedisListEscapesGlob(t *testing.T) {
	ctx := context.Background()
	s, _ := newRedis(t, "")

	require.NoError(t, s.Write(ctx, "slot_[x]", []byte("1")))
	require.NoError(t, s.Write(ctx, "slot_x", []byte("2")))

	names, err := s.List(ctx, "slot_[")
	require.NoError(t, err)
	assert.Equal(t, []string{"slot_[x]"}, names)
}
