package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory(t *testing.T) {
	ctx := context.Background()

	t.Run("round trips a value", func(t *testing.T) {
		m := NewMemory(10)

		require.NoError(t, m.Set(ctx, VideoKey("abc"), []byte(`{"id":"abc"}`), time.Minute))

		value, hit, err := m.Get(ctx, VideoKey("abc"))
		require.NoError(t, err)
		require.True(t, hit)
		assert.Equal(t, []byte(`{"id":"abc"}`), value)
	})

	t.Run("misses unknown keys", func(t *testing.T) {
		m := NewMemory(10)

		_, hit, err := m.Get(ctx, "nope")
		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("expires entries", func(t *testing.T) {
		m := NewMemory(10)
		current := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
		m.now = func() time.Time { return current }

		require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))

		current = current.Add(61 * time.Second)
		_, hit, err := m.Get(ctx, "k")
		require.NoError(t, err)
		assert.False(t, hit)
	})

	t.Run("evicts the oldest entry when full", func(t *testing.T) {
		m := NewMemory(2)

		require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))
		require.NoError(t, m.Set(ctx, "b", []byte("2"), time.Minute))
		require.NoError(t, m.Set(ctx, "c", []byte("3"), time.Minute))

		_, hit, _ := m.Get(ctx, "a")
		assert.False(t, hit, "oldest entry should have been evicted")

		_, hit, _ = m.Get(ctx, "b")
		assert.True(t, hit)
		_, hit, _ = m.Get(ctx, "c")
		assert.True(t, hit)
	})

	t.Run("updating a key refreshes its age", func(t *testing.T) {
		m := NewMemory(2)

		require.NoError(t, m.Set(ctx, "a", []byte("1"), time.Minute))
		require.NoError(t, m.Set(ctx, "b", []byte("2"), time.Minute))
		require.NoError(t, m.Set(ctx, "a", []byte("1b"), time.Minute))
		require.NoError(t, m.Set(ctx, "c", []byte("3"), time.Minute))

		value, hit, _ := m.Get(ctx, "a")
		require.True(t, hit)
		assert.Equal(t, []byte("1b"), value)

		_, hit, _ = m.Get(ctx, "b")
		assert.False(t, hit)
	})

	t.Run("invalidate removes the entry", func(t *testing.T) {
		m := NewMemory(10)

		require.NoError(t, m.Set(ctx, "k", []byte("v"), time.Minute))
		require.NoError(t, m.Invalidate(ctx, "k"))

		_, hit, _ := m.Get(ctx, "k")
		assert.False(t, hit)
	})
}

func TestRedisDisabled(t *testing.T) {
	ctx := context.Background()

	// No URL means a nil client; every operation degrades to a miss.
	r := NewRedis("", nil)
	require.False(t, r.Enabled())

	require.NoError(t, r.Set(ctx, "k", []byte("v"), time.Minute))

	_, hit, err := r.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, hit)

	require.NoError(t, r.Invalidate(ctx, "k"))
	require.NoError(t, r.Close())
}
