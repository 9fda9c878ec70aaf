// ABOUTME: Tests for the preference store
// ABOUTME: Runs the Redis implementation against miniredis and the in-memory one directly

package prefs

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	st, err := NewRedisStore(context.Background(), mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func runStoreTests(t *testing.T, st Store) {
	ctx := context.Background()

	t.Run("DefaultsToOnline", func(t *testing.T) {
		online, err := st.Online(ctx, "never-seen")
		require.NoError(t, err)
		assert.True(t, online, "sharing is on unless explicitly disabled")
	})

	t.Run("RoundTrip", func(t *testing.T) {
		require.NoError(t, st.SetOnline(ctx, "u1", false))
		online, err := st.Online(ctx, "u1")
		require.NoError(t, err)
		assert.False(t, online)

		require.NoError(t, st.SetOnline(ctx, "u1", true))
		online, err = st.Online(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, online)
	})

	t.Run("PerUserIsolation", func(t *testing.T) {
		require.NoError(t, st.SetOnline(ctx, "u2", false))
		online, err := st.Online(ctx, "u3")
		require.NoError(t, err)
		assert.True(t, online)
	})
}

func TestRedisStore(t *testing.T) {
	runStoreTests(t, setupRedisStore(t))
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemoryStore())
}

func TestRedisStore_ConnectFailure(t *testing.T) {
	_, err := NewRedisStore(context.Background(), "127.0.0.1:1", "", 0)
	require.Error(t, err)
}

func TestMemoryStore_Closed(t *testing.T) {
	st := NewMemoryStore()
	require.NoError(t, st.Close())

	err := st.SetOnline(context.Background(), "u1", true)
	assert.ErrorIs(t, err, ErrClosed)

	_, err = st.Online(context.Background(), "u1")
	assert.ErrorIs(t, err, ErrClosed)
}
