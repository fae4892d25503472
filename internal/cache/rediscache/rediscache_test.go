package rediscache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func TestRedisCache_GetSet(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())

	ctx := context.Background()

	_, ok, err := c.Get(ctx, "endpoint:inpost:pl")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "endpoint:inpost:pl", []byte(`{"points":[]}`), time.Minute))

	b, ok, err := c.Get(ctx, "endpoint:inpost:pl")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte(`{"points":[]}`), b)
}

func TestRedisCache_TTLExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	c := New(mr.Addr())
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Second))
	mr.FastForward(2 * time.Second)

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestThrottle_Allow(t *testing.T) {
	mr := miniredis.RunT(t)
	th := NewThrottle(mr.Addr())
	ctx := context.Background()

	ok, err := th.Allow(ctx, "viewport", 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)

	// Second call inside the window is suppressed.
	ok, err = th.Allow(ctx, "viewport", 2*time.Second)
	require.NoError(t, err)
	require.False(t, ok)

	// Window elapses, the gate reopens.
	mr.FastForward(3 * time.Second)
	ok, err = th.Allow(ctx, "viewport", 2*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
}
