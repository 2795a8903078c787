package container

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	c, err := NewCache(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestSeenMessageIDDetectsDuplicateWithinTTL(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	dup, err := c.SeenMessageID(ctx, "msg-1", time.Minute)
	require.NoError(t, err)
	require.False(t, dup)

	dup, err = c.SeenMessageID(ctx, "msg-1", time.Minute)
	require.NoError(t, err)
	require.True(t, dup)
}

func TestSnapshotRoundTripsThroughCache(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.GetSnapshot(ctx, "slice:s1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.PutSnapshot(ctx, "slice:s1", `{"id":"s1"}`, time.Minute))

	val, ok, err := c.GetSnapshot(ctx, "slice:s1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, `{"id":"s1"}`, val)
}

func TestNilAddrCacheIsANoop(t *testing.T) {
	c, err := NewCache(context.Background(), "")
	require.NoError(t, err)

	dup, err := c.SeenMessageID(context.Background(), "msg-1", time.Minute)
	require.NoError(t, err)
	require.False(t, dup)
	require.NoError(t, c.Close())
}
