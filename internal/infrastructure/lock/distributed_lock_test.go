package lock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestFulfillLock_MutualExclusion(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	first := NewFulfillLock(client, "cs_1", 10*time.Second)
	second := NewFulfillLock(client, "cs_1", 10*time.Second)
	assert.Equal(t, "fulfill:lock:cs_1", first.Key())

	ok, err := first.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	// 非持有者释放不生效
	require.NoError(t, second.Unlock(ctx))
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, first.Unlock(ctx))
	ok, err = second.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLock_GivesUpAfterRetries(t *testing.T) {
	client, _ := newTestClient(t)
	ctx := context.Background()

	holder := NewFulfillLock(client, "cs_2", 10*time.Second)
	require.NoError(t, holder.Lock(ctx, time.Millisecond, 1))

	waiter := NewFulfillLock(client, "cs_2", 10*time.Second)
	err := waiter.Lock(ctx, time.Millisecond, 3)
	assert.ErrorIs(t, err, ErrLockFailed)
}

func TestLock_ExpiresWithTTL(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()

	holder := NewFulfillLock(client, "cs_3", time.Second)
	require.NoError(t, holder.Lock(ctx, time.Millisecond, 1))

	mr.FastForward(2 * time.Second)

	next := NewFulfillLock(client, "cs_3", time.Second)
	ok, err := next.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
