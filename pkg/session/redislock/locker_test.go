package redislock

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dukex/chatflow/pkg/session"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLocker(t *testing.T) (*Locker, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return NewLocker(client, "chatflow:"), mr
}

func TestLocker_LockUnlock(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	lease, err := locker.Lock(ctx, "chat-1", 5*time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists("chatflow:lock:chat-1"))

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("chatflow:lock:chat-1"))
}

func TestLocker_Contention(t *testing.T) {
	locker, _ := newLocker(t)
	ctx := context.Background()

	lease, err := locker.Lock(ctx, "chat-1", 5*time.Second)
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(ctx, 150*time.Millisecond)
	defer cancel()

	_, err = locker.Lock(waitCtx, "chat-1", 5*time.Second)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, lease.Release(ctx))

	lease2, err := locker.Lock(ctx, "chat-1", 5*time.Second)
	require.NoError(t, err)
	require.NoError(t, lease2.Release(ctx))
}

func TestLocker_UnlockAfterTakeover(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	lease, err := locker.Lock(ctx, "chat-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)

	lease2, err := locker.Lock(ctx, "chat-1", 5*time.Second)
	require.NoError(t, err)

	require.NoError(t, lease.Release(ctx))
	assert.True(t, mr.Exists("chatflow:lock:chat-1"), "a stale unlock keeps the new owner's lock")

	require.NoError(t, lease2.Release(ctx))
	assert.False(t, mr.Exists("chatflow:lock:chat-1"))
}

func TestLocker_WithGuard(t *testing.T) {
	locker, mr := newLocker(t)
	guard := session.NewGuard(session.WithLocker(locker))

	err := guard.WithLock(context.Background(), "chat-9", func(context.Context) error {
		assert.True(t, mr.Exists("chatflow:lock:chat-9"))

		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("chatflow:lock:chat-9"))
}

func TestLocker_Refresh(t *testing.T) {
	locker, mr := newLocker(t)
	ctx := context.Background()

	lease, err := locker.Lock(ctx, "chat-1", time.Second)
	require.NoError(t, err)

	mr.FastForward(800 * time.Millisecond)
	require.NoError(t, lease.Refresh(ctx, time.Second))
	assert.Equal(t, time.Second, mr.TTL("chatflow:lock:chat-1"))

	mr.FastForward(2 * time.Second)
	require.ErrorIs(t, lease.Refresh(ctx, time.Second), session.ErrLockLost)

	other, err := locker.Lock(ctx, "chat-1", 5*time.Second)
	require.NoError(t, err)
	require.ErrorIs(t, lease.Refresh(ctx, time.Second), session.ErrLockLost, "a refresh never steals a taken-over lock")
	require.NoError(t, other.Release(ctx))
}

func TestLocker_GuardHoldsChatPastTTL(t *testing.T) {
	locker, mr := newLocker(t)
	ttl := 300 * time.Millisecond

	first := session.NewGuard(session.WithLocker(locker), session.WithTTL(ttl))
	second := session.NewGuard(session.WithLocker(locker), session.WithTTL(ttl))

	var inside, maxInside atomic.Int32

	enter := func() {
		if n := inside.Add(1); n > maxInside.Load() {
			maxInside.Store(n)
		}
	}

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)

	go func() {
		done <- first.WithLock(context.Background(), "chat-1", func(context.Context) error {
			enter()
			close(held)
			<-release
			inside.Add(-1)

			return nil
		})
	}()

	<-held

	// Each step sleeps past one refresh interval, then moves redis time by
	// less than the ttl. Without refreshes the key would be long gone.
	for range 5 {
		time.Sleep(150 * time.Millisecond)
		mr.FastForward(200 * time.Millisecond)
		require.True(t, mr.Exists("chatflow:lock:chat-1"))
	}

	waitCtx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := second.WithLock(waitCtx, "chat-1", func(context.Context) error {
		enter()
		inside.Add(-1)

		return nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, int32(1), maxInside.Load())
	assert.False(t, mr.Exists("chatflow:lock:chat-1"))
}
