package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T) (*miniredis.Miniredis, *RedisLocker) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	l := NewRedisLocker(client, time.Minute)
	l.poll = 5 * time.Millisecond
	return mr, l
}

func exclusive(t *testing.T, l Locker) {
	t.Helper()
	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "doc-1")
			if !assert.NoError(t, err) {
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&active, -1)
			release()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak)
}

func TestLockersAreExclusive(t *testing.T) {
	_, rl := newRedisLocker(t)
	for name, l := range map[string]Locker{"redis": rl, "local": NewLocalLocker()} {
		t.Run(name, func(t *testing.T) { exclusive(t, l) })
	}
}

func TestLockersHonourContext(t *testing.T) {
	_, rl := newRedisLocker(t)
	for name, l := range map[string]Locker{"redis": rl, "local": NewLocalLocker()} {
		t.Run(name, func(t *testing.T) {
			release, err := l.Acquire(context.Background(), "doc-2")
			require.NoError(t, err)
			defer release()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
			defer cancel()
			_, err = l.Acquire(ctx, "doc-2")
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			other, err := l.Acquire(context.Background(), "doc-3")
			require.NoError(t, err)
			other()
		})
	}
}

func TestRedisReleaseOnlyDeletesOwnToken(t *testing.T) {
	mr, l := newRedisLocker(t)
	release, err := l.Acquire(context.Background(), "doc-4")
	require.NoError(t, err)
	assert.True(t, mr.Exists("lock:analysis:doc-4"))

	// 模拟锁过期后被他人持有
	require.NoError(t, mr.Set("lock:analysis:doc-4", "someone-else"))
	release()
	got, err := mr.Get("lock:analysis:doc-4")
	require.NoError(t, err)
	assert.Equal(t, "someone-else", got)

	mr.Del("lock:analysis:doc-4")
	release2, err := l.Acquire(context.Background(), "doc-4")
	require.NoError(t, err)
	release2()
	release2()
	assert.False(t, mr.Exists("lock:analysis:doc-4"))
}
