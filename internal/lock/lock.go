// Package lock 提供按文档 ID 的互斥，保证同一文档同一时刻只有一个分析在运行。
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cv-smart-go/pkg/log"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// ReleaseFunc 释放已获得的锁，可重复调用。
type ReleaseFunc func()

// Locker 按 key 互斥。Acquire 会一直等待，直到获得锁或 ctx 结束。
type Locker interface {
	Acquire(ctx context.Context, key string) (ReleaseFunc, error)
}

// ErrLockLost 表示锁在持有期间已过期并被他人获得。
var ErrLockLost = errors.New("lock token mismatch")

// releaseScript 只有在 token 匹配时才删除 key。
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker 基于 SET NX PX 的分布式锁。
type RedisLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	poll   time.Duration
}

// NewRedisLocker 创建一个 RedisLocker，ttl 为锁的自动过期时间。
func NewRedisLocker(client *redis.Client, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLocker{client: client, prefix: "lock:analysis:", ttl: ttl, poll: 100 * time.Millisecond}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	redisKey := l.prefix + key
	token := uuid.NewString()
	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
		case <-time.After(l.poll):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// 释放不受调用方 ctx 影响，避免取消后锁残留到 TTL
			rctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			n, err := releaseScript.Run(rctx, l.client, []string{redisKey}, token).Int()
			if err != nil {
				log.Warnf("[Lock] 释放锁失败, Key: %s, Error: %v", redisKey, err)
				return
			}
			if n == 0 {
				log.Warnf("[Lock] 释放锁时发现 token 不匹配, Key: %s: %v", redisKey, ErrLockLost)
			}
		})
	}, nil
}

// LocalLocker 是进程内的按 key 互斥，用于单实例部署和测试。
type LocalLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewLocalLocker 创建一个 LocalLocker。
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{slots: make(map[string]chan struct{})}
}

func (l *LocalLocker) slot(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[key] = ch
	}
	return ch
}

func (l *LocalLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	ch := l.slot(key)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("acquire lock %s: %w", key, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
