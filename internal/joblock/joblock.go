package joblock

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker serializes batch job runs across processes. Acquire returns false
// when another run of the same job is in flight.
type Locker interface {
	Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, job string) error
}

// RedisLocker is a SET NX PX single-flight lock keyed by job name. The TTL
// bounds how long a crashed run can hold the lock.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(addr, password string) *RedisLocker {
	return &RedisLocker{client: redis.NewClient(&redis.Options{Addr: addr, Password: password})}
}

func (l *RedisLocker) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	return l.client.SetNX(ctx, lockKey(job), "1", ttl).Result()
}

func (l *RedisLocker) Release(ctx context.Context, job string) error {
	return l.client.Del(ctx, lockKey(job)).Err()
}

func (l *RedisLocker) Close() error { return l.client.Close() }

func lockKey(job string) string { return "joblock:" + job }

// LocalLocker serializes runs within a single process, for when no redis
// is configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]bool)}
}

func (l *LocalLocker) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[job] {
		return false, nil
	}
	l.held[job] = true
	return true, nil
}

func (l *LocalLocker) Release(ctx context.Context, job string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, job)
	return nil
}
