package store

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewRedisClient creates and pings a Redis client with optional password auth.
func NewRedisClient(ctx context.Context, addr, password string) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return rdb, nil
}

// Locker provides best-effort distributed locks for the report assembler, so
// racing workers don't both render the same request. The Postgres unique
// constraint on report_tasks remains the hard guarantee.
type Locker struct {
	rdb *redis.Client
}

func NewLocker(rdb *redis.Client) *Locker {
	return &Locker{rdb: rdb}
}

// Acquire returns true when the caller now holds the lock.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, "lock:"+key, "1", ttl).Result()
}

func (l *Locker) Release(ctx context.Context, key string) error {
	return l.rdb.Del(ctx, "lock:"+key).Err()
}
