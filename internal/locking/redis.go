package locking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"konsinyasi-backend/internal/logging"
)

const (
	lockTTL       = 30 * time.Second
	retryInterval = 100 * time.Millisecond
	maxRetries    = 100
)

// RedisLocker shares leases across instances through redislock.
// A held lease is extended every ttl/3 until it is released.
type RedisLocker struct {
	client *redislock.Client
	logger *logrus.Logger
	ttl    time.Duration
}

func NewRedisLocker(rdb redis.UniversalClient, logger *logrus.Logger) *RedisLocker {
	return &RedisLocker{client: redislock.New(rdb), logger: logger, ttl: lockTTL}
}

// Connect pings addr and returns a locker backed by it.
func Connect(ctx context.Context, addr string, logger *logrus.Logger) (*RedisLocker, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		DB:       0,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisLocker(rdb, logger), nil
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	lock, err := l.client.Obtain(ctx, "lock:"+key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LimitRetry(redislock.LinearBackoff(retryInterval), maxRetries),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		logging.LogError(l.logger, "locking", "Acquire", "Could not obtain lock", key, err)
		return nil, fmt.Errorf("lock %s busy: %w", key, err)
	}
	if err != nil {
		logging.LogError(l.logger, "locking", "Acquire", "Error obtaining lock", key, err)
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(lock, key, stop, done)

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			<-done
			// Release on a fresh context: the request context may already be cancelled.
			if err := lock.Release(context.Background()); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
				logging.LogError(l.logger, "locking", "Release", "Error releasing lock", key, err)
			}
		})
	}, nil
}

// keepAlive extends the lease until stop is closed, so a slow transaction
// does not outlive its lock. A lost lease is logged and ends the loop.
func (l *RedisLocker) keepAlive(lock *redislock.Lock, key string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	interval := l.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			err := lock.Refresh(ctx, l.ttl, nil)
			cancel()
			if err != nil {
				logging.LogError(l.logger, "locking", "keepAlive", "Could not extend lock", key, err)
				return
			}
		}
	}
}
