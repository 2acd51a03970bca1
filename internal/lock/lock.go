// Package lock serializes enable and disable runs against one environment
// with a Redis lock. The lock is a single key set with NX and a TTL; only
// the holder of the random token can release or extend it.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/3mpowered/dataverse-convenience/internal/config"
	"github.com/3mpowered/dataverse-convenience/internal/safego"
)

// ErrLocked is returned when another run holds the lock.
var ErrLocked = errors.New("another run holds the lock")

// ErrNotHeld is returned when releasing or refreshing a lock that expired or
// was taken over.
var ErrNotHeld = errors.New("lock is no longer held")

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

var refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// NewClient creates a Redis client from the lock configuration
func NewClient(cfg *config.LockConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Key returns the lock key for an environment host
func Key(host string) string {
	return "dvc:lock:" + host
}

// Locker acquires locks
type Locker struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New creates a Locker whose locks expire after ttl unless refreshed
func New(client redis.UniversalClient, ttl time.Duration) *Locker {
	return &Locker{client: client, ttl: ttl}
}

// Lock is a held lock
type Lock struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

// Acquire takes the lock for key or returns ErrLocked
func (l *Locker) Acquire(ctx context.Context, key string) (*Lock, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrLocked)
	}
	slog.Debug("lock: acquired", "key", key, "ttl", l.ttl)
	return &Lock{client: l.client, key: key, token: token, ttl: l.ttl}, nil
}

// Key returns the locked key
func (lk *Lock) Key() string {
	return lk.key
}

// Release deletes the lock if it is still ours
func (lk *Lock) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, lk.client, []string{lk.key}, lk.token).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock %s: %w", lk.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", lk.key, ErrNotHeld)
	}
	slog.Debug("lock: released", "key", lk.key)
	return nil
}

// Refresh extends the lock by its TTL
func (lk *Lock) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, lk.client, []string{lk.key}, lk.token, lk.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to refresh lock %s: %w", lk.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", lk.key, ErrNotHeld)
	}
	return nil
}

// KeepAlive refreshes the lock every half TTL until stop is called or a
// refresh fails. stop waits for the refresher to exit.
func (lk *Lock) KeepAlive(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	interval := lk.ttl / 2
	if interval <= 0 {
		interval = time.Second
	}
	done := safego.Go("lock-keepalive", func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lk.Refresh(ctx); err != nil {
					if ctx.Err() == nil {
						slog.Warn("lock: refresh failed", "key", lk.key, "error", err)
					}
					return
				}
			}
		}
	})
	return func() {
		cancel()
		<-done
	}
}
