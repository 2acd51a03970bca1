package lock

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/3mpowered/dataverse-convenience/internal/config"
)

func TestKey(t *testing.T) {
	if got := Key("contoso.crm4.dynamics.com"); got != "dvc:lock:contoso.crm4.dynamics.com" {
		t.Errorf("Key() = %q", got)
	}
}

func TestNewClient(t *testing.T) {
	client := NewClient(&config.LockConfig{Address: "redis.internal:6380", Password: "secret", DB: 2})
	defer client.Close()

	opts := client.Options()
	if opts.Addr != "redis.internal:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Errorf("unexpected options: addr=%s db=%d", opts.Addr, opts.DB)
	}
}

// redisClient returns a client for localhost:6379 or skips the test.
func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available, skipping integration test")
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func testKey() string {
	return Key("test-" + strconv.FormatInt(time.Now().UnixNano(), 10))
}

func TestAcquireRelease(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	key := testKey()
	locker := New(client, time.Minute)

	lk, err := locker.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}

	if _, err := locker.Acquire(ctx, key); !errors.Is(err, ErrLocked) {
		t.Fatalf("second Acquire() error = %v, want ErrLocked", err)
	}

	if err := lk.Refresh(ctx); err != nil {
		t.Errorf("Refresh() error: %v", err)
	}
	if err := lk.Release(ctx); err != nil {
		t.Fatalf("Release() error: %v", err)
	}
	if err := lk.Release(ctx); !errors.Is(err, ErrNotHeld) {
		t.Errorf("second Release() error = %v, want ErrNotHeld", err)
	}

	again, err := locker.Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire() after release error: %v", err)
	}
	_ = again.Release(ctx)
}

func TestRelease_DoesNotDeleteForeignLock(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	key := testKey()
	defer client.Del(ctx, key)

	lk, err := New(client, time.Minute).Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	// Simulate expiry followed by another holder.
	client.Set(ctx, key, "someone-else", time.Minute)

	if err := lk.Release(ctx); !errors.Is(err, ErrNotHeld) {
		t.Fatalf("Release() error = %v, want ErrNotHeld", err)
	}
	if v, _ := client.Get(ctx, key).Result(); v != "someone-else" {
		t.Errorf("foreign lock value = %q, want it untouched", v)
	}
}

func TestAcquire_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 200 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	_, err := New(client, time.Minute).Acquire(context.Background(), testKey())
	if err == nil {
		t.Fatal("Acquire() = nil error, want connection error")
	}
	if errors.Is(err, ErrLocked) {
		t.Error("connection failure must not be reported as ErrLocked")
	}
}

func TestKeepAlive_ExtendsTTL(t *testing.T) {
	client := redisClient(t)
	ctx := context.Background()
	key := testKey()

	lk, err := New(client, 400*time.Millisecond).Acquire(ctx, key)
	if err != nil {
		t.Fatalf("Acquire() error: %v", err)
	}
	defer lk.Release(ctx)

	stop := lk.KeepAlive(ctx)
	time.Sleep(900 * time.Millisecond)
	stop()

	exists, err := client.Exists(ctx, key).Result()
	if err != nil {
		t.Fatalf("Exists() error: %v", err)
	}
	if exists != 1 {
		t.Error("lock expired although it was kept alive")
	}
}
