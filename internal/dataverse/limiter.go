package dataverse

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// Limiter blocks until the next request may be sent.
type Limiter interface {
	Wait(ctx context.Context) error
}

// NewLocalLimiter returns an in-process token bucket, or nil when
// requestsPerSecond disables throttling.
func NewLocalLimiter(requestsPerSecond float64, burst int) Limiter {
	if requestsPerSecond <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
}

// RedisLimiter shares one request budget between every process that talks
// to the same environment.
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	key     string
	limit   redis_rate.Limit
}

// NewRedisLimiter creates a limiter keyed on the environment host.
func NewRedisLimiter(client redis.UniversalClient, host string, requestsPerSecond float64, burst int) (*RedisLimiter, error) {
	if requestsPerSecond <= 0 {
		return nil, fmt.Errorf("shared rate limit needs a positive request rate")
	}
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(client),
		key:     "dvc:rate:" + host,
		limit:   limitFor(requestsPerSecond, burst),
	}, nil
}

// limitFor converts a fractional rate into the integral rate per period
// redis_rate expects. The rate is truncated and the period stretched to match,
// rounding the period up so the admitted rate never exceeds requestsPerSecond.
func limitFor(requestsPerSecond float64, burst int) redis_rate.Limit {
	if burst < 1 {
		burst = 1
	}
	n := max(1, int(requestsPerSecond))
	period := time.Duration(math.Ceil(float64(n) * float64(time.Second) / requestsPerSecond))
	return redis_rate.Limit{Rate: n, Burst: burst, Period: period}
}

// Wait polls the shared bucket until a request is admitted.
func (l *RedisLimiter) Wait(ctx context.Context) error {
	for {
		res, err := l.limiter.Allow(ctx, l.key, l.limit)
		if err != nil {
			return fmt.Errorf("shared rate limit: %w", err)
		}
		if res.Allowed > 0 {
			return nil
		}

		timer := time.NewTimer(res.RetryAfter)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
