// Package ratelimit enforces per-client request quotas using fixed windows
// shared across coordinator replicas through Redis. When Redis is down the
// limiter fails open behind a coarse local backstop, so an outage of the
// counting store never takes the API down with it.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Class names a request category with its own quota.
type Class string

const (
	ClassDefault   Class = "default"
	ClassSignaling Class = "signaling"
	ClassAuth      Class = "auth"
)

// Quota is the per-window request allowance for one class.
type Quota struct {
	Limit  int
	Window time.Duration
}

// DefaultQuotas returns the standard per-class quotas: a general API quota,
// a looser one for high-frequency signaling traffic and a tight one for
// authentication attempts.
func DefaultQuotas() map[Class]Quota {
	return map[Class]Quota{
		ClassDefault:   {Limit: 100, Window: time.Minute},
		ClassSignaling: {Limit: 1000, Window: time.Minute},
		ClassAuth:      {Limit: 10, Window: time.Minute},
	}
}

// Result reports one quota decision.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Time
}

// Counter increments the shared per-window counter and returns its new
// value. Implementations must make the increment atomic across replicas.
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RedisCounter counts in Redis. INCR plus EXPIRE NX in one pipeline gives
// an atomic fixed-window counter: the first request of a window sets the
// TTL, every replica increments the same key.
type RedisCounter struct {
	client redis.UniversalClient
}

// NewRedisCounter wraps a Redis client as a Counter.
func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// Limiter makes quota decisions for (client, class) pairs.
type Limiter struct {
	counter Counter
	quotas  map[Class]Quota
	log     *logrus.Entry

	// backstop caps total throughput locally while the counter is down.
	backstop *rate.Limiter
}

// NewLimiter creates a limiter over the given counter. Missing quota
// classes fall back to the default class.
func NewLimiter(counter Counter, quotas map[Class]Quota, log *logrus.Logger) *Limiter {
	if quotas == nil {
		quotas = DefaultQuotas()
	}
	return &Limiter{
		counter:  counter,
		quotas:   quotas,
		log:      log.WithField("component", "ratelimit"),
		backstop: rate.NewLimiter(rate.Limit(500), 1000),
	}
}

// Allow decides whether the client may make one more request of the given
// class within the current window. Counter failures allow the request
// (fail open) as long as the local backstop has tokens left.
func (l *Limiter) Allow(ctx context.Context, clientID string, class Class) Result {
	quota, ok := l.quotas[class]
	if !ok {
		quota = l.quotas[ClassDefault]
	}

	now := time.Now().UTC()
	windowStart := now.Truncate(quota.Window)
	reset := windowStart.Add(quota.Window)
	key := fmt.Sprintf("rate_limit:%s:%s:%d", clientID, class, windowStart.Unix())

	count, err := l.counter.Incr(ctx, key, quota.Window)
	if err != nil {
		l.log.WithError(err).Warn("rate limit counter unavailable, failing open")
		return Result{
			Allowed:   l.backstop.Allow(),
			Limit:     quota.Limit,
			Remaining: 0,
			Reset:     reset,
		}
	}

	remaining := quota.Limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Result{
		Allowed:   count <= int64(quota.Limit),
		Limit:     quota.Limit,
		Remaining: remaining,
		Reset:     reset,
	}
}
