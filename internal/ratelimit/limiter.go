// Package ratelimit bounds request rates with a fixed-window counter on the
// shared KV store: one atomic increment per request, window pinned to the
// first increment.
package ratelimit

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/wzuhqa/flashstock/internal/port"
	"github.com/wzuhqa/flashstock/pkg/metrics"
)

const keyPrefix = "ratelimit:"

type Result struct {
	Allowed   bool
	Remaining int64
	ResetIn   time.Duration
}

type Limiter struct {
	store port.KVStore
	log   *zap.Logger
}

func New(store port.KVStore, log *zap.Logger) *Limiter {
	return &Limiter{store: store, log: log}
}

// Allow counts one request against key's window and reports whether it fits
// under limit. On store failure it fails open: rate limiting is defense in
// depth, and failing closed would turn a store outage into a full outage.
func (l *Limiter) Allow(ctx context.Context, key string, limit int64, window time.Duration) Result {
	counterKey := keyPrefix + key

	count, err := l.store.IncrBy(ctx, counterKey, 1)
	if err != nil {
		metrics.RateLimitDecisions.WithLabelValues("failopen").Inc()
		l.log.Warn("rate limiter unavailable, failing open", zap.String("key", key), zap.Error(err))
		return Result{Allowed: true, Remaining: limit}
	}

	// Exactly one caller observes the counter at 1 and pins the window.
	// Later increments never extend it (fixed window, not sliding).
	if count == 1 {
		if _, err := l.store.Expire(ctx, counterKey, window); err != nil {
			l.log.Warn("rate limiter window not set", zap.String("key", key), zap.Error(err))
		}
	}

	resetIn, err := l.store.TTL(ctx, counterKey)
	if err != nil {
		l.log.Warn("rate limiter ttl read failed", zap.String("key", key), zap.Error(err))
	}

	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}

	allowed := count <= limit
	if allowed {
		metrics.RateLimitDecisions.WithLabelValues("allowed").Inc()
	} else {
		metrics.RateLimitDecisions.WithLabelValues("denied").Inc()
	}

	return Result{Allowed: allowed, Remaining: remaining, ResetIn: resetIn}
}
