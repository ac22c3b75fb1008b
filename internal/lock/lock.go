// Package lock provides distributed mutual exclusion on the shared KV store
// for multi-step sequences that a single atomic store operation cannot cover.
package lock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wzuhqa/flashstock/internal/port"
	"github.com/wzuhqa/flashstock/pkg/metrics"
)

const keyPrefix = "lock:"

type Lock struct {
	store port.KVStore
	log   *zap.Logger
}

func New(store port.KVStore, log *zap.Logger) *Lock {
	return &Lock{store: store, log: log}
}

// Acquire attempts to take the named lock for ttl. On success it returns a
// token the caller must present to Release. Returns ok=false when the lock is
// held elsewhere, and also on store error: exclusion is a correctness
// boundary, so acquisition fails closed.
func (l *Lock) Acquire(ctx context.Context, name string, ttl time.Duration) (string, bool) {
	// Unique per acquisition, so a holder whose lock expired and was taken
	// over can never release the new holder's lock.
	token := fmt.Sprintf("%d-%s", time.Now().UnixNano(), uuid.NewString())

	ok, err := l.store.SetNX(ctx, keyPrefix+name, token, ttl)
	if err != nil {
		l.log.Warn("lock acquire failed", zap.String("lock", name), zap.Error(err))
		return "", false
	}
	if !ok {
		metrics.LockOps.WithLabelValues("contended").Inc()
		return "", false
	}
	metrics.LockOps.WithLabelValues("acquired").Inc()
	return token, true
}

// Release frees the named lock if and only if token matches the granted
// value. Returns false when the lock expired or was reacquired by someone
// else. Store errors are swallowed; the TTL self-heals an unreleased lock.
func (l *Lock) Release(ctx context.Context, name, token string) bool {
	deleted, err := l.store.CompareAndDelete(ctx, keyPrefix+name, token)
	if err != nil {
		l.log.Warn("lock release failed", zap.String("lock", name), zap.Error(err))
		return false
	}
	if !deleted {
		metrics.LockOps.WithLabelValues("stale").Inc()
		return false
	}
	metrics.LockOps.WithLabelValues("released").Inc()
	return true
}
