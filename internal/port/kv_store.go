package port

import (
	"context"
	"time"
)

// KVStore is the boundary to the shared key-value store. Every method maps to
// a single store round trip; IncrBy, DecrBy and SetNX are atomic per key.
type KVStore interface {
	// Get returns the value for key, or ok=false if the key does not exist.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key. ttl <= 0 means no expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error

	// SetNX stores value only if key is absent, with the given expiry.
	// Returns false if the key already exists.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// Del removes keys. Deleting an absent key is not an error.
	Del(ctx context.Context, keys ...string) error

	// IncrBy atomically adds delta to the integer at key, creating it at 0
	// if absent, and returns the new value.
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)

	// DecrBy atomically subtracts delta from the integer at key, creating it
	// at 0 if absent, and returns the new value.
	DecrBy(ctx context.Context, key string, delta int64) (int64, error)

	// Expire sets the remaining lifetime of key. Returns false if the key
	// does not exist.
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// TTL returns the remaining lifetime of key, or 0 if the key does not
	// exist or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// Keys returns all keys matching a glob pattern. O(n) over the keyspace,
	// used only for bulk invalidation.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// CompareAndDelete removes key only if it currently holds expect, as a
	// single atomic step. Returns true if the key was removed.
	CompareAndDelete(ctx context.Context, key, expect string) (bool, error)

	// DeadlineAdd records member in the index, scored by deadline.
	DeadlineAdd(ctx context.Context, index, member string, deadline time.Time) error

	// DeadlineRemove drops members from the index.
	DeadlineRemove(ctx context.Context, index string, members ...string) error

	// DeadlineDue returns up to limit members whose deadline is at or before
	// now, oldest first.
	DeadlineDue(ctx context.Context, index string, now time.Time, limit int64) ([]string, error)
}
