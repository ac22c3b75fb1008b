package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var compareAndDeleteScript = redis.NewScript(`
local existing = redis.call('GET', KEYS[1])
if not existing then
	return 0
end
if existing == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisStore implements port.KVStore on a shared Redis instance.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	return r.client.Set(ctx, key, value, ttl).Err()
}

func (r *RedisStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return r.client.SetNX(ctx, key, value, ttl).Result()
}

func (r *RedisStore) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *RedisStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return r.client.IncrBy(ctx, key, delta).Result()
}

func (r *RedisStore) DecrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return r.client.DecrBy(ctx, key, delta).Result()
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return r.client.Expire(ctx, key, ttl).Result()
}

func (r *RedisStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	// -1 (no expiry) and -2 (no key) collapse to 0.
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (r *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	return r.client.Keys(ctx, pattern).Result()
}

func (r *RedisStore) CompareAndDelete(ctx context.Context, key, expect string) (bool, error) {
	deleted, err := compareAndDeleteScript.Run(ctx, r.client, []string{key}, expect).Int()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

func (r *RedisStore) DeadlineAdd(ctx context.Context, index, member string, deadline time.Time) error {
	return r.client.ZAdd(ctx, index, redis.Z{
		Score:  float64(deadline.Unix()),
		Member: member,
	}).Err()
}

func (r *RedisStore) DeadlineRemove(ctx context.Context, index string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.ZRem(ctx, index, args...).Err()
}

func (r *RedisStore) DeadlineDue(ctx context.Context, index string, now time.Time, limit int64) ([]string, error) {
	return r.client.ZRangeByScore(ctx, index, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.Unix(), 10),
		Count: limit,
	}).Result()
}
