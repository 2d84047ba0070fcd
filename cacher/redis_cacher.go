package cacher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// RedisCacher is a Cacher stored in Redis, so several relay processes can
// share what they have looked up. Values are JSON encoded under Prefix+key.
// Concurrent misses within one process are collapsed with singleflight;
// across processes a miss may be fetched more than once.
type RedisCacher[T any] struct {
	client *redis.Client
	prefix string
	group  singleflight.Group
}

// NewRedisCacher creates a Redis-backed cacher.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	names := NewRedisCacher[string](client, "kryptos:peer:")
func NewRedisCacher[T any](client *redis.Client, prefix string) *RedisCacher[T] {
	return &RedisCacher[T]{client: client, prefix: prefix}
}

// GetOrFetch implements Cacher.
func (c *RedisCacher[T]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error) {
	var zero T

	v, found, err := c.get(ctx, key)
	if err != nil {
		return zero, err
	}
	if found {
		return v, nil
	}

	val, err, _ := c.group.Do(key, func() (any, error) {
		fetched, err := fetchFn(ctx)
		if err != nil {
			return zero, fmt.Errorf("fetch function failed: %w", err)
		}

		data, err := json.Marshal(fetched)
		if err != nil {
			return zero, fmt.Errorf("failed to marshal result: %w", err)
		}
		if err := c.client.Set(ctx, c.prefix+key, data, ttl).Err(); err != nil {
			return zero, fmt.Errorf("failed to cache result: %w", err)
		}

		return fetched, nil
	})
	if err != nil {
		return zero, err
	}

	return val.(T), nil
}

func (c *RedisCacher[T]) get(ctx context.Context, key string) (T, bool, error) {
	var result T

	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return result, false, nil
	}
	if err != nil {
		return result, false, fmt.Errorf("redis get error: %w", err)
	}

	if err := json.Unmarshal(raw, &result); err != nil {
		return result, false, fmt.Errorf("failed to unmarshal cached value: %w", err)
	}

	return result, true, nil
}

// Delete implements Cacher.
func (c *RedisCacher[T]) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, c.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete key: %w", err)
	}

	return nil
}

// ItemCount implements Cacher by scanning keys under the prefix.
func (c *RedisCacher[T]) ItemCount(ctx context.Context) (int, error) {
	count := 0
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		count++
	}

	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("failed to scan keys: %w", err)
	}

	return count, nil
}
