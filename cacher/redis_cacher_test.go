package cacher

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewRedisCacher(t *testing.T) {
	c := NewRedisCacher[string](unreachableRedis(t), "kryptos:peer:")
	require.NotNil(t, c)

	var _ Cacher[string] = c
}

func TestRedisCacher_Unreachable(t *testing.T) {
	c := NewRedisCacher[string](unreachableRedis(t), "kryptos:peer:")
	ctx := context.Background()

	t.Run("GetOrFetch reports the redis error without fetching", func(t *testing.T) {
		_, err := c.GetOrFetch(ctx, "127.0.0.1", time.Minute, func(ctx context.Context) (string, error) {
			t.Fatal("fetch must not run when the cache is unreachable")
			return "", nil
		})
		assert.ErrorContains(t, err, "redis get error")
	})

	t.Run("Delete", func(t *testing.T) {
		assert.ErrorContains(t, c.Delete(ctx, "127.0.0.1"), "failed to delete key")
	})

	t.Run("ItemCount", func(t *testing.T) {
		_, err := c.ItemCount(ctx)
		assert.ErrorContains(t, err, "failed to scan keys")
	})
}
