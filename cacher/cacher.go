// Package cacher caches values that are expensive to look up, such as the host
// name behind a peer address, with at most one concurrent fetch per key.
package cacher

import (
	"context"
	"time"
)

// FetchFunc fetches a value from the source on a cache miss.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// Cacher caches values with automatic fetching on a miss. Implementations are
// safe for concurrent use and collapse concurrent misses for the same key into
// a single fetch.
type Cacher[T any] interface {
	// GetOrFetch returns the cached value for key, or calls fetchFn, stores the
	// result for ttl and returns it. Fetch errors are not cached.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout control
	//   - key: The cache key to retrieve or set
	//   - ttl: Time-to-live for a freshly fetched value
	//   - fetchFn: Function to fetch the value if not in cache
	//
	// Returns:
	//   - The cached or fetched value of type T
	//   - An error if retrieval or fetching fails
	GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetchFn FetchFunc[T]) (T, error)

	// Delete removes key from the cache. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ItemCount returns the number of cached items.
	ItemCount(ctx context.Context) (int, error)
}
