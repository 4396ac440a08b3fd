// Package cache provides a small typed in-process cache on top of gocache and
// ristretto.
//
// Entries expire after a fixed TTL. Set waits for ristretto's write buffer to
// drain, so a Get that follows a successful Set on the same goroutine sees the
// value (unless the admission policy evicted it).
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"
	gocache "github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristrettostore "github.com/eko/gocache/store/ristretto/v4"
)

// Local is a typed cache of T values keyed by string.
type Local[T any] struct {
	client *ristretto.Cache
	cache  *gocache.Cache[T]
	ttl    time.Duration
}

// NewLocal creates a cache holding roughly maxItems entries (every entry has
// cost 1), each kept for ttl.
func NewLocal[T any](maxItems int64, ttl time.Duration) (*Local[T], error) {
	if maxItems <= 0 {
		return nil, fmt.Errorf("cache: maxItems must be positive, got %d", maxItems)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("cache: ttl must be positive, got %s", ttl)
	}

	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("cache: creating ristretto cache: %w", err)
	}

	return &Local[T]{
		client: client,
		cache:  gocache.New[T](ristrettostore.NewRistretto(client)),
		ttl:    ttl,
	}, nil
}

// Get returns the cached value for key. ok is false on a miss or expiry.
func (l *Local[T]) Get(ctx context.Context, key string) (value T, ok bool) {
	v, err := l.cache.Get(ctx, key)
	if err != nil {
		return value, false
	}
	return v, true
}

// Set stores value under key for the cache's TTL.
func (l *Local[T]) Set(ctx context.Context, key string, value T) error {
	if err := l.cache.Set(ctx, key, value,
		store.WithExpiration(l.ttl),
		store.WithCost(1),
	); err != nil {
		return fmt.Errorf("cache: setting %q: %w", key, err)
	}
	l.client.Wait()
	return nil
}

// Clear drops every entry.
func (l *Local[T]) Clear(ctx context.Context) error {
	return l.cache.Clear(ctx)
}

// Close stops ristretto's background goroutines.
func (l *Local[T]) Close() {
	l.client.Close()
}
