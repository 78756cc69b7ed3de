// Package cache provides a short-lived read-through cache. Entries are
// replaced wholesale on refresh; concurrent misses for one key share a
// single fetch.
package cache

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

var (
	cacheMeter   = otel.Meter("syntax/cache")
	cacheHits, _ = cacheMeter.Int64Counter("cache.hits",
		metric.WithDescription("Lookups served from a TTL cache"))
	cacheMisses, _ = cacheMeter.Int64Counter("cache.misses",
		metric.WithDescription("Lookups that ran the fetch function"))
)

// Result describes where a value came from.
type Result[V any] struct {
	Value     V
	FromCache bool
	Age       time.Duration
}

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// TTL is a read-through cache keyed by string.
type TTL[V any] struct {
	name  string
	ttl   time.Duration
	now   func() time.Time
	group singleflight.Group

	mu      sync.RWMutex
	entries map[string]entry[V]
}

// NewTTL creates a cache whose entries stay fresh for ttl. name labels the
// hit and miss metrics.
func NewTTL[V any](name string, ttl time.Duration) *TTL[V] {
	return &TTL[V]{
		name:    name,
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry[V]),
	}
}

// WithClock replaces the time source. Meant for tests.
func (c *TTL[V]) WithClock(now func() time.Time) *TTL[V] {
	c.now = now
	return c
}

// fetchTimeout bounds a shared fetch once it no longer follows the
// cancellation of the caller that started it.
const fetchTimeout = 30 * time.Second

// GetOrFetch returns the cached value for key when it is younger than the
// ttl, otherwise it calls fetch and stores the result. Fetch errors are not
// cached.
//
// The fetch is shared by every caller waiting on key, so it runs on a
// context detached from the first caller's cancellation. A caller whose
// own ctx ends stops waiting; the fetch carries on for the others.
func (c *TTL[V]) GetOrFetch(ctx context.Context, key string, fetch func(ctx context.Context) (V, error)) (Result[V], error) {
	attrs := metric.WithAttributes(attribute.String("cache.name", c.name))

	if r, ok := c.lookup(key); ok {
		cacheHits.Add(ctx, 1, attrs)
		return r, nil
	}

	ch := c.group.DoChan(key, func() (any, error) {
		if r, ok := c.lookup(key); ok {
			return r, nil
		}
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		cacheMisses.Add(fctx, 1, attrs)

		value, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		c.entries[key] = entry[V]{value: value, fetchedAt: c.now()}
		c.mu.Unlock()
		return Result[V]{Value: value}, nil
	})

	select {
	case <-ctx.Done():
		var zero Result[V]
		return zero, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			var zero Result[V]
			return zero, res.Err
		}
		return res.Val.(Result[V]), nil
	}
}

// Invalidate drops one key.
func (c *TTL[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len reports the number of stored entries, fresh or stale.
func (c *TTL[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Purge removes stale entries and reports how many it dropped. Lookups
// already ignore them; Purge only releases their memory.
func (c *TTL[V]) Purge() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.ttl {
			delete(c.entries, k)
			n++
		}
	}
	return n
}

func (c *TTL[V]) lookup(key string) (Result[V], bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Result[V]{}, false
	}
	age := c.now().Sub(e.fetchedAt)
	if age < 0 {
		age = 0
	}
	if age >= c.ttl {
		return Result[V]{}, false
	}
	return Result[V]{Value: e.value, FromCache: true, Age: age}, true
}
