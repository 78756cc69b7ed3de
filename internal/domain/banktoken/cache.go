// Package banktoken caches upstream bank tokens per (bank, client) so that
// concurrent requests share one authentication call.
package banktoken

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"syntax/internal/domain/bank"
)

// DefaultMargin is subtracted from the upstream ttl so a cached token is
// never handed out moments before the bank expires it.
const DefaultMargin = 300 * time.Second

var (
	tokenMeter        = otel.Meter("syntax/banktoken")
	tokenCacheHits, _ = tokenMeter.Int64Counter("banktoken.cache.hits",
		metric.WithDescription("Bank token lookups served from cache"))
	tokenCacheMisses, _ = tokenMeter.Int64Counter("banktoken.cache.misses",
		metric.WithDescription("Bank token lookups that called the bank"))
)

// Token is a cached bearer token and the seconds it stays usable.
type Token struct {
	AccessToken string
	ExpiresIn   int
}

type cacheKey struct {
	bank     bank.ID
	clientID string
	secret   string
}

type cacheEntry struct {
	token     string
	expiresAt time.Time
}

// Cache maps (bank, client, secret fingerprint) to a live token. Reads of a
// fresh entry take no lock; a miss takes a per-key mutex and re-checks
// before calling the bank, so concurrent misses collapse into one call.
type Cache struct {
	gateways bank.Registry
	margin   time.Duration
	now      func() time.Time

	entries sync.Map
	locks   sync.Map
}

type Option func(*Cache)

func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

func WithMargin(d time.Duration) Option {
	return func(c *Cache) { c.margin = d }
}

func NewCache(gateways bank.Registry, opts ...Option) *Cache {
	c := &Cache{
		gateways: gateways,
		margin:   DefaultMargin,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a live token for the client at the given bank, authenticating
// upstream only when no fresh entry exists. Upstream failures are returned
// as-is; nothing is retried here.
func (c *Cache) Get(ctx context.Context, bankID bank.ID, clientID, clientSecret string) (*Token, error) {
	key := cacheKey{bank: bankID, clientID: clientID, secret: fingerprint(clientSecret)}
	attrs := metric.WithAttributes(attribute.String("bank.id", string(bankID)))

	if tok, ok := c.lookup(key); ok {
		tokenCacheHits.Add(ctx, 1, attrs)
		return tok, nil
	}

	mu := c.lockFor(key)
	mu.Lock()
	defer mu.Unlock()

	if tok, ok := c.lookup(key); ok {
		tokenCacheHits.Add(ctx, 1, attrs)
		return tok, nil
	}
	tokenCacheMisses.Add(ctx, 1, attrs)

	gw, err := c.gateways.Get(bankID)
	if err != nil {
		return nil, err
	}
	upstream, err := gw.Authenticate(ctx, clientID, clientSecret)
	if err != nil {
		return nil, err
	}

	now := c.now()
	expiresAt := now.Add(time.Duration(upstream.ExpiresIn)*time.Second - c.margin)
	c.entries.Store(key, cacheEntry{token: upstream.AccessToken, expiresAt: expiresAt})

	return &Token{AccessToken: upstream.AccessToken, ExpiresIn: secondsUntil(now, expiresAt)}, nil
}

// Invalidate drops the cached token, e.g. after the bank rejected it.
func (c *Cache) Invalidate(bankID bank.ID, clientID, clientSecret string) {
	c.entries.Delete(cacheKey{bank: bankID, clientID: clientID, secret: fingerprint(clientSecret)})
}

// Len reports how many entries are currently stored, live or not.
func (c *Cache) Len() int {
	n := 0
	c.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (c *Cache) lookup(key cacheKey) (*Token, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(cacheEntry)
	now := c.now()
	if !now.Before(e.expiresAt) {
		return nil, false
	}
	return &Token{AccessToken: e.token, ExpiresIn: secondsUntil(now, e.expiresAt)}, true
}

func (c *Cache) lockFor(key cacheKey) *sync.Mutex {
	v, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func secondsUntil(now, t time.Time) int {
	d := t.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

func fingerprint(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}
