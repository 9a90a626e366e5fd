package catalog

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"sales-agent/internal/domain"
)

const (
	defaultCacheTTL = 5 * time.Minute
	// failureBackoff is how long a failed read is remembered before the
	// source is tried again.
	failureBackoff = 15 * time.Second
)

// Source lists the products of the catalog store.
type Source interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
}

// StaticSource serves a fixed product list.
type StaticSource []domain.Product

func (s StaticSource) ListProducts(context.Context) ([]domain.Product, error) {
	return slices.Clone(s), nil
}

// Cache is a process-wide read-through cache over a Source. Reads never fail:
// an unreachable source yields the last good list, or an empty one.
type Cache struct {
	src Source
	ttl time.Duration
	now func() time.Time

	mu       sync.RWMutex
	loaded   bool
	products []domain.Product
	loadedAt time.Time
	retryAt  time.Time
}

func NewCache(src Source, ttl time.Duration) (*Cache, error) {
	if src == nil {
		return nil, errors.New("catalog: source must not be nil")
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Cache{src: src, ttl: ttl, now: time.Now}, nil
}

// Products returns the cached catalog, refreshing it once the TTL has elapsed.
func (c *Cache) Products(ctx context.Context) []domain.Product {
	c.mu.RLock()
	if c.fresh() || c.backingOff() {
		out := c.products
		c.mu.RUnlock()
		return out
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fresh() || c.backingOff() {
		return c.products
	}

	products, err := c.src.ListProducts(ctx)
	if err != nil {
		c.retryAt = c.now().Add(min(failureBackoff, c.ttl))
		slog.Warn("catalog: list products failed, serving last known catalog", "err", err, "cached", len(c.products), "retry_at", c.retryAt)
		return c.products
	}
	if len(products) == 0 {
		slog.Warn("catalog: no products loaded")
	}
	c.products = products
	c.loaded = true
	c.retryAt = time.Time{}
	c.loadedAt = c.now()
	return c.products
}

// Invalidate forces the next Products call to reload from the source.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.loaded = false
	c.retryAt = time.Time{}
	c.mu.Unlock()
}

func (c *Cache) backingOff() bool {
	return !c.retryAt.IsZero() && c.now().Before(c.retryAt)
}

func (c *Cache) fresh() bool {
	return c.loaded && c.now().Sub(c.loadedAt) < c.ttl
}
