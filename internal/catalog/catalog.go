// Package catalog answers product existence questions for document lines.
// The catalog itself is owned by another system; this package only reads it.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

// ProductChecker reports whether a product exists.
type ProductChecker interface {
	ProductExists(ctx context.Context, productID int64) (bool, error)
}

// PostgresChecker reads the products table shared with the catalog service.
type PostgresChecker struct {
	pool *pgxpool.Pool
}

// NewPostgresChecker constructs PostgresChecker.
func NewPostgresChecker(pool *pgxpool.Pool) *PostgresChecker {
	return &PostgresChecker{pool: pool}
}

// ProductExists implements ProductChecker.
func (c *PostgresChecker) ProductExists(ctx context.Context, productID int64) (bool, error) {
	var exists bool
	err := c.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND deleted_at IS NULL)`, productID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("catalog: product lookup: %w", err)
	}
	return exists, nil
}

// CachedChecker caches answers in Redis. Concurrent misses for the same
// product collapse into one upstream lookup.
type CachedChecker struct {
	next   ProductChecker
	client redis.UniversalClient
	ttl    time.Duration
	group  singleflight.Group
}

// NewCachedChecker wraps next with a Redis cache.
func NewCachedChecker(next ProductChecker, client redis.UniversalClient, ttl time.Duration) *CachedChecker {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedChecker{next: next, client: client, ttl: ttl}
}

// ProductExists implements ProductChecker.
func (c *CachedChecker) ProductExists(ctx context.Context, productID int64) (bool, error) {
	key := shared.ProductExistsCacheKey(productID)
	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		return cached == "1", nil
	}
	if err != redis.Nil {
		// Cache outage falls through to the catalog.
		return c.next.ProductExists(ctx, productID)
	}
	resultChan := c.group.DoChan(strconv.FormatInt(productID, 10), func() (interface{}, error) {
		exists, err := c.next.ProductExists(ctx, productID)
		if err != nil {
			return false, err
		}
		value := "0"
		if exists {
			value = "1"
		}
		_ = c.client.Set(ctx, key, value, c.ttl).Err()
		return exists, nil
	})
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

// Invalidate drops the cached answer for a product.
func (c *CachedChecker) Invalidate(ctx context.Context, productID int64) error {
	return c.client.Del(ctx, shared.ProductExistsCacheKey(productID)).Err()
}

// MemoryChecker holds a fixed product set. With AllowAll set every
// positive id exists, which suits deployments without a catalog table.
type MemoryChecker struct {
	mu       sync.RWMutex
	products map[int64]struct{}
	AllowAll bool
}

// NewMemoryChecker constructs MemoryChecker seeded with ids.
func NewMemoryChecker(ids ...int64) *MemoryChecker {
	c := &MemoryChecker{products: make(map[int64]struct{}, len(ids))}
	c.Add(ids...)
	return c
}

// Add registers products.
func (c *MemoryChecker) Add(ids ...int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range ids {
		c.products[id] = struct{}{}
	}
}

// ProductExists implements ProductChecker.
func (c *MemoryChecker) ProductExists(_ context.Context, productID int64) (bool, error) {
	if productID <= 0 {
		return false, nil
	}
	if c.AllowAll {
		return true, nil
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.products[productID]
	return ok, nil
}
