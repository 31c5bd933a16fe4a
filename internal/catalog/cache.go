package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keeps product snapshots in Redis as JSON.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache returns a product cache. A non-positive ttl defaults to five minutes.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func productKey(productID int64) string {
	return "catalog:product:" + strconv.FormatInt(productID, 10)
}

func (c *Cache) disabled() bool { return c == nil || c.client == nil }

// Get returns the cached product and whether it was present. A snapshot that
// no longer decodes is treated as a miss and dropped.
func (c *Cache) Get(ctx context.Context, productID int64) (Product, bool, error) {
	if c.disabled() {
		return Product{}, false, nil
	}
	raw, err := c.client.Get(ctx, productKey(productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Product{}, false, nil
	}
	if err != nil {
		return Product{}, false, fmt.Errorf("read product %d: %w", productID, err)
	}
	var p Product
	if err := json.Unmarshal(raw, &p); err != nil {
		_ = c.client.Del(ctx, productKey(productID)).Err()
		return Product{}, false, fmt.Errorf("decode product %d: %w", productID, err)
	}
	return p, true, nil
}

// Put stores p for the configured TTL.
func (c *Cache) Put(ctx context.Context, p Product) error {
	if c.disabled() {
		return nil
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, productKey(p.ID), raw, c.ttl).Err()
}

// Invalidate drops the cached product master data.
func (c *Cache) Invalidate(ctx context.Context, productID int64) error {
	if c.disabled() {
		return nil
	}
	return c.client.Del(ctx, productKey(productID)).Err()
}
