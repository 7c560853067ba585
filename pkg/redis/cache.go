package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Cache provides typed caching on top of Client. Values are JSON-encoded and
// expire after their TTL; a missing or failing cache never surfaces to the
// caller as an error on the read path.
type Cache struct {
	client *Client
	prefix string
}

// NewCache creates a new cache helper.
func NewCache(client *Client, prefix string) *Cache {
	return &Cache{
		client: client,
		prefix: prefix,
	}
}

// Get retrieves a cached value. The bool reports whether the key was found.
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	if !c.client.Enabled() {
		return false, nil
	}

	data, err := c.client.Redis().Get(ctx, c.fullKey(key)).Bytes()
	if err != nil {
		// Key not found or transport error: treat both as a miss.
		return false, nil
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return false, fmt.Errorf("cache unmarshal failed: %w", err)
	}

	return true, nil
}

// Set stores a value in cache with TTL.
func (c *Cache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if !c.client.Enabled() {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal failed: %w", err)
	}

	return c.client.Redis().Set(ctx, c.fullKey(key), data, ttl).Err()
}

// Delete removes cached values.
func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if !c.client.Enabled() || len(keys) == 0 {
		return nil
	}

	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.fullKey(k)
	}
	return c.client.Redis().Del(ctx, full...).Err()
}

// Incr atomically increments a counter key and returns the new value.
// Counters never expire; they version derived cache namespaces.
func (c *Cache) Incr(ctx context.Context, key string) (int64, error) {
	if !c.client.Enabled() {
		return 0, nil
	}
	return c.client.Redis().Incr(ctx, c.fullKey(key)).Result()
}

// Counter reads a counter key, defaulting to zero when absent.
func (c *Cache) Counter(ctx context.Context, key string) int64 {
	if !c.client.Enabled() {
		return 0
	}
	v, err := c.client.Redis().Get(ctx, c.fullKey(key)).Int64()
	if err != nil {
		return 0
	}
	return v
}

func (c *Cache) fullKey(key string) string {
	return fmt.Sprintf("%s:cache:%s", c.prefix, key)
}

// LatestYieldsKey addresses the per-tenor latest auction result.
func LatestYieldsKey(tenorDays int) string {
	return fmt.Sprintf("latest:%d", tenorDays)
}

// HistoryGenKey versions the whole range-query namespace; bumping it on
// every write invalidates all cached ranges at once.
const HistoryGenKey = "history:gen"

// HistoryKey addresses a query-signature range of auction results under a
// namespace generation.
func HistoryKey(gen int64, tenorDays int, from, to string) string {
	return fmt.Sprintf("history:%d:%d:%s:%s", gen, tenorDays, from, to)
}
