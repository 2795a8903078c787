package container

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache wraps the optional Redis client backing the management plane's
// query cache and the RPC engine's message-id dedup assist (§9's
// "process-wide environment" gets one shared client rather than each
// component dialing its own).
type Cache struct {
	client *redis.Client
}

// NewCache dials addr, or returns a nil-backed Cache if addr is empty
// so the container still runs without Redis configured.
func NewCache(ctx context.Context, addr string) (*Cache, error) {
	if addr == "" {
		return &Cache{}, nil
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	return &Cache{client: client}, nil
}

// SeenMessageID records messageID as processed and reports whether it
// had already been seen within ttl, the dedup assist the RPC engine's
// own in-memory tracking doesn't cover across process restarts.
func (c *Cache) SeenMessageID(ctx context.Context, messageID string, ttl time.Duration) (bool, error) {
	if c == nil || c.client == nil {
		return false, nil
	}
	ok, err := c.client.SetNX(ctx, "rpc:seen:"+messageID, 1, ttl).Result()
	if err != nil {
		return false, err
	}
	return !ok, nil
}

// GetSnapshot returns a cached management-plane query response, if
// present.
func (c *Cache) GetSnapshot(ctx context.Context, key string) (string, bool, error) {
	if c == nil || c.client == nil {
		return "", false, nil
	}
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

// PutSnapshot caches a management-plane query response for ttl.
func (c *Cache) PutSnapshot(ctx context.Context, key, value string, ttl time.Duration) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Set(ctx, key, value, ttl).Err()
}

// Close releases the underlying connection, if any.
func (c *Cache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
