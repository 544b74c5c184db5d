package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Owner-checked mutations: only the holder of the stored token may delete or
// extend the key.
var (
	deleteIfValue = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
	expireIfValue = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Get returns redis.Nil when key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, error) {
	if c.conn == nil {
		return "", errNotInitialized
	}
	return c.conn.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if c.conn == nil {
		return errNotInitialized
	}
	return c.conn.Set(ctx, key, value, ttl).Err()
}

// SetNX reports whether this call created key.
func (c *Client) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if c.conn == nil {
		return false, errNotInitialized
	}
	return c.conn.SetNX(ctx, key, value, ttl).Result()
}

func (c *Client) Del(ctx context.Context, keys ...string) error {
	if c.conn == nil {
		return errNotInitialized
	}
	return c.conn.Del(ctx, keys...).Err()
}

// DelIfValue deletes key only while it still holds value.
func (c *Client) DelIfValue(ctx context.Context, key, value string) (bool, error) {
	return c.runOwned(ctx, deleteIfValue, key, value)
}

// ExpireIfValue resets key's TTL only while it still holds value.
func (c *Client) ExpireIfValue(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return c.runOwned(ctx, expireIfValue, key, value, ttl.Milliseconds())
}

func (c *Client) runOwned(ctx context.Context, script *redis.Script, key string, args ...any) (bool, error) {
	if c.conn == nil {
		return false, errNotInitialized
	}
	n, err := script.Run(ctx, c.conn, []string{key}, args...).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
