package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Publish sends payload to every subscriber of channel.
func (c *Client) Publish(ctx context.Context, channel string, payload []byte) error {
	if c.conn == nil {
		return errNotInitialized
	}
	return c.conn.Publish(ctx, channel, payload).Err()
}

// Subscribe opens a subscription and waits for the server to confirm it, so
// nothing published after return is missed.
func (c *Client) Subscribe(ctx context.Context, channel string) (*redis.PubSub, error) {
	if c.conn == nil {
		return nil, errNotInitialized
	}
	sub := c.conn.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	return sub, nil
}
