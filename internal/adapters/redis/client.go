package redis

import (
	"context"

	"github.com/redis/go-redis/v9"

	"airquality/internal/adapters/config"
	"airquality/pkg/errors"
)

// Client wraps the Redis connection used by the prediction cache
type Client struct {
	rdb *redis.Client
}

// NewClient connects and pings
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Mark(errors.Wrapf(err, "failed to ping redis at %s", cfg.Addr()), errors.ErrUnavailable)
	}

	return &Client{rdb: rdb}, nil
}

// Client returns the underlying Redis client
func (c *Client) Client() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Health checks Redis connectivity
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}
