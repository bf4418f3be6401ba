// Package redis provides the client behind the notification dedupe store.
// The engine's only Redis traffic is SET NX with a TTL, so the pool stays
// small and calls fail fast instead of queueing behind a slow server.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"coitrack/internal/platform/config"
)

// Dedupe traffic is a single short command per notification; a handful of
// connections covers a busy dispatcher.
const (
	defaultPoolSize = 4
	defaultTimeout  = 2 * time.Second
)

// Client wraps the go-redis client with a health check.
type Client struct {
	*redis.Client
}

// New builds a client from configuration. A nil client (empty URL) means
// dedupe is disabled and every notification is treated as a first delivery.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	opts.PoolSize = cfg.PoolSize
	if opts.PoolSize <= 0 {
		opts.PoolSize = defaultPoolSize
	}
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = orDefault(cfg.DialTimeout)
	opts.ReadTimeout = orDefault(cfg.ReadTimeout)
	opts.WriteTimeout = orDefault(cfg.WriteTimeout)
	// A missed dedupe check delivers a duplicate notice; a retry storm stalls
	// the dispatch path. One retry, then give up.
	opts.MaxRetries = 1

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

func orDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return defaultTimeout
	}
	return d
}

// Health reports whether the connection is usable.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close closes the connection pool.
func (c *Client) Close() error {
	return c.Client.Close()
}
