// Package cache opens Redis connections for session storage.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// PingTimeout bounds the connectivity check in New.
const PingTimeout = 5 * time.Second

// Option adjusts the client options before connecting.
type Option func(*redis.Options)

// WithDB selects a logical database.
func WithDB(db int) Option {
	return func(o *redis.Options) { o.DB = db }
}

// New creates a Redis client and verifies it answers PING. The client is
// closed when the ping fails.
func New(ctx context.Context, addr string, opts ...Option) (*redis.Client, error) {
	options := &redis.Options{Addr: addr}
	for _, opt := range opts {
		opt(options)
	}
	client := redis.NewClient(options)

	ctx, cancel := context.WithTimeout(ctx, PingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("platform/cache: ping %s: %w", addr, err)
	}

	return client, nil
}
