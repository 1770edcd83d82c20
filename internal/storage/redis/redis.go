// Package redis provides Redis persistence and messaging primitives using
// go-redis v9. It hosts the daily dungeon registry, the per-dungeon player
// state store, and the community upload store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cory-johannsen/storymode/internal/config"
)

// ErrUnavailable indicates the backing Redis store could not be reached.
// Callers must never fabricate state locally when they see it.
var ErrUnavailable = errors.New("store unavailable")

// storeErr wraps a transport-level Redis failure with ErrUnavailable so
// callers can classify it with errors.Is.
func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

// Client wraps a go-redis client with health-check and lifecycle methods.
type Client struct {
	rdb *goredis.Client
}

// NewClient connects a Redis client from the given configuration.
//
// Precondition: cfg must contain a valid address.
// Postcondition: Returns a connected Client or a non-nil error. The client
// answered a PING upon successful return.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, storeErr("pinging redis", err)
	}

	return &Client{rdb: rdb}, nil
}

// Health checks that Redis is reachable within the given timeout.
//
// Precondition: The client must not be closed.
// Postcondition: Returns nil if Redis responds within the timeout.
func (c *Client) Health(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Close releases the client's connection pool.
//
// Postcondition: The client is no longer usable after calling Close.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// DB returns the underlying go-redis client for use by repositories and
// the channel bus.
func (c *Client) DB() *goredis.Client {
	return c.rdb
}
