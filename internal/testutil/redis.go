// Package testutil provides test helpers: a Redis testcontainer for
// integration tests and in-memory fakes for unit tests.
package testutil

import (
	"context"
	"testing"
	"time"

	rediscontainer "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/cory-johannsen/storymode/internal/config"
	"github.com/cory-johannsen/storymode/internal/storage/redis"
)

// RedisContainer holds a running Redis test container and a connected
// client against it.
type RedisContainer struct {
	Client *redis.Client
	Config config.RedisConfig
}

// StartRedis starts a Redis container for integration testing. The
// container and client are cleaned up automatically when the test ends.
// Tests running with -short skip instead of starting a container.
//
// Precondition: Docker must be available in the test environment.
func StartRedis(t *testing.T) *RedisContainer {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()
	container, err := rediscontainer.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("starting redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminating redis container: %v", err)
		}
	})

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("resolving redis endpoint: %v", err)
	}

	cfg := config.RedisConfig{
		Addr:         endpoint,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 1,
	}

	client, err := redis.NewClient(ctx, cfg)
	if err != nil {
		t.Fatalf("connecting to redis container: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	return &RedisContainer{Client: client, Config: cfg}
}
