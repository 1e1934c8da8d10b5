//go:build integration

package cache

import (
	"context"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a Redis container and returns a client.
func setupRedisContainer(t *testing.T) *redis.Client {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	redisContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	endpoint, err := redisContainer.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("Failed to get Redis endpoint: %v", err)
	}

	client := redis.NewClient(&redis.Options{Addr: endpoint})
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	t.Cleanup(func() {
		client.Close()
		_ = redisContainer.Terminate(context.Background())
	})
	return client
}

func TestManager_Integration(t *testing.T) {
	client := setupRedisContainer(t)

	t.Run("set and get", func(t *testing.T) { runManagerSetAndGet(t, client) })
	t.Run("miss and expiry", func(t *testing.T) { runManagerMissAndExpiry(t, client) })
	t.Run("delete", func(t *testing.T) { runManagerDelete(t, client) })
	t.Run("invalid entry", func(t *testing.T) { runManagerInvalidEntry(t, client) })
	t.Run("descriptor store", func(t *testing.T) { runDescriptorStore(t, client) })
}
