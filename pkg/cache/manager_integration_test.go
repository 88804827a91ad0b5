//go:build integration

package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedisContainer starts a redis container and returns a client.
func setupRedisContainer(t *testing.T) (*redis.Client, func()) {
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

	client := redis.NewClient(&redis.Options{
		Addr: endpoint,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("Failed to connect to Redis: %v", err)
	}

	cleanup := func() {
		client.Close()
		redisContainer.Terminate(ctx)
	}

	return client, cleanup
}

func TestManager_Integration_RoundTrip(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	m := NewManager(redisClient)
	ctx := context.Background()

	key := Key{Path: "/v1/apps/123/appStoreVersions"}
	entry := NewEntry([]byte(`{"data": [{"id": "v1"}], "links": {"self": "x"}}`), 200, time.Minute)

	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := m.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Body) != string(entry.Body) {
		t.Errorf("Body = %s, want %s", got.Body, entry.Body)
	}
}

func TestManager_Integration_RedisTTLEviction(t *testing.T) {
	redisClient, cleanup := setupRedisContainer(t)
	defer cleanup()

	m := NewManager(redisClient)
	ctx := context.Background()

	key := Key{Path: "/v1/apps/123"}
	entry := NewEntry([]byte(`{"data": {}}`), 200, time.Second)

	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	// Redis evicts the key itself once the TTL passes.
	time.Sleep(1500 * time.Millisecond)

	_, err := m.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after TTL error = %v, want ErrCacheMiss", err)
	}
}
