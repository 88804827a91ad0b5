package cache

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a test redis client, skipping when no local
// redis is available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // Use a separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available for testing: %v", err)
	}

	if err := client.FlushDB(ctx).Err(); err != nil {
		t.Fatalf("Failed to flush test DB: %v", err)
	}

	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestManager_SetAndGet(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := Key{Path: "/v1/apps/123", Query: url.Values{"limit": []string{"50"}}}
	entry := NewEntry([]byte(`{"data": {"id": "123"}}`), 200, time.Minute)

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
	if got.StatusCode != 200 {
		t.Errorf("StatusCode = %d, want 200", got.StatusCode)
	}
}

func TestManager_Miss(t *testing.T) {
	m := NewManager(setupTestRedis(t))

	_, err := m.Get(context.Background(), Key{Path: "/v1/apps/unknown"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_ExpiredEntryNotCached(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := Key{Path: "/v1/apps/123"}
	entry := NewEntry([]byte(`{"data": []}`), 200, -time.Second)

	if err := m.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	_, err := m.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() error = %v, want ErrCacheMiss for an expired entry", err)
	}
}

func TestManager_Delete(t *testing.T) {
	m := NewManager(setupTestRedis(t))
	ctx := context.Background()

	key := Key{Path: "/v1/apps/123"}
	if err := m.Set(ctx, key, NewEntry([]byte(`{}`), 200, time.Minute)); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	if err := m.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	_, err := m.Get(ctx, key)
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Get() after Delete error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_NilEntry(t *testing.T) {
	m := NewManager(setupTestRedis(t))

	if err := m.Set(context.Background(), Key{Path: "/x"}, nil); err == nil {
		t.Error("Set(nil) should fail")
	}
}
