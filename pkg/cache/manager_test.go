package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Sternrassler/feature-harvester/pkg/service"
	"github.com/Sternrassler/feature-harvester/pkg/spatialref"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis connects to a local Redis on DB 15 and skips when none is
// running. The integration build tag runs the same checks against a container.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15,
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

func testDescriptor() *service.Descriptor {
	total := int64(5050)
	return &service.Descriptor{
		Kind:             service.KindFeatureLayer,
		Type:             "Feature Layer",
		IdentifierField:  "OBJECTID",
		OIDCandidates:    []string{"OBJECTID"},
		GeometryType:     "esriGeometryPolygon",
		SpatialReference: &spatialref.SpatialReference{WKID: 3857, Name: "WGS 84 / Pseudo-Mercator"},
		TotalCount:       &total,
	}
}

func TestNewManager(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	manager := NewManager(client)
	if manager == nil {
		t.Fatal("NewManager returned nil")
	}
	if manager.redis != client {
		t.Error("Manager redis client not set correctly")
	}
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestNewDescriptorStore_DefaultTTL(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	defer client.Close()

	store := NewDescriptorStore(NewManager(client), 0)
	if store.ttl != 10*time.Minute {
		t.Errorf("ttl = %v, want 10m", store.ttl)
	}
}

func runManagerSetAndGet(t *testing.T, client *redis.Client) {
	manager := NewManager(client)
	ctx := context.Background()
	key := CacheKey{LayerURL: "https://gis.example.com/FeatureServer/0"}

	entry := &CacheEntry{
		Descriptor: testDescriptor(),
		Expires:    time.Now().Add(5 * time.Minute),
		CachedAt:   time.Now(),
	}
	written := testutil.ToFloat64(CacheWrittenBytes.WithLabelValues("redis"))
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if delta := testutil.ToFloat64(CacheWrittenBytes.WithLabelValues("redis")) - written; delta <= 0 {
		t.Errorf("written bytes delta = %v, want > 0", delta)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Descriptor.IdentifierField != "OBJECTID" {
		t.Errorf("IdentifierField = %q, want OBJECTID", got.Descriptor.IdentifierField)
	}
	if n, ok := got.Descriptor.Count(); !ok || n != 5050 {
		t.Errorf("Count() = %d, %v, want 5050, true", n, ok)
	}
	if got.Descriptor.SpatialReference == nil || got.Descriptor.SpatialReference.WKID != 3857 {
		t.Errorf("SpatialReference = %+v, want wkid 3857", got.Descriptor.SpatialReference)
	}
}

func runManagerMissAndExpiry(t *testing.T, client *redis.Client) {
	manager := NewManager(client)
	ctx := context.Background()
	key := CacheKey{LayerURL: "https://gis.example.com/FeatureServer/9"}

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}

	expired := &CacheEntry{Descriptor: testDescriptor(), Expires: time.Now().Add(-time.Hour)}
	if err := manager.Set(ctx, key, expired); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}

	if err := manager.Set(ctx, key, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}

func runManagerDelete(t *testing.T, client *redis.Client) {
	manager := NewManager(client)
	ctx := context.Background()
	key := CacheKey{LayerURL: "https://gis.example.com/FeatureServer/1"}

	entry := &CacheEntry{Descriptor: testDescriptor(), Expires: time.Now().Add(5 * time.Minute)}
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func runManagerInvalidEntry(t *testing.T, client *redis.Client) {
	manager := NewManager(client)
	ctx := context.Background()
	key := CacheKey{LayerURL: "https://gis.example.com/FeatureServer/2"}

	if err := client.Set(ctx, key.String(), "{not json", time.Minute).Err(); err != nil {
		t.Fatalf("raw set failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func runDescriptorStore(t *testing.T, client *redis.Client) {
	store := NewDescriptorStore(NewManager(client), time.Minute)
	ctx := context.Background()
	q := service.Query{LayerURL: "https://gis.example.com/FeatureServer/3", Where: "A = 1"}

	if _, found, err := store.Get(ctx, q); err != nil || found {
		t.Fatalf("Get on empty store = found %v, err %v", found, err)
	}
	if err := store.Set(ctx, q, testDescriptor()); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	d, found, err := store.Get(ctx, q)
	if err != nil || !found {
		t.Fatalf("Get after Set = found %v, err %v", found, err)
	}
	if d.Kind != service.KindFeatureLayer {
		t.Errorf("Kind = %q, want feature-layer", d.Kind)
	}

	other := service.Query{LayerURL: q.LayerURL, Where: "A = 2"}
	if _, found, _ := store.Get(ctx, other); found {
		t.Error("different where clause must not share an entry")
	}
}

func TestManager_SetAndGet(t *testing.T)      { runManagerSetAndGet(t, setupTestRedis(t)) }
func TestManager_MissAndExpiry(t *testing.T)  { runManagerMissAndExpiry(t, setupTestRedis(t)) }
func TestManager_Delete(t *testing.T)         { runManagerDelete(t, setupTestRedis(t)) }
func TestManager_InvalidEntry(t *testing.T)   { runManagerInvalidEntry(t, setupTestRedis(t)) }
func TestDescriptorStore_RoundTrip(t *testing.T) { runDescriptorStore(t, setupTestRedis(t)) }
