//go:build integration

package cache

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Sternrassler/keypage/internal/testutil"
	"github.com/Sternrassler/keypage/pkg/paging"
	"github.com/Sternrassler/keypage/pkg/source"
)

// setupRedis starts a Redis container and returns a client
func setupRedis(t *testing.T) (*redis.Client, func()) {
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

func TestManager_Integration_SetGetDelete(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	manager := NewManager(client)
	ctx := context.Background()
	key := CacheKey{Source: "items", LoadType: paging.Refresh, LoadSize: 10}

	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Fatalf("Get() on empty cache error = %v, want ErrCacheMiss", err)
	}

	entry := NewEntry([]byte(`{"data":[]}`), 0, 5*time.Minute)
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got.Data) != string(entry.Data) {
		t.Errorf("Data = %s, want %s", got.Data, entry.Data)
	}

	ttl := client.TTL(ctx, key.String()).Val()
	if ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("redis TTL = %v, want (0, 5m]", ttl)
	}

	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get() after Delete error = %v, want ErrCacheMiss", err)
	}

	// Expired entries are not stored
	expired := &CacheEntry{Data: []byte(`{}`), Expires: time.Now().Add(-time.Hour)}
	if err := manager.Set(ctx, key, expired); err != nil {
		t.Fatalf("Set() expired error = %v", err)
	}
	if _, err := manager.Get(ctx, key); err != ErrCacheMiss {
		t.Errorf("Get() expired error = %v, want ErrCacheMiss", err)
	}
}

func TestManager_Integration_Generation(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	manager := NewManager(client)
	ctx := context.Background()

	gen, err := manager.Generation(ctx, "items")
	if err != nil || gen != 0 {
		t.Fatalf("Generation() = %d, %v; want 0, nil", gen, err)
	}
	for want := int64(1); want <= 3; want++ {
		gen, err := manager.BumpGeneration(ctx, "items")
		if err != nil || gen != want {
			t.Fatalf("BumpGeneration() = %d, %v; want %d, nil", gen, err, want)
		}
	}
	if gen, _ := manager.Generation(ctx, "other"); gen != 0 {
		t.Errorf("Generation(other) = %d, want 0", gen)
	}
}

func TestSource_Integration_HitMissInvalidate(t *testing.T) {
	client, cleanup := setupRedis(t)
	defer cleanup()

	ctx := context.Background()
	items := testutil.ItemsByNameID()
	dataset := source.NewSlice(items, testutil.KeyOf, testutil.CompareKeys)
	inner := testutil.NewScriptedSource(paging.NewWindowSource[testutil.Key, testutil.Item](dataset))
	cached := NewSource[testutil.Key, testutil.Item](inner, NewManager(client), SourceConfig[testutil.Key]{
		Name:      "items",
		EncodeKey: testutil.Key.String,
		TTL:       time.Minute,
	})

	params := paging.LoadParams[testutil.Key]{
		Type: paging.Refresh, Key: testutil.KeyPtr(items[49].Key()), LoadSize: 10, PlaceholdersEnabled: true,
	}

	res, status := cached.LoadWithStatus(ctx, params)
	first, err := paging.Resolve[testutil.Key, testutil.Item](res)
	if err != nil {
		t.Fatalf("first Load() error = %v", err)
	}
	if status != StatusMiss {
		t.Errorf("first status = %s, want MISS", status)
	}

	res, status = cached.LoadWithStatus(ctx, params)
	second, err := paging.Resolve[testutil.Key, testutil.Item](res)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if status != StatusHit {
		t.Errorf("second status = %s, want HIT", status)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("cached page = %+v, want %+v", second, first)
	}
	if inner.Calls() != 1 {
		t.Errorf("inner calls = %d, want 1", inner.Calls())
	}

	// Failures are passed through and never cached
	failParams := params
	failParams.LoadSize = 4
	inner.FailWith(context.DeadlineExceeded)
	if _, err := paging.Resolve[testutil.Key, testutil.Item](cached.Load(ctx, failParams)); err == nil {
		t.Fatal("Load() with scripted failure succeeded")
	}
	if _, status := cached.LoadWithStatus(ctx, failParams); status != StatusMiss {
		t.Errorf("status after failure = %s, want MISS", status)
	}

	// After a mutation and invalidation the page is reloaded
	dataset.Remove(items[0].Key())
	if err := cached.Invalidate(ctx); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	res, status = cached.LoadWithStatus(ctx, params)
	third, err := paging.Resolve[testutil.Key, testutil.Item](res)
	if err != nil {
		t.Fatalf("third Load() error = %v", err)
	}
	if status != StatusMiss {
		t.Errorf("status after invalidate = %s, want MISS", status)
	}
	if third.ItemsBefore+len(third.Data)+third.ItemsAfter != len(items)-1 {
		t.Errorf("reloaded page does not reflect removal: %d/%d/%d",
			third.ItemsBefore, len(third.Data), third.ItemsAfter)
	}
}
