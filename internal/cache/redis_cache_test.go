package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/LeventeLantos/message-relay/internal/model"
)

func newTestCache(t *testing.T, ttl time.Duration) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewRedisCache(rdb, ttl), mr
}

func TestRedisCache_StoreStatus_Success(t *testing.T) {
	t.Parallel()

	cache, mr := newTestCache(t, 10*time.Second)
	ctx := context.Background()

	reason := "email provider: unexpected status code: 500"
	updatedAt := time.Date(2026, 2, 2, 18, 0, 0, 0, time.UTC)

	if err := cache.StoreStatus(ctx, Snapshot{
		MessageID: "m-42",
		Status:    model.Failed,
		LastError: &reason,
		UpdatedAt: updatedAt,
	}); err != nil {
		t.Fatalf("StoreStatus() error: %v", err)
	}

	key := "msg:m-42:status"

	if !mr.Exists(key) {
		t.Fatalf("expected key %q to exist", key)
	}
	if ttl := mr.TTL(key); ttl <= 0 {
		t.Fatalf("expected TTL to be set, got %v", ttl)
	}

	raw, err := mr.Get(key)
	if err != nil {
		t.Fatalf("failed to get key %q: %v", key, err)
	}

	var got Snapshot
	if err := json.Unmarshal([]byte(raw), &got); err != nil {
		t.Fatalf("failed to unmarshal value: %v", err)
	}
	if got.Status != model.Failed {
		t.Fatalf("expected status FAILED, got %q", got.Status)
	}
	if got.LastError == nil || *got.LastError != reason {
		t.Fatalf("expected last error %q, got %v", reason, got.LastError)
	}
	if !got.UpdatedAt.Equal(updatedAt) {
		t.Fatalf("expected UpdatedAt %v, got %v", updatedAt, got.UpdatedAt)
	}
}

func TestRedisCache_LoadStatus_OverwrittenValue(t *testing.T) {
	t.Parallel()

	cache, _ := newTestCache(t, time.Minute)
	ctx := context.Background()

	if err := cache.StoreStatus(ctx, Snapshot{MessageID: "m-1", Status: model.Sending, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("first StoreStatus() error: %v", err)
	}
	if err := cache.StoreStatus(ctx, Snapshot{MessageID: "m-1", Status: model.Sent, UpdatedAt: time.Now()}); err != nil {
		t.Fatalf("second StoreStatus() error: %v", err)
	}

	got, err := cache.LoadStatus(ctx, "m-1")
	if err != nil {
		t.Fatalf("LoadStatus() error: %v", err)
	}
	if got.Status != model.Sent {
		t.Fatalf("expected overwritten status SENT, got %q", got.Status)
	}
}

func TestRedisCache_LoadStatus_Miss(t *testing.T) {
	t.Parallel()

	cache, mr := newTestCache(t, time.Second)
	ctx := context.Background()

	if _, err := cache.LoadStatus(ctx, "nope"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss, got %v", err)
	}

	if err := cache.StoreStatus(ctx, Snapshot{MessageID: "m-2", Status: model.Queued}); err != nil {
		t.Fatalf("StoreStatus() error: %v", err)
	}
	mr.FastForward(2 * time.Second)

	if _, err := cache.LoadStatus(ctx, "m-2"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after expiry, got %v", err)
	}
}

func TestRedisCache_DeleteStatus(t *testing.T) {
	t.Parallel()

	cache, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	if err := cache.StoreStatus(ctx, Snapshot{MessageID: "m-3", Status: model.Sent}); err != nil {
		t.Fatalf("StoreStatus() error: %v", err)
	}
	if err := cache.DeleteStatus(ctx, "m-3"); err != nil {
		t.Fatalf("DeleteStatus() error: %v", err)
	}
	if mr.Exists("msg:m-3:status") {
		t.Fatalf("expected status key removed")
	}
	if _, err := cache.LoadStatus(ctx, "m-3"); !errors.Is(err, ErrMiss) {
		t.Fatalf("expected ErrMiss after delete, got %v", err)
	}

	// deleting an absent snapshot is not an error
	if err := cache.DeleteStatus(ctx, "m-3"); err != nil {
		t.Fatalf("second DeleteStatus() error: %v", err)
	}
}

func TestRedisCache_ClaimRelease(t *testing.T) {
	t.Parallel()

	cache, mr := newTestCache(t, time.Hour)
	ctx := context.Background()

	ok, err := cache.Claim(ctx, "inbound:abc")
	if err != nil || !ok {
		t.Fatalf("expected first claim to win, got ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("dedupe:inbound:abc"); ttl <= 0 {
		t.Fatalf("expected claim TTL, got %v", ttl)
	}

	ok, err = cache.Claim(ctx, "inbound:abc")
	if err != nil || ok {
		t.Fatalf("expected second claim to lose, got ok=%v err=%v", ok, err)
	}

	if err := cache.Release(ctx, "inbound:abc"); err != nil {
		t.Fatalf("Release() error: %v", err)
	}

	ok, err = cache.Claim(ctx, "inbound:abc")
	if err != nil || !ok {
		t.Fatalf("expected claim after release to win, got ok=%v err=%v", ok, err)
	}
}

func TestRedisCache_StoreStatus_ContextCanceled(t *testing.T) {
	t.Parallel()

	cache, _ := newTestCache(t, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cache.StoreStatus(ctx, Snapshot{MessageID: "x", Status: model.Sent}); err == nil {
		t.Fatalf("expected error due to canceled context, got nil")
	}
}

func TestConnect(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	addr := mr.Addr()

	rdb, err := Connect(context.Background(), addr, "", 0)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	_ = rdb.Close()

	mr.Close()
	if _, err := Connect(context.Background(), addr, "", 0); err == nil {
		t.Fatalf("expected error for closed server, got nil")
	}
}
