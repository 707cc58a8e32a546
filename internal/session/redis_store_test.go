package session

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisStore(t *testing.T) (Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return NewRedisStore(client), mr
}

func TestRedisStorePutGetConsume(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testSession("u1"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RequesterID != "u1" || got.Mode != ModeChallenge {
		t.Fatalf("unexpected session: %+v", got)
	}

	if _, err := store.Consume(ctx, "u1"); err != nil {
		t.Fatalf("consume: %v", err)
	}
	if _, err := store.Consume(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume should fail, got %v", err)
	}
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := setupRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testSession("u1"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	mr.FastForward(2 * time.Minute)

	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestRedisStoreDelete(t *testing.T) {
	store, _ := setupRedisStore(t)
	ctx := context.Background()

	if err := store.Put(ctx, testSession("u1"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := store.Delete(ctx, "u1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted session should be gone, got %v", err)
	}
}
