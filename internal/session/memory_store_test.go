package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func testSession(key string) Session {
	now := time.Now().UTC()
	return Session{
		Key:         key,
		RequesterID: key,
		GuildID:     "guild-1",
		Mode:        ModeChallenge,
		Answer:      12,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Minute),
	}
}

func TestMemoryStorePutAndGet(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, testSession("u1"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.RequesterID != "u1" || got.Answer != 12 {
		t.Fatalf("unexpected session: %+v", got)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreConsumeIsAtomic(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Put(ctx, testSession("u1"), time.Minute); err != nil {
		t.Fatalf("put: %v", err)
	}

	if _, err := store.Consume(ctx, "u1"); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	if _, err := store.Consume(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second consume should fail, got %v", err)
	}
	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("consumed session should be gone, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	s := testSession("u1")
	s.ExpiresAt = time.Now().UTC().Add(30 * time.Millisecond)
	if err := store.Put(ctx, s, 30*time.Millisecond); err != nil {
		t.Fatalf("put: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	if _, err := store.Get(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session to be gone, got %v", err)
	}
}

func TestMemoryStoreSupersedeCancelsPriorExpiry(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	first := testSession("u1")
	first.Answer = 3
	first.ExpiresAt = time.Now().UTC().Add(30 * time.Millisecond)
	if err := store.Put(ctx, first, 30*time.Millisecond); err != nil {
		t.Fatalf("put first: %v", err)
	}

	// Re-trigger: the fresh session must survive the first session's timer.
	second := testSession("u1")
	second.Answer = 9
	if err := store.Put(ctx, second, time.Minute); err != nil {
		t.Fatalf("put second: %v", err)
	}

	time.Sleep(80 * time.Millisecond)

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("superseding session should still exist: %v", err)
	}
	if got.Answer != 9 {
		t.Fatalf("expected superseding session, got %+v", got)
	}
}

func TestMemoryStoreDeleteStopsTimer(t *testing.T) {
	store := NewMemoryStore()
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
	// Deleting a missing key is a no-op.
	if err := store.Delete(ctx, "u1"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}
