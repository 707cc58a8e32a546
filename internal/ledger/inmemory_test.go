package ledger

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryRecordIsIdempotent(t *testing.T) {
	led := NewInMemory()
	ctx := context.Background()

	first, err := led.Record(ctx, "u1", "user#1111")
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	// Recording the same account again returns the original row untouched.
	second, err := led.Record(ctx, "u1", "renamed#9999")
	if err != nil {
		t.Fatalf("duplicate record: %v", err)
	}
	if second.Label != first.Label || !second.VerifiedAt.Equal(first.VerifiedAt) {
		t.Fatalf("duplicate record mutated the ledger: %+v vs %+v", first, second)
	}

	count, err := led.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}
}

func TestInMemoryFind(t *testing.T) {
	led := NewInMemory()
	ctx := context.Background()

	if _, err := led.Find(ctx, "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	Seed(led, "u1", "user#1111")

	rec, err := led.Find(ctx, "u1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if rec.AccountID != "u1" || rec.Label != "user#1111" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}
