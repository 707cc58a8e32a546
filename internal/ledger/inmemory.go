package ledger

import (
	"context"
	"sync"
	"time"
)

type inMemoryLedger struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit
// tests and development mode.
func NewInMemory() Ledger {
	return &inMemoryLedger{records: make(map[string]Record)}
}

func (l *inMemoryLedger) Record(_ context.Context, accountID, label string) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, ok := l.records[accountID]; ok {
		return existing, nil
	}

	rec := Record{
		AccountID:  accountID,
		Label:      label,
		VerifiedAt: time.Now().UTC(),
	}
	l.records[accountID] = rec
	return rec, nil
}

func (l *inMemoryLedger) Find(_ context.Context, accountID string) (Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[accountID]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (l *inMemoryLedger) Count(_ context.Context) (int64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return int64(len(l.records)), nil
}
