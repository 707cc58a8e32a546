package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates no verification record exists for the account.
var ErrNotFound = errors.New("verification record not found")

// Record is one verified account in the append-only ledger.
type Record struct {
	AccountID  string
	Label      string
	VerifiedAt time.Time
}

// Ledger defines the contract implemented by verification-ledger backends
// (e.g. Postgres). Record is idempotent by account id: recording an
// already verified account returns the existing row without error.
type Ledger interface {
	Record(ctx context.Context, accountID, label string) (Record, error)
	Find(ctx context.Context, accountID string) (Record, error)
	Count(ctx context.Context) (int64, error)
}
