package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresLedger persists verification records in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Record appends a verification for the account. The insert is idempotent
// by account id; a repeat returns the original row untouched.
func (l *PostgresLedger) Record(ctx context.Context, accountID, label string) (Record, error) {
	verifiedAt := time.Now().UTC()
	_, err := l.db.Exec(ctx, `INSERT INTO verifications (account_id, label, verified_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (account_id) DO NOTHING`, accountID, label, verifiedAt)
	if err != nil {
		return Record{}, err
	}
	// Read back whichever row won: ours or a previously recorded one.
	return l.Find(ctx, accountID)
}

// Find fetches the verification record for an account.
func (l *PostgresLedger) Find(ctx context.Context, accountID string) (Record, error) {
	row := l.db.QueryRow(ctx, `SELECT account_id, label, verified_at
        FROM verifications WHERE account_id = $1`, accountID)

	var rec Record
	var verifiedAt time.Time
	if err := row.Scan(&rec.AccountID, &rec.Label, &verifiedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, err
	}
	rec.VerifiedAt = verifiedAt.UTC()
	return rec, nil
}

// Count returns the total number of verified accounts.
func (l *PostgresLedger) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := l.db.QueryRow(ctx, `SELECT COUNT(*) FROM verifications`).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}
