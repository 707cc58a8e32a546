package pending

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound indicates the correlation token has no pending record,
	// either because it never existed or because it expired.
	ErrNotFound = errors.New("pending verification not found")

	// ErrIdentityMismatch is returned when the proven identity is not the
	// account that initiated the verification. The record is not flipped.
	ErrIdentityMismatch = errors.New("proven identity does not match requester")
)

// Verification is a pending identity-proof record shared between the web
// completion channel and the bot-side engine.
type Verification struct {
	State       string    `json:"state"`
	RequesterID string    `json:"requester_id"`
	GuildID     string    `json:"guild_id"`
	Completed   bool      `json:"completed"`
	ProvenID    string    `json:"proven_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	VerifiedAt  time.Time `json:"verified_at,omitempty"`
}

// Registry owns pending identity-proof records.
//
// MarkCompleted flips a record at most once and binds it to the proven
// identity; repeating the call with the same identity is a no-op success
// so that network retries stay safe. A mismatched identity is rejected
// without touching the record.
type Registry interface {
	Create(ctx context.Context, requesterID, guildID string, ttl time.Duration) (Verification, error)
	MarkCompleted(ctx context.Context, state, provenID string) error
	Status(ctx context.Context, state string) (Verification, error)
	Delete(ctx context.Context, state string) error
}
