package session

import (
	"context"
	"errors"
	"time"
)

// Mode distinguishes the two verification flows a session can belong to.
type Mode string

const (
	// ModeChallenge sessions are keyed by requester id and accept a
	// numeric answer.
	ModeChallenge Mode = "challenge"
	// ModeProof sessions are keyed by an opaque correlation token and
	// complete through the external channel.
	ModeProof Mode = "proof"
)

// ErrNotFound is returned when a session is absent or past its TTL.
var ErrNotFound = errors.New("session not found")

// Session tracks one in-progress verification attempt.
type Session struct {
	Key         string    `json:"key"`
	RequesterID string    `json:"requester_id"`
	GuildID     string    `json:"guild_id"`
	Label       string    `json:"label,omitempty"`
	Mode        Mode      `json:"mode"`
	Answer      int       `json:"answer,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its lifetime bound.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Store persists sessions with a bounded lifetime.
//
// Consume is the atomic gate of the whole verification flow: it must
// perform check-and-delete as one step so that two concurrent completion
// attempts for the same key see at most one success. Put on an existing
// key supersedes the previous session and cancels its expiry.
type Store interface {
	Put(ctx context.Context, s Session, ttl time.Duration) error
	Get(ctx context.Context, key string) (Session, error)
	Consume(ctx context.Context, key string) (Session, error)
	Delete(ctx context.Context, key string) error
}
