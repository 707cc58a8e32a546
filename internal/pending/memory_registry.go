package pending

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// completedGrace keeps a completed record around long enough for the
// engine's poll loop to observe it before the registry reclaims it.
const completedGrace = 30 * time.Second

type registryEntry struct {
	verification Verification
	expiry       *time.Timer
}

type memoryRegistry struct {
	mu      sync.Mutex
	pending map[string]*registryEntry
}

// NewMemoryRegistry builds an in-memory pending-verification registry.
func NewMemoryRegistry() Registry {
	return &memoryRegistry{pending: make(map[string]*registryEntry)}
}

func (r *memoryRegistry) Create(_ context.Context, requesterID, guildID string, ttl time.Duration) (Verification, error) {
	now := time.Now().UTC()
	// Requester identity plus timestamp plus random entropy: unique across
	// the process and unguessable enough to cross a network boundary.
	state := fmt.Sprintf("%s_%d_%s", requesterID, now.UnixMilli(), uuid.NewString())

	v := Verification{
		State:       state,
		RequesterID: requesterID,
		GuildID:     guildID,
		CreatedAt:   now,
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry := &registryEntry{verification: v}
	entry.expiry = r.scheduleRemoval(state, entry, ttl)
	r.pending[state] = entry
	return v, nil
}

func (r *memoryRegistry) MarkCompleted(_ context.Context, state, provenID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[state]
	if !ok {
		return ErrNotFound
	}
	if provenID != entry.verification.RequesterID {
		return ErrIdentityMismatch
	}
	if entry.verification.Completed {
		// Repeat signal from a retry; already bound to the same identity.
		return nil
	}

	entry.verification.Completed = true
	entry.verification.ProvenID = provenID
	entry.verification.VerifiedAt = time.Now().UTC()

	// Completed records no longer need the full TTL.
	entry.expiry.Stop()
	entry.expiry = r.scheduleRemoval(state, entry, completedGrace)
	return nil
}

func (r *memoryRegistry) Status(_ context.Context, state string) (Verification, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.pending[state]
	if !ok {
		return Verification{}, ErrNotFound
	}
	return entry.verification, nil
}

func (r *memoryRegistry) Delete(_ context.Context, state string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.pending[state]; ok {
		entry.expiry.Stop()
		delete(r.pending, state)
	}
	return nil
}

// scheduleRemoval arms a removal timer for the entry. Caller holds the lock.
func (r *memoryRegistry) scheduleRemoval(state string, entry *registryEntry, after time.Duration) *time.Timer {
	return time.AfterFunc(after, func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if cur, ok := r.pending[state]; ok && cur == entry {
			delete(r.pending, state)
		}
	})
}
