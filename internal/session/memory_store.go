package session

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	session Session
	expiry  *time.Timer
}

type memoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
}

// NewMemoryStore builds an in-memory session store. Each session carries
// its own expiry timer; superseding or consuming a session cancels the
// timer so it can never fire against a fresh entry under the same key.
func NewMemoryStore() Store {
	return &memoryStore{sessions: make(map[string]*memoryEntry)}
}

func (m *memoryStore) Put(_ context.Context, s Session, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[s.Key]; ok {
		prev.expiry.Stop()
	}

	entry := &memoryEntry{session: s}
	entry.expiry = time.AfterFunc(ttl, func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		// Only remove the entry this timer was armed for.
		if cur, ok := m.sessions[s.Key]; ok && cur == entry {
			delete(m.sessions, s.Key)
		}
	})
	m.sessions[s.Key] = entry
	return nil
}

func (m *memoryStore) Get(_ context.Context, key string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[key]
	if !ok || entry.session.Expired(time.Now().UTC()) {
		return Session{}, ErrNotFound
	}
	return entry.session, nil
}

func (m *memoryStore) Consume(_ context.Context, key string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.sessions[key]
	if !ok || entry.session.Expired(time.Now().UTC()) {
		return Session{}, ErrNotFound
	}
	entry.expiry.Stop()
	delete(m.sessions, key)
	return entry.session, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if entry, ok := m.sessions[key]; ok {
		entry.expiry.Stop()
		delete(m.sessions, key)
	}
	return nil
}
