package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Sessions expire ttl after
// their last write.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-memory Store.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create stores a new session.
func (m *MemoryStore) Create(ctx context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.lookup(s.ID); ok {
		return fmt.Errorf("session %s already exists", s.ID)
	}
	m.sessions[s.ID] = &memoryEntry{session: *s, expiresAt: m.now().Add(m.ttl)}
	return nil
}

// Get returns a copy of the session.
func (m *MemoryStore) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}
	s := entry.session
	return &s, nil
}

// Update applies fn under the store lock.
func (m *MemoryStore) Update(ctx context.Context, id string, fn UpdateFunc) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.lookup(id)
	if !ok {
		return nil, ErrSessionNotFound
	}

	s := entry.session
	if err := fn(&s); err != nil {
		return &s, err
	}
	entry.session = s
	entry.expiresAt = m.now().Add(m.ttl)

	out := s
	return &out, nil
}

// Delete removes the session. Deleting an unknown session is not an error.
func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, id)
	return nil
}

// RunJanitor removes expired sessions every interval until ctx is done.
func (m *MemoryStore) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.sweep(); n > 0 {
				slog.InfoContext(ctx, "Removed expired sessions", "session.count", n)
			}
		}
	}
}

func (m *MemoryStore) sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	removed := 0
	for id, entry := range m.sessions {
		if now.After(entry.expiresAt) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed
}

// lookup must be called with m.mu held.
func (m *MemoryStore) lookup(id string) (*memoryEntry, bool) {
	entry, ok := m.sessions[id]
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.sessions, id)
		return nil, false
	}
	return entry, true
}
