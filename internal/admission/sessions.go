package admission

import (
	"sync"
	"time"
)

// SessionTracker counts distinct client sessions seen within a TTL
// window. Clients report a session ID with each chat request; expired
// entries are pruned on read.
type SessionTracker struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time // swappable for tests
}

// NewSessionTracker creates a tracker with the given liveness window.
func NewSessionTracker(ttl time.Duration) *SessionTracker {
	return &SessionTracker{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

// Track marks a session as active now.
func (t *SessionTracker) Track(id string) {
	if id == "" {
		return
	}
	t.mu.Lock()
	t.seen[id] = t.now()
	t.mu.Unlock()
}

// Active returns the number of sessions seen within the TTL, dropping
// expired entries as a side effect.
func (t *SessionTracker) Active() int {
	cutoff := t.now().Add(-t.ttl)
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ts := range t.seen {
		if ts.Before(cutoff) {
			delete(t.seen, id)
		}
	}
	return len(t.seen)
}
