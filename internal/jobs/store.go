package jobs

import (
	"sync"
	"time"

	"github.com/snpsujon/yt-dlp/internal/models"
)

type entry struct {
	session    models.Session
	terminalAt time.Time
}

// Store is the process-wide session registry. Records are stored by value and
// returned as copies, so readers never observe a half-written record.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*entry
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*entry)}
}

// Put installs or replaces a record. The caller must complete this before
// answering a submit request, so an immediate poll never misses the session.
func (s *Store) Put(id string, session models.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := &entry{session: session}
	if session.IsTerminal() {
		e.terminalAt = time.Now()
	}
	s.sessions[id] = e
}

// Get returns a copy of the record for id.
func (s *Store) Get(id string) (models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok {
		return models.Session{}, false
	}
	return e.session, true
}

// Update applies mutate to the record for id under the store lock. The call
// is a no-op returning false when the session is unknown or already terminal;
// this is what drops late progress callbacks after completion or cancel.
func (s *Store) Update(id string, mutate func(*models.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.sessions[id]
	if !ok || e.session.IsTerminal() {
		return false
	}
	mutate(&e.session)
	if e.session.IsTerminal() {
		e.terminalAt = time.Now()
	}
	return true
}

// Remove deletes the record for id.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

// Len returns the number of tracked sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// EvictTerminal drops terminal records older than ttl and returns how many
// were removed. Keeps the registry bounded; live jobs are never evicted.
func (s *Store) EvictTerminal(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.sessions {
		if !e.terminalAt.IsZero() && e.terminalAt.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}
