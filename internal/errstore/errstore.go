// Package errstore keeps a bounded in-memory history of recent errors for
// the API and websocket replay. It is not durable storage.
package errstore

import (
	"sync"

	"github.com/fyrsmithlabs/errwatchd/internal/classify"
)

// DefaultCapacity bounds the history. Past it, the oldest record goes.
const DefaultCapacity = 200

// Store is a fixed-capacity ring of error records, newest last.
type Store struct {
	mu   sync.RWMutex
	recs []*classify.ErrorRecord
	byID map[string]*classify.ErrorRecord
	cap  int
}

// New creates a Store. A non-positive capacity falls back to the default.
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		recs: make([]*classify.ErrorRecord, 0, capacity),
		byID: make(map[string]*classify.ErrorRecord),
		cap:  capacity,
	}
}

// Add appends a record, evicting the oldest when at capacity. Nil records
// are ignored.
func (s *Store) Add(rec *classify.ErrorRecord) {
	if rec == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.recs) == s.cap {
		oldest := s.recs[0]
		delete(s.byID, oldest.ID)
		copy(s.recs, s.recs[1:])
		s.recs = s.recs[:len(s.recs)-1]
	}
	s.recs = append(s.recs, rec)
	s.byID[rec.ID] = rec
}

// Recent returns up to n records, newest first. n <= 0 means all.
func (s *Store) Recent(n int) []*classify.ErrorRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n <= 0 || n > len(s.recs) {
		n = len(s.recs)
	}
	out := make([]*classify.ErrorRecord, n)
	for i := 0; i < n; i++ {
		out[i] = s.recs[len(s.recs)-1-i]
	}
	return out
}

// Get looks up a record by ID.
func (s *Store) Get(id string) (*classify.ErrorRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	return rec, ok
}

// Len reports how many records are held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recs)
}
