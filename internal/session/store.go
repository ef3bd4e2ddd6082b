package session

import (
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ErrNotFound reports that no detection result is cached for a session id.
// Callers translate it into a "run detection first" response; it is distinct
// from an upstream 404.
var ErrNotFound = errors.New("no detection result for session")

// Store keeps the most recent detection record per session id, bounded in
// both entry count and age. An evicted or expired session behaves exactly
// like one that never ran a detection.
type Store struct {
	cache *expirable.LRU[string, Record]
}

func NewStore(maxSessions int, ttl time.Duration) *Store {
	return &Store{cache: expirable.NewLRU[string, Record](maxSessions, nil, ttl)}
}

// Put replaces any previous record for the id. Concurrent detections for the
// same session resolve to whichever write lands last.
func (s *Store) Put(id string, rec Record) {
	s.cache.Add(id, rec)
}

func (s *Store) Get(id string) (Record, error) {
	rec, ok := s.cache.Get(id)
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (s *Store) Len() int {
	return s.cache.Len()
}
