// Package session keeps one predictor form per browser session.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kartoza/soc-estimator/internal/form"
)

// Factory builds the form for a new session
type Factory func() *form.PredictorForm

// Store is a bounded set of forms keyed by session ID. Least recently used
// sessions are evicted past the size limit, and sessions expire once they
// have gone unused for the TTL.
type Store struct {
	mu      sync.Mutex
	forms   *expirable.LRU[string, *form.PredictorForm]
	factory Factory
}

// NewStore creates a session store
func NewStore(size int, ttl time.Duration, factory Factory) *Store {
	return &Store{
		forms:   expirable.NewLRU[string, *form.PredictorForm](size, nil, ttl),
		factory: factory,
	}
}

// NewID returns a fresh session identifier
func NewID() string {
	return uuid.New().String()
}

// ValidID reports whether id looks like an identifier issued by NewID
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// GetOrCreate returns the form for id and restarts its TTL. IDs the store
// did not issue, or whose session expired, get a new session under a fresh
// ID; the returned ID is the one to hand back to the client.
func (s *Store) GetOrCreate(id string) (string, *form.PredictorForm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ValidID(id) {
		if f, ok := s.forms.Get(id); ok {
			// Add on an existing key resets its expiry
			s.forms.Add(id, f)
			return id, f, false
		}
	}

	id = NewID()
	f := s.factory()
	s.forms.Add(id, f)
	return id, f, true
}

// Len returns the number of live sessions
func (s *Store) Len() int {
	return s.forms.Len()
}
