// Package csrf holds the anti-forgery token shared by every mutating request
// of a client process.
//
// A Store is created once at application start and injected into the API
// client; it is emptied at sign-out. At most one token is current at a time
// and no history is kept. Concurrent writers are last-write-wins, which is
// acceptable because the token is idempotent for a given session.
package csrf

import "sync"

type Store struct {
	mu    sync.RWMutex
	token string
}

func NewStore() *Store {
	return &Store{}
}

// Get returns the current token and whether one is set.
func (s *Store) Get() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token, s.token != ""
}

// Set replaces the current token.
func (s *Store) Set(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()
}

// Clear forgets the current token.
func (s *Store) Clear() {
	s.Set("")
}
