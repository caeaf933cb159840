// Package session holds the visit counter. The map is owned by whoever
// constructs the Store (main, in practice) and handed to the request
// handlers explicitly; there is no package-level state.
package session

import "sync"

// Store counts detections per resolved client IP.
type Store struct {
	mu     sync.Mutex
	visits map[string]int
}

// NewStore returns an empty counter.
func NewStore() *Store {
	return &Store{visits: make(map[string]int)}
}

// Visit increments the counter for ip and returns the new count.
func (s *Store) Visit(ip string) int {
	if ip == "" {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.visits[ip]++
	return s.visits[ip]
}

// Count returns the current count for ip without incrementing.
func (s *Store) Count(ip string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.visits[ip]
}

// Len returns how many distinct IPs have been seen.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visits)
}
