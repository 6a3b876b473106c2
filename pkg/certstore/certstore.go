// Package certstore implements the process-wide trust store of
// user-accepted (hostname, certificate-subject) pairs (§3, §4.3).
package certstore

import "sync"

// TrustCallback is the external GUI prompt consulted on a cache miss.
// It returns true if the user accepts the certificate.
type TrustCallback func(host, certSubject string) bool

type key struct {
	host    string
	subject string
}

// Store is a process-lifetime, lock-guarded set of accepted
// (host, certificate-subject) pairs. It grows only through Accept.
type Store struct {
	mu      sync.Mutex
	entries map[key]struct{}
}

// New returns an empty trust store.
func New() *Store {
	return &Store{entries: make(map[key]struct{})}
}

// Accept reports whether (host, certSubject) is trusted. On a cache hit it
// returns true without invoking prompt. On a miss, it calls prompt; a
// positive answer is recorded for the rest of the process and true is
// returned, a negative answer returns false without being recorded (so the
// user is asked again next time, matching a "deny once" rather than
// "deny forever" UX).
func (s *Store) Accept(host, certSubject string, prompt TrustCallback) bool {
	k := key{host: host, subject: certSubject}

	s.mu.Lock()
	_, known := s.entries[k]
	s.mu.Unlock()
	if known {
		return true
	}

	if prompt == nil || !prompt(host, certSubject) {
		return false
	}

	s.mu.Lock()
	s.entries[k] = struct{}{}
	s.mu.Unlock()
	return true
}

// Contains reports whether (host, certSubject) is already trusted, without
// invoking a prompt. Exposed for tests and diagnostics.
func (s *Store) Contains(host, certSubject string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key{host: host, subject: certSubject}]
	return ok
}

// Len reports how many (host, subject) pairs have been accepted.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
