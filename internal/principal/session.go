package principal

import (
	"sync"

	"github.com/safetrack/platform/internal/shared/types"
)

// Session is an explicit holder for the current principal and the
// transient incident selection a client is working on. It replaces any
// global mutable state: each client connection owns its own Session and
// the navigation gate reads from it.
type Session struct {
	mu        sync.RWMutex
	principal *Principal
	selected  types.ID
}

// NewSession creates an empty session.
func NewSession() *Session {
	return &Session{}
}

// Begin starts a session for a principal, replacing any previous one.
// Any incident selection from the previous principal is discarded.
func (s *Session) Begin(p *Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = p
	s.selected = ""
}

// SelectIncident records the incident the client is focused on.
func (s *Session) SelectIncident(id types.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = id
}

// ClearIncident drops the current incident selection.
func (s *Session) ClearIncident() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ""
}

// End terminates the session.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.principal = nil
	s.selected = ""
}

// Principal returns the session's principal, nil when ended or never begun.
func (s *Session) Principal() *Principal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.principal
}

// SelectedIncident returns the selected incident id, false when none.
func (s *Session) SelectedIncident() (types.ID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected.IsZero() {
		return "", false
	}
	return s.selected, true
}
