package device

import (
	"sync"

	"github.com/anime-shed/facescan-go/internal/logger"
	"github.com/anime-shed/facescan-go/internal/workflow"
)

// PermissionStore is a session's runtime permission state. Prompts stay
// pending until the client answers them; a full grant is remembered for the
// rest of the session.
type PermissionStore struct {
	mu      sync.Mutex
	granted map[workflow.Permission]bool
	pending map[workflow.Permission][]func([]workflow.GrantResult)
}

// NewPermissionStore returns a store with the given permissions already
// granted.
func NewPermissionStore(preGranted ...workflow.Permission) *PermissionStore {
	s := &PermissionStore{
		granted: make(map[workflow.Permission]bool),
		pending: make(map[workflow.Permission][]func([]workflow.GrantResult)),
	}
	for _, p := range preGranted {
		s.granted[p] = true
	}
	return s
}

func (s *PermissionStore) Check(p workflow.Permission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.granted[p]
}

// Request queues a prompt for p.
func (s *PermissionStore) Request(p workflow.Permission, respond func([]workflow.GrantResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[p] = append(s.pending[p], respond)
	logger.WithField("permission", string(p)).Debug("Permission prompt pending")
}

// Pending reports whether a prompt for p is waiting for an answer.
func (s *PermissionStore) Pending(p workflow.Permission) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending[p]) > 0
}

// Answer resolves every pending prompt for p with results. Results are passed
// through unchanged; the controller decides what counts as a grant. It
// returns ErrNoHandoff when nothing was pending.
func (s *PermissionStore) Answer(p workflow.Permission, results []workflow.GrantResult) error {
	s.mu.Lock()
	waiting := s.pending[p]
	delete(s.pending, p)
	if len(waiting) > 0 {
		s.granted[p] = allGranted(results)
	}
	s.mu.Unlock()

	if len(waiting) == 0 {
		return ErrNoHandoff
	}
	for _, respond := range waiting {
		respond(append([]workflow.GrantResult(nil), results...))
	}
	return nil
}

// Revoke withdraws a grant.
func (s *PermissionStore) Revoke(p workflow.Permission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.granted, p)
}

func allGranted(results []workflow.GrantResult) bool {
	if len(results) == 0 {
		return false
	}
	for _, r := range results {
		if r != workflow.Granted {
			return false
		}
	}
	return true
}
