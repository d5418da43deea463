package policy

import (
	"log/slog"
	"sync"
)

// Store holds the currently loaded policy set behind a read-write mutex.
// The matcher reads an ordered snapshot on every evaluation; the watcher
// replaces the whole set atomically when files change.
type Store struct {
	// mu protects the policies slice and the id index
	mu       sync.RWMutex
	policies []*GuardrailPolicy
	byID     map[string]*GuardrailPolicy

	logger *slog.Logger
}

// NewStore creates an empty policy store.
func NewStore() *Store {
	return &Store{
		byID:   make(map[string]*GuardrailPolicy),
		logger: slog.With("component", "policy-store"),
	}
}

// Replace atomically swaps the loaded policy set. The slice order is
// preserved; it is the evaluation order.
func (s *Store) Replace(policies []*GuardrailPolicy) {
	byID := make(map[string]*GuardrailPolicy, len(policies))
	for _, p := range policies {
		byID[p.PolicyID] = p
	}

	s.mu.Lock()
	s.policies = policies
	s.byID = byID
	s.mu.Unlock()

	s.logger.Info("policy set replaced", "policy_count", len(policies))
}

// Reload loads dir and replaces the current set. Used at startup and by the
// file watcher.
func (s *Store) Reload(dir string) error {
	policies, err := LoadDir(dir)
	if err != nil {
		return err
	}
	s.Replace(policies)
	return nil
}

// Policies returns the loaded policies in evaluation order. The returned
// slice is a copy.
func (s *Store) Policies() []*GuardrailPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*GuardrailPolicy, len(s.policies))
	copy(out, s.policies)
	return out
}

// Get returns the policy with the given id.
func (s *Store) Get(id string) (*GuardrailPolicy, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	return p, ok
}

// Len returns the number of loaded policies.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.policies)
}
