package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
)

// MemoryStore implements ledger.Store with an in-memory map. It is meant
// for tests and ephemeral dev runs; nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	byID  map[string]*ledger.Execution
	order []string // creation order
}

// NewMemoryStore creates an empty in-memory ledger.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID: make(map[string]*ledger.Execution),
	}
}

// Create persists a new execution with version 1.
func (s *MemoryStore) Create(ctx context.Context, e *ledger.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[e.ExecutionID]; exists {
		return ledger.NewConflictError(e.ExecutionID, "execution id already exists")
	}
	for _, existing := range s.byID {
		if existing.PolicyID == e.PolicyID && existing.Target == e.Target && existing.Active() {
			return ledger.NewConflictError(e.ExecutionID,
				"active execution "+existing.ExecutionID+" already holds this policy/target slot")
		}
	}

	e.Version = 1
	s.byID[e.ExecutionID] = cloneExecution(e)
	s.order = append(s.order, e.ExecutionID)
	return nil
}

// Get returns the execution with the given id.
func (s *MemoryStore) Get(ctx context.Context, executionID string) (*ledger.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.byID[executionID]
	if !ok {
		return nil, ledger.NewNotFoundError(executionID)
	}
	return cloneExecution(e), nil
}

// Update applies a version-checked write.
func (s *MemoryStore) Update(ctx context.Context, e *ledger.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.byID[e.ExecutionID]
	if !ok {
		return ledger.NewNotFoundError(e.ExecutionID)
	}
	if existing.Version != e.Version {
		return ledger.NewConflictError(e.ExecutionID, "stale version")
	}

	e.Version++
	s.byID[e.ExecutionID] = cloneExecution(e)
	return nil
}

// FindActive returns the non-terminal execution holding the slot, or nil.
func (s *MemoryStore) FindActive(ctx context.Context, policyID, target string) (*ledger.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, e := range s.byID {
		if e.PolicyID == policyID && e.Target == target && e.Active() {
			return cloneExecution(e), nil
		}
	}
	return nil, nil
}

// FindByEvent returns all executions for the event in creation order.
func (s *MemoryStore) FindByEvent(ctx context.Context, eventID string) ([]*ledger.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.Execution
	for _, id := range s.order {
		if e := s.byID[id]; e.EventID == eventID {
			out = append(out, cloneExecution(e))
		}
	}
	return out, nil
}

// FindExpired returns executed executions whose ttl has passed, oldest
// expiry first.
func (s *MemoryStore) FindExpired(ctx context.Context, now time.Time, limit int) ([]*ledger.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.Execution
	for _, e := range s.byID {
		if e.Status == ledger.StatusExecuted && e.TTLExpiresAt != nil && !e.TTLExpiresAt.After(now) {
			out = append(out, cloneExecution(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].TTLExpiresAt.Before(*out[j].TTLExpiresAt)
	})
	return capSlice(out, limit), nil
}

// FindStaleApprovals returns planned or approved executions whose approval
// window has lapsed.
func (s *MemoryStore) FindStaleApprovals(ctx context.Context, now time.Time, limit int) ([]*ledger.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.Execution
	for _, e := range s.byID {
		awaiting := e.Status == ledger.StatusPlanned || e.Status == ledger.StatusApproved
		if awaiting && e.ApprovalExpiresAt != nil && !e.ApprovalExpiresAt.After(now) {
			out = append(out, cloneExecution(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ApprovalExpiresAt.Before(*out[j].ApprovalExpiresAt)
	})
	return capSlice(out, limit), nil
}

// Recent returns executions newest first, optionally filtered to one
// status.
func (s *MemoryStore) Recent(ctx context.Context, limit int, status ledger.Status) ([]*ledger.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.Execution
	for i := len(s.order) - 1; i >= 0; i-- {
		e := s.byID[s.order[i]]
		if status != "" && e.Status != status {
			continue
		}
		out = append(out, cloneExecution(e))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ByPolicy returns executions for the policy, newest first.
func (s *MemoryStore) ByPolicy(ctx context.Context, policyID string, limit int) ([]*ledger.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*ledger.Execution
	for i := len(s.order) - 1; i >= 0; i-- {
		e := s.byID[s.order[i]]
		if e.PolicyID != policyID {
			continue
		}
		out = append(out, cloneExecution(e))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Close releases the backing map.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*ledger.Execution)
	s.order = nil
	return nil
}

// Size returns the number of stored executions (for testing).
func (s *MemoryStore) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// cloneExecution deep-copies an execution so callers and the store never
// alias the same mutable fields.
func cloneExecution(e *ledger.Execution) *ledger.Execution {
	c := *e
	if e.Diff != nil {
		c.Diff = append(json.RawMessage(nil), e.Diff...)
	}
	c.ExecutedAt = cloneTime(e.ExecutedAt)
	c.TTLExpiresAt = cloneTime(e.TTLExpiresAt)
	c.ApprovalExpiresAt = cloneTime(e.ApprovalExpiresAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

func capSlice(in []*ledger.Execution, limit int) []*ledger.Execution {
	if limit > 0 && len(in) > limit {
		return in[:limit]
	}
	return in
}
