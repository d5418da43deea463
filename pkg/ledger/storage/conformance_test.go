package storage

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/junki-kanda/AutGuardRails/pkg/ledger"
	"github.com/junki-kanda/AutGuardRails/pkg/policy"
)

var baseTime = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func makeExecution(id string, mut func(*ledger.Execution)) *ledger.Execution {
	e := &ledger.Execution{
		ExecutionID: id,
		PolicyID:    "ec2-spike",
		EventID:     "evt-1",
		Target:      "arn:aws:iam::123456789012:role/ci-deployer",
		Mode:        policy.ModeAutomatic,
		Status:      ledger.StatusExecuted,
		Diff:        json.RawMessage(`{"action":"attach_deny_policy","would_deny":["ec2:RunInstances"]}`),
		ExecutedBy:  "system:auto",
		TTLMinutes:  120,
		CreatedAt:   baseTime,
		UpdatedAt:   baseTime,
	}
	if mut != nil {
		mut(e)
	}
	return e
}

// runStoreConformance exercises the ledger.Store contract. Both backends
// run the same suite so they cannot drift apart.
func runStoreConformance(t *testing.T, newStore func(t *testing.T) ledger.Store) {
	ctx := context.Background()

	t.Run("create and get round-trip", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		ttl := baseTime.Add(2 * time.Hour)
		executed := baseTime
		e := makeExecution("exec-1", func(e *ledger.Execution) {
			e.ExecutedAt = &executed
			e.TTLExpiresAt = &ttl
		})
		if err := s.Create(ctx, e); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		if e.Version != 1 {
			t.Errorf("Create() should set version 1, got %d", e.Version)
		}

		got, err := s.Get(ctx, "exec-1")
		if err != nil {
			t.Fatalf("Get() failed: %v", err)
		}
		if got.PolicyID != "ec2-spike" || got.Target != e.Target {
			t.Errorf("round-trip mismatch: %+v", got)
		}
		if got.Mode != policy.ModeAutomatic || got.Status != ledger.StatusExecuted {
			t.Errorf("mode/status mismatch: %s/%s", got.Mode, got.Status)
		}
		if string(got.Diff) != string(e.Diff) {
			t.Errorf("Diff = %s, want %s", got.Diff, e.Diff)
		}
		if got.ExecutedBy != "system:auto" {
			t.Errorf("ExecutedBy = %q", got.ExecutedBy)
		}
		if got.TTLMinutes != 120 {
			t.Errorf("TTLMinutes = %d, want 120", got.TTLMinutes)
		}
		if !got.CreatedAt.Equal(baseTime) {
			t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, baseTime)
		}
		if got.TTLExpiresAt == nil || !got.TTLExpiresAt.Equal(ttl) {
			t.Errorf("TTLExpiresAt = %v, want %v", got.TTLExpiresAt, ttl)
		}
		if got.ApprovalExpiresAt != nil {
			t.Errorf("ApprovalExpiresAt = %v, want nil", got.ApprovalExpiresAt)
		}
		if got.Version != 1 {
			t.Errorf("Version = %d, want 1", got.Version)
		}
	})

	t.Run("get missing", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		_, err := s.Get(ctx, "exec-absent")
		var nf *ledger.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("want *NotFoundError, got %T: %v", err, err)
		}
	})

	t.Run("duplicate execution id conflicts", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		if err := s.Create(ctx, makeExecution("exec-1", nil)); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}
		err := s.Create(ctx, makeExecution("exec-1", func(e *ledger.Execution) {
			e.Target = "arn:aws:iam::123456789012:role/other"
		}))
		var conflict *ledger.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("want *ConflictError, got %T: %v", err, err)
		}
	})

	t.Run("one active execution per slot", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		first := makeExecution("exec-1", nil)
		if err := s.Create(ctx, first); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		err := s.Create(ctx, makeExecution("exec-2", nil))
		var conflict *ledger.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("second active create should conflict, got %T: %v", err, err)
		}

		// Terminal executions release the slot.
		first.Status = ledger.StatusRolledBack
		first.UpdatedAt = baseTime.Add(time.Minute)
		if err := s.Update(ctx, first); err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		if err := s.Create(ctx, makeExecution("exec-3", func(e *ledger.Execution) {
			e.CreatedAt = baseTime.Add(2 * time.Minute)
		})); err != nil {
			t.Fatalf("create after slot release failed: %v", err)
		}
	})

	t.Run("update is version checked", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		if err := s.Create(ctx, makeExecution("exec-1", nil)); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		copyA, _ := s.Get(ctx, "exec-1")
		copyB, _ := s.Get(ctx, "exec-1")

		copyA.Error = "first writer"
		copyA.UpdatedAt = baseTime.Add(time.Minute)
		if err := s.Update(ctx, copyA); err != nil {
			t.Fatalf("first update failed: %v", err)
		}
		if copyA.Version != 2 {
			t.Errorf("successful update should bump version to 2, got %d", copyA.Version)
		}

		copyB.Error = "second writer"
		err := s.Update(ctx, copyB)
		var conflict *ledger.ConflictError
		if !errors.As(err, &conflict) {
			t.Fatalf("stale update should conflict, got %T: %v", err, err)
		}

		// The losing write changed nothing.
		got, _ := s.Get(ctx, "exec-1")
		if got.Error != "first writer" {
			t.Errorf("Error = %q, want the winning write", got.Error)
		}
		if got.Version != 2 {
			t.Errorf("Version = %d, want 2", got.Version)
		}
	})

	t.Run("update missing", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		err := s.Update(ctx, makeExecution("exec-ghost", nil))
		var nf *ledger.NotFoundError
		if !errors.As(err, &nf) {
			t.Fatalf("want *NotFoundError, got %T: %v", err, err)
		}
	})

	t.Run("find active", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		e := makeExecution("exec-1", func(e *ledger.Execution) { e.Status = ledger.StatusPlanned })
		if err := s.Create(ctx, e); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		got, err := s.FindActive(ctx, "ec2-spike", e.Target)
		if err != nil {
			t.Fatalf("FindActive() failed: %v", err)
		}
		if got == nil || got.ExecutionID != "exec-1" {
			t.Fatalf("FindActive() = %v, want exec-1", got)
		}

		none, err := s.FindActive(ctx, "other-policy", e.Target)
		if err != nil || none != nil {
			t.Fatalf("FindActive(other) = %v, %v, want nil, nil", none, err)
		}

		e.Status = ledger.StatusRejected
		e.UpdatedAt = baseTime.Add(time.Minute)
		if err := s.Update(ctx, e); err != nil {
			t.Fatalf("Update() failed: %v", err)
		}
		released, err := s.FindActive(ctx, "ec2-spike", e.Target)
		if err != nil || released != nil {
			t.Fatalf("terminal execution should release the slot, got %v, %v", released, err)
		}
	})

	t.Run("find by event", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		for i, id := range []string{"exec-1", "exec-2"} {
			e := makeExecution(id, func(e *ledger.Execution) {
				e.Target = "arn:aws:iam::123456789012:role/role-" + id
				e.CreatedAt = baseTime.Add(time.Duration(i) * time.Second)
			})
			if err := s.Create(ctx, e); err != nil {
				t.Fatalf("Create(%s) failed: %v", id, err)
			}
		}
		if err := s.Create(ctx, makeExecution("exec-other", func(e *ledger.Execution) {
			e.EventID = "evt-other"
			e.Target = "arn:aws:iam::123456789012:role/misc"
		})); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		got, err := s.FindByEvent(ctx, "evt-1")
		if err != nil {
			t.Fatalf("FindByEvent() failed: %v", err)
		}
		if len(got) != 2 || got[0].ExecutionID != "exec-1" || got[1].ExecutionID != "exec-2" {
			t.Fatalf("FindByEvent() = %v, want [exec-1 exec-2]", executionIDs(got))
		}

		empty, err := s.FindByEvent(ctx, "evt-unknown")
		if err != nil {
			t.Fatalf("FindByEvent(unknown) failed: %v", err)
		}
		if len(empty) != 0 {
			t.Errorf("FindByEvent(unknown) = %v, want empty", executionIDs(empty))
		}
	})

	t.Run("find expired", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		now := baseTime.Add(3 * time.Hour)

		mk := func(id, target string, status ledger.Status, ttl time.Time) {
			e := makeExecution(id, func(e *ledger.Execution) {
				e.Target = target
				e.Status = status
				e.TTLExpiresAt = &ttl
			})
			if err := s.Create(ctx, e); err != nil {
				t.Fatalf("Create(%s) failed: %v", id, err)
			}
		}

		mk("exec-late", "arn:aws:iam::123456789012:role/a", ledger.StatusExecuted, baseTime.Add(2*time.Hour))
		mk("exec-early", "arn:aws:iam::123456789012:role/b", ledger.StatusExecuted, baseTime.Add(1*time.Hour))
		mk("exec-future", "arn:aws:iam::123456789012:role/c", ledger.StatusExecuted, baseTime.Add(24*time.Hour))
		mk("exec-planned", "arn:aws:iam::123456789012:role/d", ledger.StatusPlanned, baseTime.Add(1*time.Hour))

		got, err := s.FindExpired(ctx, now, 100)
		if err != nil {
			t.Fatalf("FindExpired() failed: %v", err)
		}
		if len(got) != 2 || got[0].ExecutionID != "exec-early" || got[1].ExecutionID != "exec-late" {
			t.Fatalf("FindExpired() = %v, want [exec-early exec-late]", executionIDs(got))
		}

		limited, err := s.FindExpired(ctx, now, 1)
		if err != nil {
			t.Fatalf("FindExpired(limit=1) failed: %v", err)
		}
		if len(limited) != 1 || limited[0].ExecutionID != "exec-early" {
			t.Fatalf("FindExpired(limit=1) = %v, want [exec-early]", executionIDs(limited))
		}
	})

	t.Run("find stale approvals", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		now := baseTime.Add(2 * time.Hour)

		mk := func(id, target string, status ledger.Status, deadline time.Time) {
			e := makeExecution(id, func(e *ledger.Execution) {
				e.Target = target
				e.Status = status
				e.ApprovalExpiresAt = &deadline
			})
			if err := s.Create(ctx, e); err != nil {
				t.Fatalf("Create(%s) failed: %v", id, err)
			}
		}

		mk("exec-stale-planned", "arn:aws:iam::123456789012:role/a", ledger.StatusPlanned, baseTime.Add(time.Hour))
		mk("exec-stale-approved", "arn:aws:iam::123456789012:role/b", ledger.StatusApproved, baseTime.Add(90*time.Minute))
		mk("exec-fresh", "arn:aws:iam::123456789012:role/c", ledger.StatusPlanned, baseTime.Add(24*time.Hour))
		mk("exec-executed", "arn:aws:iam::123456789012:role/d", ledger.StatusExecuted, baseTime.Add(time.Hour))

		got, err := s.FindStaleApprovals(ctx, now, 100)
		if err != nil {
			t.Fatalf("FindStaleApprovals() failed: %v", err)
		}
		if len(got) != 2 || got[0].ExecutionID != "exec-stale-planned" || got[1].ExecutionID != "exec-stale-approved" {
			t.Fatalf("FindStaleApprovals() = %v, want [exec-stale-planned exec-stale-approved]", executionIDs(got))
		}
	})

	t.Run("recent", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		for i, id := range []string{"exec-1", "exec-2", "exec-3"} {
			e := makeExecution(id, func(e *ledger.Execution) {
				e.Target = "arn:aws:iam::123456789012:role/role-" + id
				e.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
				if id == "exec-2" {
					e.Status = ledger.StatusFailed
				}
			})
			if err := s.Create(ctx, e); err != nil {
				t.Fatalf("Create(%s) failed: %v", id, err)
			}
		}

		got, err := s.Recent(ctx, 10, "")
		if err != nil {
			t.Fatalf("Recent() failed: %v", err)
		}
		if len(got) != 3 || got[0].ExecutionID != "exec-3" || got[2].ExecutionID != "exec-1" {
			t.Fatalf("Recent() = %v, want newest first", executionIDs(got))
		}

		failed, err := s.Recent(ctx, 10, ledger.StatusFailed)
		if err != nil {
			t.Fatalf("Recent(failed) failed: %v", err)
		}
		if len(failed) != 1 || failed[0].ExecutionID != "exec-2" {
			t.Fatalf("Recent(failed) = %v, want [exec-2]", executionIDs(failed))
		}

		limited, err := s.Recent(ctx, 2, "")
		if err != nil {
			t.Fatalf("Recent(limit=2) failed: %v", err)
		}
		if len(limited) != 2 || limited[0].ExecutionID != "exec-3" {
			t.Fatalf("Recent(limit=2) = %v", executionIDs(limited))
		}
	})

	t.Run("by policy", func(t *testing.T) {
		s := newStore(t)
		defer s.Close()

		for i, id := range []string{"exec-1", "exec-2"} {
			e := makeExecution(id, func(e *ledger.Execution) {
				e.Target = "arn:aws:iam::123456789012:role/role-" + id
				e.CreatedAt = baseTime.Add(time.Duration(i) * time.Minute)
			})
			if err := s.Create(ctx, e); err != nil {
				t.Fatalf("Create(%s) failed: %v", id, err)
			}
		}
		if err := s.Create(ctx, makeExecution("exec-other", func(e *ledger.Execution) {
			e.PolicyID = "rds-spike"
			e.Target = "arn:aws:iam::123456789012:role/misc"
		})); err != nil {
			t.Fatalf("Create() failed: %v", err)
		}

		got, err := s.ByPolicy(ctx, "ec2-spike", 10)
		if err != nil {
			t.Fatalf("ByPolicy() failed: %v", err)
		}
		if len(got) != 2 || got[0].ExecutionID != "exec-2" {
			t.Fatalf("ByPolicy() = %v, want [exec-2 exec-1]", executionIDs(got))
		}
	})
}

func executionIDs(in []*ledger.Execution) []string {
	out := make([]string, len(in))
	for i, e := range in {
		out[i] = e.ExecutionID
	}
	return out
}
