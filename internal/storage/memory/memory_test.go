package memory

import (
	"context"
	"errors"
	"testing"

	"teambudget/internal/core"
)

func TestNewSeeded(t *testing.T) {
	s := NewSeeded()
	snap, err := s.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Categories) != 7 || len(snap.Budgets) != 4 {
		t.Fatalf("unexpected seed: %d categories, %d budgets", len(snap.Categories), len(snap.Budgets))
	}
	for _, b := range snap.Budgets {
		if b.ID == "" {
			t.Errorf("budget %s has no id", b.Category)
		}
	}
}

func TestCommitBatchAppliesAll(t *testing.T) {
	ctx := context.Background()
	s := New()
	rule, err := s.CreateRecurringRule(ctx, core.RecurringRule{
		Description: "Hosting",
		Amount:      core.Money{Cents: 100},
		Category:    "Software/SaaS",
		Type:        core.Expense,
		Frequency:   core.Monthly,
		NextDueDate: core.NewDate(2025, 1, 1),
	})
	if err != nil {
		t.Fatal(err)
	}

	batch := core.Batch{
		RuleID:      rule.ID,
		PrevDueDate: core.NewDate(2025, 1, 1),
		NextDueDate: core.NewDate(2025, 3, 1),
		Transactions: []core.Transaction{
			{Date: core.NewDate(2025, 1, 1), Description: "Hosting", Amount: core.Money{Cents: 100}, Category: "Software/SaaS", Type: core.Expense},
			{Date: core.NewDate(2025, 2, 1), Description: "Hosting", Amount: core.Money{Cents: 100}, Category: "Software/SaaS", Type: core.Expense},
		},
	}
	if err := s.CommitBatch(ctx, batch); err != nil {
		t.Fatal(err)
	}

	snap, _ := s.Snapshot(ctx)
	if len(snap.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(snap.Transactions))
	}
	if snap.Transactions[0].ID == "" || snap.Transactions[0].ID == snap.Transactions[1].ID {
		t.Errorf("expected distinct ids, got %q and %q", snap.Transactions[0].ID, snap.Transactions[1].ID)
	}
	if snap.Rules[0].NextDueDate.String() != "2025-03-01" {
		t.Errorf("rule next due = %s", snap.Rules[0].NextDueDate)
	}

	// the same batch again was computed from a due date the rule no longer has
	if err := s.CommitBatch(ctx, batch); !errors.Is(err, core.ErrStaleRule) {
		t.Fatalf("expected ErrStaleRule on replay, got %v", err)
	}
	snap, _ = s.Snapshot(ctx)
	if len(snap.Transactions) != 2 {
		t.Errorf("stale batch stored transactions: got %d, want 2", len(snap.Transactions))
	}
	if snap.Rules[0].NextDueDate.String() != "2025-03-01" {
		t.Errorf("stale batch moved rule to %s", snap.Rules[0].NextDueDate)
	}
}

func TestCommitBatchFailureAppliesNothing(t *testing.T) {
	ctx := context.Background()
	s := New()
	boom := errors.New("permission denied")
	s.FailCommits(boom)

	err := s.CommitBatch(ctx, core.Batch{RuleID: "x", Transactions: []core.Transaction{{Description: "a"}}})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	snap, _ := s.Snapshot(ctx)
	if len(snap.Transactions) != 0 {
		t.Fatalf("failed batch leaked %d transactions", len(snap.Transactions))
	}

	s.FailCommits(nil)
	if err := s.CommitBatch(ctx, core.Batch{RuleID: "missing"}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown rule, got %v", err)
	}
}

func TestUpsertBudgetSourceKeepsOnePerName(t *testing.T) {
	ctx := context.Background()
	s := New()
	first, err := s.UpsertBudgetSource(ctx, core.BudgetSource{Name: core.PrimaryBudget, Amount: core.Money{Cents: 100}})
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.UpsertBudgetSource(ctx, core.BudgetSource{Name: core.PrimaryBudget, Amount: core.Money{Cents: 250}, Description: "Q2"})
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("upsert created a second record: %s vs %s", first.ID, second.ID)
	}
	snap, _ := s.Snapshot(ctx)
	if len(snap.Sources) != 1 || snap.Sources[0].Amount.Cents != 250 || snap.Sources[0].Description != "Q2" {
		t.Fatalf("unexpected sources: %+v", snap.Sources)
	}
}

func TestMarkers(t *testing.T) {
	ctx := context.Background()
	s := New()
	if ok, _ := s.HasMarker(ctx, "alert_sent_a"); ok {
		t.Fatal("marker should be absent")
	}
	_ = s.SetMarker(ctx, "alert_sent_a")
	if ok, _ := s.HasMarker(ctx, "alert_sent_a"); !ok {
		t.Fatal("marker should be present")
	}
}

func TestDeleteNotFound(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.DeleteTransaction(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteTransaction() error = %v", err)
	}
	if err := s.DeleteRecurringRule(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("DeleteRecurringRule() error = %v", err)
	}
	if _, err := s.AddToSavingsGoal(ctx, "nope", core.Money{Cents: 1}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("AddToSavingsGoal() error = %v", err)
	}
}
