package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teambudget/internal/core"
	"teambudget/internal/storage/memory"
)

type recordingChanges struct {
	events []core.ChangeEvent
	err    error
}

func (r *recordingChanges) PublishChange(_ context.Context, ev core.ChangeEvent) error {
	r.events = append(r.events, ev)
	return r.err
}

func newLedger(t *testing.T) (*LedgerService, *memory.Store, *recordingChanges) {
	t.Helper()
	store := memory.New()
	changes := &recordingChanges{}
	svc := NewLedgerService(store, changes)
	svc.now = func() time.Time { return time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC) }
	return svc, store, changes
}

func TestLedger_CreateTransaction(t *testing.T) {
	ctx := context.Background()
	svc, store, changes := newLedger(t)

	saved, err := svc.CreateTransaction(ctx, core.Transaction{
		Date:        core.NewDate(2025, 3, 10),
		Description: "Trade show booth",
		Amount:      cents(450000),
		Category:    "Events",
		Type:        core.Expense,
		Company:     "Expo Ltd",
		InvoiceNo:   "INV-7",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)

	snap, _ := store.Snapshot(ctx)
	assert.Len(t, snap.Transactions, 1)
	require.Len(t, changes.events, 1)
	assert.Equal(t, core.ChangeEvent{
		Collection: core.CollectionTransactions,
		Op:         "create",
		ID:         saved.ID,
		At:         time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC),
	}, changes.events[0])
}

func TestLedger_ValidationErrorsAreNotWritten(t *testing.T) {
	ctx := context.Background()
	svc, store, changes := newLedger(t)

	_, err := svc.CreateTransaction(ctx, core.Transaction{Description: "x"})
	assert.ErrorIs(t, err, core.ErrInvalidDate)

	_, err = svc.SetCategoryBudget(ctx, "Ads", cents(-1), false)
	assert.ErrorIs(t, err, core.ErrNegativeLimit)

	_, err = svc.SetBudgetSource(ctx, "Bake sale", cents(100), "")
	assert.ErrorIs(t, err, core.ErrInvalidSourceName)

	snap, _ := store.Snapshot(ctx)
	assert.Empty(t, snap.Transactions)
	assert.Empty(t, snap.Budgets)
	assert.Empty(t, changes.events)
}

func TestLedger_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctx := context.Background()
	svc, store, changes := newLedger(t)
	changes.err = errors.New("broker unavailable")

	_, err := svc.SetCategoryBudget(ctx, "Ads", cents(100000), true)
	require.NoError(t, err)
	snap, _ := store.Snapshot(ctx)
	assert.Len(t, snap.Budgets, 1)
}

func TestLedger_NilPublisher(t *testing.T) {
	svc := NewLedgerService(memory.New(), nil)
	_, err := svc.SetBudgetSource(context.Background(), core.GroupGrants, cents(100), "")
	assert.NoError(t, err)
}

func TestLedger_AddCategory(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newLedger(t)

	c, err := svc.AddCategory(ctx, core.Category{Name: " Podcasts ", Type: core.Expense})
	require.NoError(t, err)
	assert.Equal(t, "Podcasts", c.Name)
	assert.Equal(t, DefaultCategoryColor, c.Color)

	snap, _ := store.Snapshot(ctx)
	b, ok := snap.BudgetFor("Podcasts")
	require.True(t, ok)
	assert.Zero(t, b.MonthlyLimit.Cents)
	assert.False(t, b.Rollover)

	_, err = svc.AddCategory(ctx, core.Category{Name: "podcasts", Type: core.Expense})
	assert.ErrorIs(t, err, ErrDuplicateCategory)

	// same name is fine under the other type, and allocations get no budget
	_, err = svc.AddCategory(ctx, core.Category{Name: "Podcasts", Type: core.Allocation})
	require.NoError(t, err)
	snap, _ = store.Snapshot(ctx)
	assert.Len(t, snap.Budgets, 1)
	assert.Len(t, snap.Categories, 2)
}

func TestLedger_SetBudgetSourceUpserts(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newLedger(t)

	_, err := svc.SetBudgetSource(ctx, core.PrimaryBudget, cents(1000000), "FY25")
	require.NoError(t, err)
	_, err = svc.SetBudgetSource(ctx, core.PrimaryBudget, cents(2000000), "FY25 revised")
	require.NoError(t, err)
	_, err = svc.SetBudgetSource(ctx, core.PrincipleGrants, cents(500000), "")
	require.NoError(t, err)

	snap, _ := store.Snapshot(ctx)
	assert.Len(t, snap.Sources, 2)
	assert.Equal(t, int64(2500000), core.FundingTotal(snap.Sources).Cents)
}

func TestLedger_SaveSettings(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newLedger(t)

	err := svc.SaveSettings(ctx, core.AppSettings{AlertEmail: "nope"})
	assert.ErrorIs(t, err, ErrInvalidEmail)

	require.NoError(t, svc.SaveSettings(ctx, core.AppSettings{AlertEmail: " ops@example.com "}))
	snap, _ := store.Snapshot(ctx)
	assert.Equal(t, "ops@example.com", snap.Settings.AlertEmail)

	require.NoError(t, svc.SaveSettings(ctx, core.AppSettings{}))
}

func TestLedger_SavingsGoals(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newLedger(t)

	g, err := svc.CreateSavingsGoal(ctx, core.SavingsGoal{Name: "Summit 2026", TargetAmount: cents(100000)})
	require.NoError(t, err)

	_, err = svc.ContributeToSavings(ctx, g.ID, cents(0))
	assert.ErrorIs(t, err, core.ErrInvalidAmount)

	g, err = svc.ContributeToSavings(ctx, g.ID, cents(40000))
	require.NoError(t, err)
	assert.InDelta(t, 40.0, g.Progress(), 0.001)

	require.NoError(t, svc.DeleteSavingsGoal(ctx, g.ID))
	assert.ErrorIs(t, svc.DeleteSavingsGoal(ctx, g.ID), core.ErrNotFound)
}

func TestLedger_DeleteAnnounces(t *testing.T) {
	ctx := context.Background()
	svc, _, changes := newLedger(t)

	r, err := svc.CreateRecurringRule(ctx, monthlyRule(core.NewDate(2025, 4, 1)))
	require.NoError(t, err)
	require.NoError(t, svc.DeleteRecurringRule(ctx, r.ID))
	assert.Error(t, svc.DeleteTransaction(ctx, "missing"))

	require.Len(t, changes.events, 2)
	assert.Equal(t, "delete", changes.events[1].Op)
	assert.Equal(t, core.CollectionRecurring, changes.events[1].Collection)
}
