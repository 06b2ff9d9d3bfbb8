package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teambudget/internal/core"
	"teambudget/internal/storage/memory"
)

// flakyCommitter fails commits for selected rules.
type flakyCommitter struct {
	inner  BatchCommitter
	failed map[string]error
	calls  []core.Batch
}

func (f *flakyCommitter) CommitBatch(ctx context.Context, b core.Batch) error {
	f.calls = append(f.calls, b)
	if err := f.failed[b.RuleID]; err != nil {
		return err
	}
	return f.inner.CommitBatch(ctx, b)
}

func seedRules(t *testing.T, store *memory.Store, rules ...core.RecurringRule) []core.RecurringRule {
	t.Helper()
	var out []core.RecurringRule
	for _, r := range rules {
		saved, err := store.CreateRecurringRule(context.Background(), r)
		require.NoError(t, err)
		out = append(out, saved)
	}
	return out
}

func TestProcessDue(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	today := core.NewDate(2025, 3, 15)
	rules := seedRules(t, store,
		monthlyRule(core.NewDate(2025, 1, 1)),
		monthlyRule(core.NewDate(2025, 4, 1)),
	)

	res, err := NewRecurringProcessor(store).ProcessDue(ctx, rules, today)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{Materialized: 3, RulesAdvanced: 1}, res)

	snap, _ := store.Snapshot(ctx)
	assert.Len(t, snap.Transactions, 3)
	assert.Equal(t, "2025-04-01", snap.Rules[0].NextDueDate.String())
	assert.Equal(t, "2025-04-01", snap.Rules[1].NextDueDate.String())

	// a second pass over the persisted rules is a no-op
	res, err = NewRecurringProcessor(store).ProcessDue(ctx, snap.Rules, today)
	require.NoError(t, err)
	assert.Zero(t, res.Materialized)
	snap, _ = store.Snapshot(ctx)
	assert.Len(t, snap.Transactions, 3)
}

func TestProcessDue_StaleSnapshotDoesNotDuplicate(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	today := core.NewDate(2025, 3, 15)
	seedRules(t, store, monthlyRule(core.NewDate(2025, 1, 1)))

	// two writers working from the same snapshot
	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)

	first, err := NewRecurringProcessor(store).ProcessDue(ctx, snap.Rules, today)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{Materialized: 3, RulesAdvanced: 1}, first)

	second, err := NewRecurringProcessor(store).ProcessDue(ctx, snap.Rules, today)
	require.NoError(t, err)
	assert.Equal(t, ProcessResult{RulesStale: 1}, second)

	after, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, after.Transactions, 3)
	assert.Equal(t, "2025-04-01", after.Rules[0].NextDueDate.String())
}

func TestProcessDue_FailedCommitIsIsolated(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	today := core.NewDate(2025, 3, 15)
	rules := seedRules(t, store,
		monthlyRule(core.NewDate(2025, 3, 1)),
		monthlyRule(core.NewDate(2025, 3, 10)),
	)
	denied := errors.New("permission denied")
	committer := &flakyCommitter{inner: store, failed: map[string]error{rules[0].ID: denied}}

	res, err := NewRecurringProcessor(committer).ProcessDue(ctx, rules, today)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecurringProcessing)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 1, res.RulesFailed)
	assert.Equal(t, 1, res.RulesAdvanced)
	assert.Len(t, committer.calls, 2)

	snap, _ := store.Snapshot(ctx)
	require.Len(t, snap.Transactions, 1)
	assert.Equal(t, rules[1].ID, snap.Transactions[0].RecurringRuleID)
	// the failed rule keeps its original due date for the next cycle
	assert.Equal(t, "2025-03-01", snap.Rules[0].NextDueDate.String())

	// next cycle succeeds from the original due date, with nothing duplicated
	committer.failed = nil
	_, err = NewRecurringProcessor(committer).ProcessDue(ctx, snap.Rules, today)
	require.NoError(t, err)
	snap, _ = store.Snapshot(ctx)
	assert.Len(t, snap.Transactions, 2)
}

func TestProcessDue_SkipsMalformedRules(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	bad := core.RecurringRule{ID: "bad", Frequency: "hourly", NextDueDate: core.NewDate(2025, 1, 1)}

	res, err := NewRecurringProcessor(store).ProcessDue(ctx, []core.RecurringRule{bad}, core.NewDate(2025, 3, 1))
	require.NoError(t, err)
	assert.Zero(t, res.RulesAdvanced)
}

func TestProcessDue_CappedBacklog(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	today := core.NewDate(2025, 3, 15)
	r := monthlyRule(today.AddDays(-40))
	r.Frequency = core.Daily
	rules := seedRules(t, store, r)

	res, err := NewRecurringProcessor(store).ProcessDue(ctx, rules, today)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RulesCapped)
	assert.Equal(t, MaxOccurrencesPerAdvance, res.Materialized)

	// the backlog drains over successive cycles
	total := res.Materialized
	for i := 0; i < 5; i++ {
		snap, _ := store.Snapshot(ctx)
		res, err = NewRecurringProcessor(store).ProcessDue(ctx, snap.Rules, today)
		require.NoError(t, err)
		total += res.Materialized
	}
	assert.Equal(t, 41, total)
}

func TestProcessDue_NotInitialized(t *testing.T) {
	_, err := NewRecurringProcessor(nil).ProcessDue(context.Background(), nil, core.NewDate(2025, 1, 1))
	assert.Error(t, err)
}
