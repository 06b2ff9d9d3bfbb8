package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teambudget/internal/core"
)

func ids(ns []core.Notification) []string {
	out := make([]string, 0, len(ns))
	for _, n := range ns {
		out = append(out, n.ID)
	}
	return out
}

func deriveFixture(today core.Date) DeriveInput {
	return DeriveInput{
		Today: today,
		Rules: []core.RecurringRule{
			{ID: "r-soon", Description: "Seat licences", Amount: cents(5000), Category: "Software/SaaS", Type: core.Expense, Frequency: core.Monthly, NextDueDate: today.AddDays(3)},
			{ID: "r-far", Description: "Annual fee", Amount: cents(5000), Category: "Events", Type: core.Expense, Frequency: core.Yearly, NextDueDate: today.AddDays(4)},
			{ID: "r-grant", Description: "Quarterly grant", Amount: cents(900000), Category: "Quarterly Budget", Type: core.Allocation, Frequency: core.Monthly, NextDueDate: today},
		},
		Transactions: []core.Transaction{
			{ID: "t-pending", Date: today.AddDays(2), Description: "Extra grant", Amount: cents(250000), Category: "Extra Grant", Type: core.Allocation},
			{ID: "t-later", Date: today.AddDays(10), Description: "Later grant", Amount: cents(250000), Category: "Extra Grant", Type: core.Allocation},
			{ID: "t-spend", Date: today, Description: "Google Ads", Amount: cents(95000), Category: "Ads", Type: core.Expense},
		},
		Budgets: []core.CategoryBudget{
			{Category: "Ads", MonthlyLimit: cents(100000)},
			{Category: "Events", MonthlyLimit: cents(0)},
		},
	}
}

func TestDerive(t *testing.T) {
	today := core.NewDate(2025, 3, 15)
	got := Derive(deriveFixture(today))

	assert.Equal(t, []string{
		"rec-r-soon-2025-03-18",
		"rec-r-grant-2025-03-15",
		"alloc-t-pending",
		"budget-Ads-2",
	}, ids(got))

	require.Len(t, got, 4)
	assert.Equal(t, core.Info, got[0].Severity)
	assert.Equal(t, "Upcoming: Seat licences due on 2025-03-18", got[0].Message)
	assert.Equal(t, core.KindPendingAllocation, got[2].Kind)
	assert.Equal(t, core.Warning, got[3].Severity)
	assert.Equal(t, "Budget Alert: Ads is at 95% of monthly cap.", got[3].Message)
	for _, n := range got {
		assert.Equal(t, today, n.Date)
		assert.False(t, n.Read)
	}
}

func TestDeriveIsDeterministic(t *testing.T) {
	today := core.NewDate(2025, 3, 15)
	in := deriveFixture(today)

	first := ids(Derive(in))
	second := ids(Derive(in))
	assert.Equal(t, first, second)

	seen := map[string]bool{}
	for _, id := range first {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestDeriveDropsDuplicateIDs(t *testing.T) {
	today := core.NewDate(2025, 3, 15)
	rule := core.RecurringRule{ID: "r1", Description: "dup", Amount: cents(1), Category: "c", Type: core.Expense, Frequency: core.Daily, NextDueDate: today}
	got := Derive(DeriveInput{Today: today, Rules: []core.RecurringRule{rule, rule}})
	assert.Len(t, got, 1)
}

func TestDeriveBudgetThreshold(t *testing.T) {
	today := core.NewDate(2025, 3, 15)
	tests := []struct {
		name  string
		spent int64
		limit int64
		want  int
	}{
		{"95 percent warns", 95000, 100000, 1},
		{"exactly 90 percent warns", 90000, 100000, 1},
		{"below threshold", 89000, 100000, 0},
		{"over cap warns", 150000, 100000, 1},
		{"zero limit never warns", 150000, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Derive(DeriveInput{
				Today: today,
				Transactions: []core.Transaction{
					{ID: "t", Date: today, Description: "x", Amount: cents(tt.spent), Category: "Ads", Type: core.Expense},
				},
				Budgets: []core.CategoryBudget{{Category: "Ads", MonthlyLimit: cents(tt.limit)}},
			})
			assert.Len(t, got, tt.want)
		})
	}
}

func TestDeriveUsesEffectiveLimitWithRollover(t *testing.T) {
	today := core.NewDate(2025, 3, 15)
	got := Derive(DeriveInput{
		Today: today,
		Transactions: []core.Transaction{
			{ID: "feb", Date: core.NewDate(2025, 2, 3), Description: "x", Amount: cents(40000), Category: "Ads", Type: core.Expense},
			{ID: "mar", Date: today, Description: "x", Amount: cents(95000), Category: "Ads", Type: core.Expense},
		},
		Budgets: []core.CategoryBudget{{Category: "Ads", MonthlyLimit: cents(100000), Rollover: true}},
	})
	// 95000 of 160000 is below the threshold
	assert.Empty(t, got)
}

func TestDeriveRealizedAllocationCountsAsSpend(t *testing.T) {
	today := core.NewDate(2025, 3, 15)
	got := Derive(DeriveInput{
		Today: today,
		Transactions: []core.Transaction{
			{ID: "a", Date: today, Description: "x", Amount: cents(95000), Category: "Ads", Type: core.Allocation},
		},
		Budgets: []core.CategoryBudget{{Category: "Ads", MonthlyLimit: cents(100000)}},
	})
	assert.Equal(t, []string{"budget-Ads-2"}, ids(got))
}

func TestDeriveRecurringIDChangesOnceAdvanced(t *testing.T) {
	today := core.NewDate(2025, 3, 15)
	rule := core.RecurringRule{ID: "r1", Description: "Daily", Amount: cents(1), Category: "c", Type: core.Expense, Frequency: core.Daily, NextDueDate: today}

	before := ids(Derive(DeriveInput{Today: today, Rules: []core.RecurringRule{rule}}))
	adv, err := Advance(rule, today)
	require.NoError(t, err)
	after := ids(Derive(DeriveInput{Today: today, Rules: []core.RecurringRule{adv.Rule}}))

	assert.Equal(t, []string{"rec-r1-2025-03-15"}, before)
	assert.Equal(t, []string{"rec-r1-2025-03-16"}, after)
}

func TestSeenTrackerFilterUnseen(t *testing.T) {
	tracker := NewSeenTracker(10, 0)
	batch := []core.Notification{{ID: "a"}, {ID: "b"}}

	assert.Equal(t, []string{"a", "b"}, ids(tracker.FilterUnseen(batch)))
	assert.Empty(t, tracker.FilterUnseen(batch))
	assert.Equal(t, []string{"c"}, ids(tracker.FilterUnseen(append(batch, core.Notification{ID: "c"}))))
	assert.True(t, tracker.Seen("a"))
	assert.False(t, tracker.Seen("z"))

	_, ok := tracker.Cleaner()
	assert.True(t, ok)
}

func TestSeenTrackerKeepsDerivedSetLargerThanSize(t *testing.T) {
	tracker := NewSeenTracker(2, 0)
	batch := []core.Notification{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	assert.Len(t, tracker.FilterUnseen(batch), 3)
	assert.Empty(t, tracker.FilterUnseen(batch))

	// a new id does not push a still-derived one out
	assert.Equal(t, []string{"d"}, ids(tracker.FilterUnseen(append(batch, core.Notification{ID: "d"}))))
	assert.Empty(t, tracker.FilterUnseen(batch))
}
