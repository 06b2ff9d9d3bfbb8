package core

import "time"

// CategoryAmount represents an amount aggregated by category name.
type CategoryAmount struct {
	Name   string
	Amount Money
}

// Snapshot is the full current state of every collection, as pushed by the store.
type Snapshot struct {
	Transactions []Transaction
	Rules        []RecurringRule
	Budgets      []CategoryBudget
	Sources      []BudgetSource
	Categories   []Category
	Goals        []SavingsGoal
	Settings     AppSettings
}

// Batch is the unit of atomic commit for one recurring rule: every
// materialized transaction plus the rule's advanced due date. PrevDueDate is
// the due date the batch was computed from; the store applies the batch only
// while the rule still has that date.
type Batch struct {
	RuleID       string
	PrevDueDate  Date
	NextDueDate  Date
	Transactions []Transaction
}

// ChangeEvent announces that a collection changed.
type ChangeEvent struct {
	Collection string
	Op         string
	ID         string
	At         time.Time
}

const (
	CollectionTransactions = "transactions"
	CollectionRecurring    = "recurring"
	CollectionBudgets      = "budgets"
	CollectionSources      = "budget_sources"
	CollectionCategories   = "categories"
	CollectionSettings     = "settings"
	CollectionGoals        = "savings"
)

// FundingTotal sums every budget source.
func FundingTotal(sources []BudgetSource) Money {
	var total Money
	for _, s := range sources {
		total = total.Add(s.Amount)
	}
	return total
}

// BudgetFor returns the budget for a category, if any.
func (s Snapshot) BudgetFor(category string) (CategoryBudget, bool) {
	for _, b := range s.Budgets {
		if b.Category == category {
			return b, true
		}
	}
	return CategoryBudget{}, false
}

// SourceByName returns the live budget source with the given name, if any.
func (s Snapshot) SourceByName(name BudgetSourceName) (BudgetSource, bool) {
	for _, src := range s.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return BudgetSource{}, false
}
