package services

import (
	"sort"

	"teambudget/internal/core"
)

// RecentTransactionsLimit is how many of the latest transactions the dashboard lists.
const RecentTransactionsLimit = 5

// Dashboard is the overview of realized totals, funding and caps for one day.
type Dashboard struct {
	Today              core.Date
	TotalAllocations   core.Money
	TotalExpenses      core.Money
	Balance            core.Money
	PendingAllocations core.Money
	FundingTotal       core.Money
	Sources            []core.BudgetSource
	ExpensesByCategory []core.CategoryAmount
	Budgets            []CapStatus
	Recent             []core.Transaction
	Goals              []core.SavingsGoal
}

// BuildDashboard computes the overview from a snapshot. Pure.
func BuildDashboard(snap core.Snapshot, today core.Date) Dashboard {
	c := Classify(snap.Transactions, today)

	recent := append([]core.Transaction(nil), c.Realized...)
	recent = append(recent, c.Pending...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].Date.After(recent[j].Date.Time)
	})
	if len(recent) > RecentTransactionsLimit {
		recent = recent[:RecentTransactionsLimit]
	}

	return Dashboard{
		Today:              today,
		TotalAllocations:   c.RealizedAllocations,
		TotalExpenses:      c.RealizedExpenses,
		Balance:            c.RealizedAllocations.Sub(c.RealizedExpenses),
		PendingAllocations: c.PendingAllocations,
		FundingTotal:       core.FundingTotal(snap.Sources),
		Sources:            snap.Sources,
		ExpensesByCategory: c.TotalsByCategory(core.Expense),
		Budgets:            EffectiveLimits(snap.Budgets, c, today),
		Recent:             recent,
		Goals:              snap.Goals,
	}
}
