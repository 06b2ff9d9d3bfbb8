package services

import (
	"log/slog"
	"time"

	"teambudget/internal/core"
)

// Bucket is the classification of a single transaction relative to today.
type Bucket int

const (
	// Ignored transactions are malformed and contribute nothing.
	Ignored Bucket = iota
	Realized
	Pending
)

// BucketOf classifies one transaction. Expenses are always realized; allocations
// are realized on or after their date and pending before it.
func BucketOf(tx core.Transaction, today core.Date) Bucket {
	if tx.Date.IsZero() || tx.Amount.Cents < 0 {
		return Ignored
	}
	switch tx.Type {
	case core.Expense:
		return Realized
	case core.Allocation:
		if tx.Date.OnOrBefore(today) {
			return Realized
		}
		return Pending
	}
	return Ignored
}

// Classification partitions a transaction set relative to a reference day.
type Classification struct {
	Today    core.Date
	Realized []core.Transaction
	Pending  []core.Transaction

	RealizedExpenses    core.Money
	RealizedAllocations core.Money
	PendingAllocations  core.Money
}

// Classify partitions txs into realized spend and pending allocations.
// Malformed records are skipped and logged; classification never fails.
func Classify(txs []core.Transaction, today core.Date) *Classification {
	c := &Classification{Today: today}
	for _, tx := range txs {
		switch BucketOf(tx, today) {
		case Realized:
			c.Realized = append(c.Realized, tx)
			if tx.Type == core.Expense {
				c.RealizedExpenses = c.RealizedExpenses.Add(tx.Amount)
			} else {
				c.RealizedAllocations = c.RealizedAllocations.Add(tx.Amount)
			}
		case Pending:
			c.Pending = append(c.Pending, tx)
			c.PendingAllocations = c.PendingAllocations.Add(tx.Amount)
		default:
			slog.Warn("Skipping malformed transaction",
				"id", tx.ID,
				"date", tx.Date.String(),
				"amount_cents", tx.Amount.Cents,
				"type", tx.Type)
		}
	}
	return c
}

// SpendByCategory sums realized amounts per category for one calendar month.
func (c *Classification) SpendByCategory(month time.Month, year int) map[string]core.Money {
	out := make(map[string]core.Money)
	for _, tx := range c.Realized {
		if tx.Date.InMonth(month, year) {
			out[tx.Category] = out[tx.Category].Add(tx.Amount)
		}
	}
	return out
}

// TotalsByCategory sums realized amounts of one type per category across all dates.
func (c *Classification) TotalsByCategory(kind core.TransactionType) []core.CategoryAmount {
	idx := make(map[string]int)
	var out []core.CategoryAmount
	for _, tx := range c.Realized {
		if tx.Type != kind {
			continue
		}
		i, ok := idx[tx.Category]
		if !ok {
			i = len(out)
			idx[tx.Category] = i
			out = append(out, core.CategoryAmount{Name: tx.Category})
		}
		out[i].Amount = out[i].Amount.Add(tx.Amount)
	}
	return out
}
