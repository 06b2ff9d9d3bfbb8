package services

import (
	"context"
	"log/slog"

	"teambudget/internal/core"
)

const (
	AdviceUnavailable = "AI insights are unavailable. Please configure an advice generator."
	AdviceFailed      = "Sorry, an error occurred while analyzing the team's budget. Please try again later."
	AdviceEmpty       = "Unable to generate insights at this time."
)

// AdviceInput is the summary handed to the advice generator.
type AdviceInput struct {
	Expenses    []core.CategoryAmount
	Allocations []core.CategoryAmount
	Caps        []core.CategoryAmount
}

// BuildAdviceInput sums every well-formed transaction per category and type,
// regardless of date, and lists each budget's base limit.
func BuildAdviceInput(txs []core.Transaction, budgets []core.CategoryBudget) AdviceInput {
	var in AdviceInput
	expIdx := make(map[string]int)
	allocIdx := make(map[string]int)
	add := func(list *[]core.CategoryAmount, idx map[string]int, tx core.Transaction) {
		i, ok := idx[tx.Category]
		if !ok {
			i = len(*list)
			idx[tx.Category] = i
			*list = append(*list, core.CategoryAmount{Name: tx.Category})
		}
		(*list)[i].Amount = (*list)[i].Amount.Add(tx.Amount)
	}
	for _, tx := range txs {
		if tx.Date.IsZero() || tx.Amount.Cents < 0 {
			continue
		}
		switch tx.Type {
		case core.Expense:
			add(&in.Expenses, expIdx, tx)
		case core.Allocation:
			add(&in.Allocations, allocIdx, tx)
		}
	}
	for _, b := range budgets {
		in.Caps = append(in.Caps, core.CategoryAmount{Name: b.Category, Amount: b.MonthlyLimit})
	}
	return in
}

// InsightsService produces advice text. It never fails: missing or failing
// generators yield fixed fallback text.
type InsightsService struct {
	store     SnapshotReader
	generator AdviceGenerator
}

func NewInsightsService(store SnapshotReader, generator AdviceGenerator) *InsightsService {
	return &InsightsService{store: store, generator: generator}
}

func (s *InsightsService) Advice(ctx context.Context) string {
	if s.generator == nil {
		return AdviceUnavailable
	}
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to read snapshot for insights", "error", err)
		return AdviceFailed
	}
	text, err := s.generator.Generate(ctx, BuildAdviceInput(snap.Transactions, snap.Budgets))
	if err != nil {
		slog.ErrorContext(ctx, "Advice generator failed", "error", err)
		return AdviceFailed
	}
	if text == "" {
		return AdviceEmpty
	}
	return text
}
