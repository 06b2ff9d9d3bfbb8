package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"teambudget/internal/core"
)

// ErrRecurringProcessing is returned when at least one rule could not be committed.
var ErrRecurringProcessing = errors.New("could not process recurring transactions")

// RecurringProcessor materializes due occurrences of recurring rules and
// commits each rule's batch atomically.
type RecurringProcessor struct {
	store BatchCommitter
}

func NewRecurringProcessor(store BatchCommitter) *RecurringProcessor {
	return &RecurringProcessor{store: store}
}

// ProcessResult summarizes one processing pass.
type ProcessResult struct {
	Materialized  int
	RulesAdvanced int
	RulesCapped   int
	RulesFailed   int
	// RulesStale counts rules another writer advanced first.
	RulesStale int
}

// ProcessDue advances every rule against today. Rules with no due occurrence
// are left untouched. A rule advanced concurrently by another writer is
// skipped. A failed commit is logged and reported in the returned error but
// does not stop the remaining rules; nothing is retried here.
func (p *RecurringProcessor) ProcessDue(ctx context.Context, rules []core.RecurringRule, today core.Date) (ProcessResult, error) {
	if p.store == nil {
		return ProcessResult{}, fmt.Errorf("processor not properly initialized")
	}

	var (
		res  ProcessResult
		errs []error
	)
	for _, rule := range rules {
		adv, err := Advance(rule, today)
		if err != nil {
			slog.WarnContext(ctx, "Skipping malformed recurring rule",
				"rule_id", rule.ID,
				"error", err)
			continue
		}
		if !adv.Changed() {
			continue
		}

		err = p.store.CommitBatch(ctx, adv.Batch())
		if errors.Is(err, core.ErrStaleRule) {
			slog.InfoContext(ctx, "Recurring rule already advanced elsewhere",
				"rule_id", rule.ID,
				"due_date", rule.NextDueDate.String())
			res.RulesStale++
			continue
		}
		if err != nil {
			slog.ErrorContext(ctx, "Failed to commit recurring batch",
				"rule_id", rule.ID,
				"occurrences", len(adv.Materialized),
				"error", err)
			res.RulesFailed++
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.ID, err))
			continue
		}

		res.RulesAdvanced++
		res.Materialized += len(adv.Materialized)
		if adv.Capped {
			res.RulesCapped++
			slog.WarnContext(ctx, "Recurring rule still behind after safety bound",
				"rule_id", rule.ID,
				"next_due_date", adv.Rule.NextDueDate.String())
		}
		slog.InfoContext(ctx, "Materialized recurring transactions",
			"rule_id", rule.ID,
			"description", rule.Description,
			"occurrences", len(adv.Materialized),
			"frequency", rule.Frequency,
			"next_due_date", adv.Rule.NextDueDate.String())
	}

	slog.InfoContext(ctx, "Recurring processing complete",
		"rules", len(rules),
		"advanced", res.RulesAdvanced,
		"materialized", res.Materialized,
		"failed", res.RulesFailed,
		"stale", res.RulesStale,
		"processing_date", today.String())

	if len(errs) > 0 {
		return res, fmt.Errorf("%w: %w", ErrRecurringProcessing, errors.Join(errs...))
	}
	return res, nil
}
