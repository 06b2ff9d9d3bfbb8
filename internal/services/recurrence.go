// Package services provides business logic and orchestration services.
//
// This file implements the recurrence engine. Each frequency has its own
// Stepper that moves a due date forward by one period.
package services

import (
	"fmt"
	"sync"

	"teambudget/internal/core"
)

// MaxOccurrencesPerAdvance bounds how many occurrences a single Advance call
// materializes. A larger backlog is worked off across subsequent cycles.
const MaxOccurrencesPerAdvance = 12

// Stepper moves a due date forward by exactly one period.
type Stepper interface {
	Next(d core.Date) core.Date
}

// StepperFunc adapts a function to a Stepper.
type StepperFunc func(core.Date) core.Date

func (f StepperFunc) Next(d core.Date) core.Date { return f(d) }

var (
	steppersMu sync.RWMutex
	steppers   = map[core.Frequency]Stepper{
		core.Daily:   StepperFunc(func(d core.Date) core.Date { return d.AddDays(1) }),
		core.Weekly:  StepperFunc(func(d core.Date) core.Date { return d.AddDays(7) }),
		core.Monthly: StepperFunc(func(d core.Date) core.Date { return d.AddMonths(1) }),
		core.Yearly:  StepperFunc(func(d core.Date) core.Date { return d.AddYears(1) }),
	}
)

// GetStepper returns the stepper registered for a frequency.
func GetStepper(f core.Frequency) (Stepper, error) {
	steppersMu.RLock()
	defer steppersMu.RUnlock()
	s, ok := steppers[f]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrInvalidFrequency, f)
	}
	return s, nil
}

// RegisterStepper adds or replaces the stepper used for a frequency.
func RegisterStepper(f core.Frequency, s Stepper) {
	steppersMu.Lock()
	defer steppersMu.Unlock()
	steppers[f] = s
}

// AdvanceResult is the outcome of advancing one rule.
type AdvanceResult struct {
	Materialized []core.Transaction
	Rule         core.RecurringRule
	// From is the due date the rule had before advancing.
	From core.Date
	// Capped is set when the iteration bound stopped the loop while the rule
	// was still due.
	Capped bool
}

// Changed reports whether the rule's due date moved.
func (r AdvanceResult) Changed() bool {
	return len(r.Materialized) > 0
}

// Batch converts the result into the atomic commit unit for the store.
func (r AdvanceResult) Batch() core.Batch {
	return core.Batch{
		RuleID:       r.Rule.ID,
		PrevDueDate:  r.From,
		NextDueDate:  r.Rule.NextDueDate,
		Transactions: r.Materialized,
	}
}

// Advance materializes one transaction per elapsed occurrence of rule up to
// and including today, bounded by MaxOccurrencesPerAdvance. It performs no I/O.
// Materialized transactions carry no ID; the store assigns one on commit.
func Advance(rule core.RecurringRule, today core.Date) (AdvanceResult, error) {
	if rule.NextDueDate.IsZero() {
		return AdvanceResult{Rule: rule}, fmt.Errorf("rule %s: %w", rule.ID, core.ErrInvalidDate)
	}
	step, err := GetStepper(rule.Frequency)
	if err != nil {
		return AdvanceResult{Rule: rule}, fmt.Errorf("rule %s: %w", rule.ID, err)
	}

	res := AdvanceResult{Rule: rule, From: rule.NextDueDate}
	next := rule.NextDueDate
	for i := 0; next.OnOrBefore(today) && i < MaxOccurrencesPerAdvance; i++ {
		res.Materialized = append(res.Materialized, core.Transaction{
			Date:            next,
			Description:     rule.Description,
			Amount:          rule.Amount,
			Category:        rule.Category,
			Type:            rule.Type,
			RecurringRuleID: rule.ID,
		})
		next = step.Next(next)
	}
	res.Rule.NextDueDate = next
	res.Capped = next.OnOrBefore(today)
	return res, nil
}
