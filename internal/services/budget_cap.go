package services

import "teambudget/internal/core"

// EffectiveLimit returns the category's cap for the current month. With
// rollover enabled the unspent part of last month's base limit is carried over.
// Negative inputs are treated as zero, so the result is never below the limit.
func EffectiveLimit(budget core.CategoryBudget, priorMonthSpend core.Money) core.Money {
	limit := max(budget.MonthlyLimit.Cents, 0)
	if !budget.Rollover {
		return core.Money{Cents: limit}
	}
	return core.Money{Cents: limit + RolloverCarry(budget, priorMonthSpend).Cents}
}

// RolloverCarry is max(0, limit - prior spend) for rollover budgets, zero otherwise.
func RolloverCarry(budget core.CategoryBudget, priorMonthSpend core.Money) core.Money {
	if !budget.Rollover {
		return core.Money{}
	}
	limit := max(budget.MonthlyLimit.Cents, 0)
	prior := max(priorMonthSpend.Cents, 0)
	return core.Money{Cents: max(limit-prior, 0)}
}

// CapStatus is the evaluated cap of one category for a reference month.
type CapStatus struct {
	Budget         core.CategoryBudget
	Spent          core.Money
	PriorSpent     core.Money
	Carry          core.Money
	EffectiveLimit core.Money
}

// Configured reports whether a non-zero cap applies. A zero limit means no cap
// has been configured yet.
func (s CapStatus) Configured() bool {
	return s.EffectiveLimit.Cents > 0
}

// Percent is spend relative to the effective limit, or 0 when unconfigured.
func (s CapStatus) Percent() float64 {
	if !s.Configured() {
		return 0
	}
	return float64(s.Spent.Cents) / float64(s.EffectiveLimit.Cents) * 100
}

// AtLeast reports spend/limit >= pct/100 using integer arithmetic.
func (s CapStatus) AtLeast(pct int64) bool {
	return s.Configured() && s.Spent.Cents*100 >= s.EffectiveLimit.Cents*pct
}

// EffectiveLimits evaluates every budget for the calendar month containing today,
// using the previous calendar month's realized spend as rollover input.
func EffectiveLimits(budgets []core.CategoryBudget, c *Classification, today core.Date) []CapStatus {
	cur := c.SpendByCategory(today.Month(), today.Year())
	prevMonth := today.AddDate(0, 0, -today.Day()+1).AddDate(0, -1, 0)
	prev := c.SpendByCategory(prevMonth.Month(), prevMonth.Year())

	out := make([]CapStatus, 0, len(budgets))
	for _, b := range budgets {
		prior := prev[b.Category]
		out = append(out, CapStatus{
			Budget:         b,
			Spent:          cur[b.Category],
			PriorSpent:     prior,
			Carry:          RolloverCarry(b, prior),
			EffectiveLimit: EffectiveLimit(b, prior),
		})
	}
	return out
}
