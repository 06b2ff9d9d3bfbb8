package services

import (
	"fmt"
	"math"

	"teambudget/internal/core"
)

const (
	// UpcomingWindowDays is how far ahead recurring and pending events are announced.
	UpcomingWindowDays = 3
	// BudgetWarningPercent is the spend ratio at which a cap warning is raised.
	BudgetWarningPercent = 90
)

// DeriveInput is everything the notification deriver looks at.
type DeriveInput struct {
	Rules        []core.RecurringRule
	Transactions []core.Transaction
	Budgets      []core.CategoryBudget
	Today        core.Date
}

// Derive produces the notification set for the given day. Output order is
// recurring rules, then pending allocations, then budget caps, each in input
// order. Ids are unique within the result.
func Derive(in DeriveInput) []core.Notification {
	c := Classify(in.Transactions, in.Today)
	return DeriveFrom(in.Rules, c, EffectiveLimits(in.Budgets, c, in.Today), in.Today)
}

// DeriveFrom is Derive over an already computed classification and cap set.
func DeriveFrom(rules []core.RecurringRule, c *Classification, caps []CapStatus, today core.Date) []core.Notification {
	var out []core.Notification
	seen := make(map[string]struct{})
	emit := func(n core.Notification) {
		if _, dup := seen[n.ID]; dup {
			return
		}
		seen[n.ID] = struct{}{}
		out = append(out, n)
	}

	for _, r := range rules {
		if r.NextDueDate.IsZero() || !withinWindow(today, r.NextDueDate) {
			continue
		}
		emit(core.Notification{
			ID:       core.RecurringNotificationID(r.ID, r.NextDueDate),
			Kind:     core.KindRecurringDue,
			Message:  fmt.Sprintf("Upcoming: %s due on %s", r.Description, r.NextDueDate),
			Severity: core.Info,
			Date:     today,
			Subject: core.AlertSubject{
				Type:        r.Type,
				Description: r.Description,
				Category:    r.Category,
				Amount:      r.Amount,
				Date:        r.NextDueDate,
			},
		})
	}

	for _, tx := range c.Pending {
		if !withinWindow(today, tx.Date) {
			continue
		}
		emit(core.Notification{
			ID:       core.AllocationNotificationID(tx.ID),
			Kind:     core.KindPendingAllocation,
			Message:  fmt.Sprintf("Incoming Allocation: %s of %s expected on %s", tx.Description, tx.Amount.Format(), tx.Date),
			Severity: core.Info,
			Date:     today,
			Subject: core.AlertSubject{
				Type:        tx.Type,
				Description: tx.Description,
				Category:    tx.Category,
				Amount:      tx.Amount,
				Date:        tx.Date,
			},
		})
	}

	monthIndex := int(today.Month()) - 1
	for _, s := range caps {
		if !s.AtLeast(BudgetWarningPercent) {
			continue
		}
		emit(core.Notification{
			ID:       core.BudgetNotificationID(s.Budget.Category, monthIndex),
			Kind:     core.KindBudgetCap,
			Message:  fmt.Sprintf("Budget Alert: %s is at %d%% of monthly cap.", s.Budget.Category, int64(math.Round(s.Percent()))),
			Severity: core.Warning,
			Date:     today,
			Subject: core.AlertSubject{
				Type:     core.Expense,
				Category: s.Budget.Category,
				Amount:   s.Spent,
				Date:     today,
			},
		})
	}
	return out
}

func withinWindow(today, event core.Date) bool {
	d := today.DaysUntil(event)
	return d >= 0 && d <= UpcomingWindowDays
}
