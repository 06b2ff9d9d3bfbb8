package core

import "fmt"

const (
	Info    Severity = "info"
	Warning Severity = "warning"
)

const (
	KindRecurringDue      NotificationKind = "recurring_due"
	KindPendingAllocation NotificationKind = "pending_allocation"
	KindBudgetCap         NotificationKind = "budget_cap"
)

type (
	Severity         string
	NotificationKind string

	// AlertSubject is the event a notification was derived from.
	AlertSubject struct {
		Type        TransactionType
		Description string
		Category    string
		Amount      Money
		Date        Date
	}

	// Notification ids are deterministic so recomputation never duplicates them.
	Notification struct {
		ID       string
		Kind     NotificationKind
		Message  string
		Severity Severity
		Date     Date
		Read     bool
		Subject  AlertSubject
	}
)

func RecurringNotificationID(ruleID string, due Date) string {
	return fmt.Sprintf("rec-%s-%s", ruleID, due)
}

func AllocationNotificationID(txID string) string {
	return "alloc-" + txID
}

// BudgetNotificationID uses the zero-based month index, one id per category per month.
func BudgetNotificationID(category string, monthIndex int) string {
	return fmt.Sprintf("budget-%s-%d", category, monthIndex)
}

// IsAllocationAlert reports whether n concerns an allocation event and
// should be delivered by e-mail.
func (n Notification) IsAllocationAlert() bool {
	switch n.Kind {
	case KindPendingAllocation:
		return true
	case KindRecurringDue:
		return n.Subject.Type == Allocation
	}
	return false
}
