package services

import (
	"context"

	"teambudget/internal/core"
)

// SnapshotReader delivers the full current state of every collection.
type SnapshotReader interface {
	Snapshot(ctx context.Context) (core.Snapshot, error)
}

// BatchCommitter applies a recurring batch atomically: every transaction and
// the rule's new due date commit together, or none do.
type BatchCommitter interface {
	CommitBatch(ctx context.Context, b core.Batch) error
}

// LedgerWriter covers the explicit user-driven writes.
type LedgerWriter interface {
	CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id string) error
	CreateRecurringRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error)
	DeleteRecurringRule(ctx context.Context, id string) error
	UpdateRecurringRule(ctx context.Context, id string, next core.Date) error
	// UpsertCategoryBudget is keyed by category, not by storage id.
	UpsertCategoryBudget(ctx context.Context, b core.CategoryBudget) (core.CategoryBudget, error)
	// UpsertBudgetSource keeps at most one live record per source name.
	UpsertBudgetSource(ctx context.Context, s core.BudgetSource) (core.BudgetSource, error)
	CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
	// DeleteCategory removes the definition only; budgets and transactions keep the name.
	DeleteCategory(ctx context.Context, id string) error
	CreateSavingsGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error)
	// AddToSavingsGoal adds delta to the goal's current amount and returns the new goal.
	AddToSavingsGoal(ctx context.Context, id string, delta core.Money) (core.SavingsGoal, error)
	DeleteSavingsGoal(ctx context.Context, id string) error
	SaveSettings(ctx context.Context, s core.AppSettings) error
}

// MarkerStore is a key-presence store for sent markers.
type MarkerStore interface {
	HasMarker(ctx context.Context, key string) (bool, error)
	SetMarker(ctx context.Context, key string) error
}

// Store is everything a backend provides.
type Store interface {
	SnapshotReader
	BatchCommitter
	LedgerWriter
	MarkerStore
	Close() error
}

// ChangePublisher announces collection changes so workers can recompute.
type ChangePublisher interface {
	PublishChange(ctx context.Context, ev core.ChangeEvent) error
}

// NotificationPublisher fans newly surfaced notifications out to subscribers.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, n core.Notification) error
}

// AlertEmail is the template payload sent for an allocation alert.
type AlertEmail struct {
	To          string
	Description string
	Amount      string
	Date        string
	Message     string
	Link        string
}

// EmailSender delivers one alert e-mail through the external provider.
type EmailSender interface {
	Send(ctx context.Context, msg AlertEmail, cfg core.EmailProviderConfig) error
}

// AdviceGenerator turns category summaries into advice text.
type AdviceGenerator interface {
	Generate(ctx context.Context, in AdviceInput) (string, error)
}
