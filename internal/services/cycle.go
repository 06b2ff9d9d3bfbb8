package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"teambudget/internal/core"
)

// CycleSource is the part of a store a cycle needs.
type CycleSource interface {
	SnapshotReader
	BatchCommitter
}

// Cycle is one full recomputation pass: materialize due recurring rules,
// derive notifications, publish the new ones and dispatch allocation alerts.
type Cycle struct {
	store      CycleSource
	processor  *RecurringProcessor
	dispatcher *AlertDispatcher
	seen       *SeenTracker
	publisher  NotificationPublisher

	// last derived set, served to readers between cycles
	mu   sync.RWMutex
	last []core.Notification
}

type CycleOption func(*Cycle)

// WithPublisher publishes newly seen notifications.
func WithPublisher(p NotificationPublisher) CycleOption {
	return func(c *Cycle) { c.publisher = p }
}

// WithSeenTracker replaces the default session tracker.
func WithSeenTracker(t *SeenTracker) CycleOption {
	return func(c *Cycle) { c.seen = t }
}

func NewCycle(store CycleSource, dispatcher *AlertDispatcher, opts ...CycleOption) *Cycle {
	c := &Cycle{
		store:      store,
		processor:  NewRecurringProcessor(store),
		dispatcher: dispatcher,
		seen:       NewSeenTracker(1024, 0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CycleReport summarizes a Run.
type CycleReport struct {
	Today         core.Date
	Recurring     ProcessResult
	Notifications []core.Notification
	Fresh         int
	Dispatch      DispatchReport
	Duration      time.Duration
	// RecurringErr is the non-fatal recurring commit failure, if any.
	RecurringErr error
}

// Run executes one cycle for today. Only a failed snapshot read aborts the run;
// recurring commit, publication and e-mail failures are logged and reported.
func (c *Cycle) Run(ctx context.Context, today core.Date) (CycleReport, error) {
	start := time.Now()
	report := CycleReport{Today: today}

	snap, err := c.store.Snapshot(ctx)
	if err != nil {
		return report, fmt.Errorf("read snapshot: %w", err)
	}

	report.Recurring, report.RecurringErr = c.processor.ProcessDue(ctx, snap.Rules, today)
	if report.Recurring.RulesAdvanced > 0 || report.Recurring.RulesStale > 0 {
		if snap, err = c.store.Snapshot(ctx); err != nil {
			return report, fmt.Errorf("re-read snapshot: %w", err)
		}
	}

	report.Notifications = Derive(DeriveInput{
		Rules:        snap.Rules,
		Transactions: snap.Transactions,
		Budgets:      snap.Budgets,
		Today:        today,
	})
	c.mu.Lock()
	c.last = report.Notifications
	c.mu.Unlock()

	fresh := c.seen.FilterUnseen(report.Notifications)
	report.Fresh = len(fresh)
	if c.publisher != nil {
		for _, n := range fresh {
			if err := c.publisher.PublishNotification(ctx, n); err != nil {
				slog.WarnContext(ctx, "Failed to publish notification",
					"notification_id", n.ID,
					"error", err)
			}
		}
	}

	if c.dispatcher != nil {
		report.Dispatch = c.dispatcher.DispatchAll(ctx, report.Notifications, snap.Settings)
	}

	report.Duration = time.Since(start)
	slog.InfoContext(ctx, "Cycle complete",
		"today", today.String(),
		"materialized", report.Recurring.Materialized,
		"notifications", len(report.Notifications),
		"fresh", report.Fresh,
		"alerts_sent", report.Dispatch.Sent,
		"alerts_failed", report.Dispatch.Failed,
		"duration", report.Duration)
	return report, nil
}

// Notifications returns the set derived by the latest Run.
func (c *Cycle) Notifications() []core.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]core.Notification(nil), c.last...)
}
