// Package worker runs the recomputation cycle in response to change events
// and on a periodic tick.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"teambudget/internal/amqp"
	"teambudget/internal/core"
	"teambudget/internal/log"
	"teambudget/internal/services"
)

// CycleRunner is satisfied by *services.Cycle.
type CycleRunner interface {
	Run(ctx context.Context, today core.Date) (services.CycleReport, error)
}

// Config holds configuration for the cycle worker
type Config struct {
	// Interval is how often a cycle runs without any change event (default: 1h).
	// It also picks up the day boundary, when pending allocations become realized.
	Interval time.Duration

	// Location decides which calendar day "today" is (default: UTC).
	Location *time.Location
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Interval: time.Hour,
		Location: time.UTC,
	}
}

// CycleWorker serialises cycles: change events and ticks never run concurrently.
type CycleWorker struct {
	runner CycleRunner
	config Config
	now    func() time.Time

	runMu   sync.Mutex
	last    atomic.Pointer[services.CycleReport]
	runs    atomic.Int64
	trigger chan struct{}

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewCycleWorker(runner CycleRunner, config Config) *CycleWorker {
	def := DefaultConfig()
	if config.Interval <= 0 {
		config.Interval = def.Interval
	}
	if config.Location == nil {
		config.Location = def.Location
	}
	return &CycleWorker{
		runner:  runner,
		config:  config,
		now:     time.Now,
		trigger: make(chan struct{}, 1),
	}
}

// Today returns the current calendar date in the configured location.
func (w *CycleWorker) Today() core.Date {
	return core.DateOf(w.now().In(w.config.Location))
}

// RunOnce runs a single cycle, waiting for any cycle already in progress.
func (w *CycleWorker) RunOnce(ctx context.Context, reason string) (services.CycleReport, error) {
	w.runMu.Lock()
	defer w.runMu.Unlock()

	if err := ctx.Err(); err != nil {
		return services.CycleReport{}, err
	}

	report, err := w.runner.Run(ctx, w.Today())
	w.runs.Add(1)
	if err != nil {
		slog.ErrorContext(ctx, "Cycle failed",
			log.FieldComponent, log.ComponentWorker,
			log.FieldOperation, log.OpCycle,
			"reason", reason,
			log.FieldError, err)
		return report, fmt.Errorf("run cycle: %w", err)
	}
	if report.RecurringErr != nil {
		slog.WarnContext(ctx, "Cycle completed with recurring failures",
			log.FieldComponent, log.ComponentWorker,
			"reason", reason,
			"rules_failed", report.Recurring.RulesFailed,
			log.FieldError, report.RecurringErr)
	}
	w.last.Store(&report)
	return report, nil
}

// HandleChange is the AMQP change handler. A failed cycle is not requeued;
// the next tick or change retries it.
func (w *CycleWorker) HandleChange(ctx context.Context, msg *amqp.ChangeMessage) error {
	slog.DebugContext(ctx, "Change event received",
		log.FieldComponent, log.ComponentWorker,
		log.FieldCollection, msg.Collection,
		log.FieldOperation, msg.Op,
		"id", msg.ID)
	_, _ = w.RunOnce(ctx, "change:"+msg.Collection)
	return nil
}

// PublishChange lets an in-process ledger drive the worker without a broker.
// Bursts of changes coalesce into one pending cycle run by the loop.
func (w *CycleWorker) PublishChange(_ context.Context, _ core.ChangeEvent) error {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
	return nil
}

// LastReport returns the report of the latest successful cycle.
func (w *CycleWorker) LastReport() (services.CycleReport, bool) {
	r := w.last.Load()
	if r == nil {
		return services.CycleReport{}, false
	}
	return *r, true
}

// Runs counts attempted cycles.
func (w *CycleWorker) Runs() int64 {
	return w.runs.Load()
}

// Start begins the tick loop. Returns an error if already running.
func (w *CycleWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("cycle worker is already running")
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	w.mu.Unlock()

	go w.runLoop(ctx)

	slog.InfoContext(ctx, "Cycle worker started",
		log.FieldComponent, log.ComponentWorker,
		"interval", w.config.Interval,
		"timezone", w.config.Location.String())

	return nil
}

// Stop gracefully stops the worker and waits for the current cycle.
func (w *CycleWorker) Stop(ctx context.Context) error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	stopCh, doneCh := w.stopCh, w.doneCh
	w.running = false
	w.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Cycle worker stopped gracefully", log.FieldComponent, log.ComponentWorker)
		return nil
	case <-ctx.Done():
		slog.WarnContext(ctx, "Cycle worker stop timed out", log.FieldComponent, log.ComponentWorker)
		return ctx.Err()
	}
}

// IsRunning returns whether the worker loop is currently running
func (w *CycleWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *CycleWorker) runLoop(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Run immediately on startup
	_, _ = w.RunOnce(ctx, "startup")

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx, "tick")
		case <-w.trigger:
			_, _ = w.RunOnce(ctx, "change")
		}
	}
}
