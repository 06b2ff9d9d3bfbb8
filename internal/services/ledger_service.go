package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/badoux/checkmail"

	"teambudget/internal/core"
)

var (
	ErrDuplicateCategory = errors.New("category already exists")
	ErrInvalidEmail      = errors.New("invalid alert e-mail address")
)

// DefaultCategoryColor is used when a category is created without a color.
const DefaultCategoryColor = "#64748b"

// LedgerStore is what the ledger service writes to.
type LedgerStore interface {
	SnapshotReader
	LedgerWriter
}

// LedgerService validates user-driven writes, applies them to the store and
// announces the change. A failed announcement never fails the write.
type LedgerService struct {
	store     LedgerStore
	publisher ChangePublisher
	now       func() time.Time
}

func NewLedgerService(store LedgerStore, publisher ChangePublisher) *LedgerService {
	return &LedgerService{
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

func (s *LedgerService) Snapshot(ctx context.Context) (core.Snapshot, error) {
	return s.store.Snapshot(ctx)
}

func (s *LedgerService) CreateTransaction(ctx context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	saved, err := s.store.CreateTransaction(ctx, tx)
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	s.announce(ctx, core.CollectionTransactions, "create", saved.ID)
	return saved, nil
}

func (s *LedgerService) DeleteTransaction(ctx context.Context, id string) error {
	if err := s.store.DeleteTransaction(ctx, id); err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	s.announce(ctx, core.CollectionTransactions, "delete", id)
	return nil
}

func (s *LedgerService) CreateRecurringRule(ctx context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	if err := r.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	saved, err := s.store.CreateRecurringRule(ctx, r)
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("save recurring rule: %w", err)
	}
	s.announce(ctx, core.CollectionRecurring, "create", saved.ID)
	return saved, nil
}

func (s *LedgerService) DeleteRecurringRule(ctx context.Context, id string) error {
	if err := s.store.DeleteRecurringRule(ctx, id); err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	s.announce(ctx, core.CollectionRecurring, "delete", id)
	return nil
}

// SetCategoryBudget creates or updates the budget for category.
func (s *LedgerService) SetCategoryBudget(ctx context.Context, category string, limit core.Money, rollover bool) (core.CategoryBudget, error) {
	b := core.CategoryBudget{
		Category:     strings.TrimSpace(category),
		MonthlyLimit: limit,
		Rollover:     rollover,
	}
	if err := b.Validate(); err != nil {
		return core.CategoryBudget{}, err
	}
	saved, err := s.store.UpsertCategoryBudget(ctx, b)
	if err != nil {
		return core.CategoryBudget{}, fmt.Errorf("save category budget: %w", err)
	}
	s.announce(ctx, core.CollectionBudgets, "upsert", saved.ID)
	return saved, nil
}

// SetBudgetSource creates or updates the single live record for name.
func (s *LedgerService) SetBudgetSource(ctx context.Context, name core.BudgetSourceName, amount core.Money, description string) (core.BudgetSource, error) {
	src := core.BudgetSource{
		Name:        name,
		Amount:      amount,
		Description: strings.TrimSpace(description),
	}
	if err := src.Validate(); err != nil {
		return core.BudgetSource{}, err
	}
	saved, err := s.store.UpsertBudgetSource(ctx, src)
	if err != nil {
		return core.BudgetSource{}, fmt.Errorf("save budget source: %w", err)
	}
	s.announce(ctx, core.CollectionSources, "upsert", saved.ID)
	return saved, nil
}

// AddCategory creates a category unless one with the same name (ignoring case)
// and type exists. Expense categories also get a zero budget.
func (s *LedgerService) AddCategory(ctx context.Context, c core.Category) (core.Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if c.Color == "" {
		c.Color = DefaultCategoryColor
	}
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}

	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return core.Category{}, fmt.Errorf("read categories: %w", err)
	}
	for _, existing := range snap.Categories {
		if existing.Type == c.Type && strings.EqualFold(existing.Name, c.Name) {
			return core.Category{}, fmt.Errorf("%w: %s", ErrDuplicateCategory, c.Name)
		}
	}

	saved, err := s.store.CreateCategory(ctx, c)
	if err != nil {
		return core.Category{}, fmt.Errorf("save category: %w", err)
	}
	s.announce(ctx, core.CollectionCategories, "create", saved.ID)

	if c.Type == core.Expense {
		if _, ok := snap.BudgetFor(c.Name); !ok {
			b, err := s.store.UpsertCategoryBudget(ctx, core.CategoryBudget{Category: c.Name})
			if err != nil {
				return saved, fmt.Errorf("seed budget for %s: %w", c.Name, err)
			}
			s.announce(ctx, core.CollectionBudgets, "upsert", b.ID)
		}
	}
	return saved, nil
}

func (s *LedgerService) DeleteCategory(ctx context.Context, id string) error {
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	s.announce(ctx, core.CollectionCategories, "delete", id)
	return nil
}

func (s *LedgerService) CreateSavingsGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	g.Name = strings.TrimSpace(g.Name)
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	saved, err := s.store.CreateSavingsGoal(ctx, g)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("save savings goal: %w", err)
	}
	s.announce(ctx, core.CollectionGoals, "create", saved.ID)
	return saved, nil
}

// ContributeToSavings adds a positive amount to a goal.
func (s *LedgerService) ContributeToSavings(ctx context.Context, id string, amount core.Money) (core.SavingsGoal, error) {
	if err := amount.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	saved, err := s.store.AddToSavingsGoal(ctx, id, amount)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update savings goal: %w", err)
	}
	s.announce(ctx, core.CollectionGoals, "update", id)
	return saved, nil
}

func (s *LedgerService) DeleteSavingsGoal(ctx context.Context, id string) error {
	if err := s.store.DeleteSavingsGoal(ctx, id); err != nil {
		return fmt.Errorf("delete savings goal: %w", err)
	}
	s.announce(ctx, core.CollectionGoals, "delete", id)
	return nil
}

// SaveSettings stores the alert configuration. An empty alert e-mail disables
// alerting; a malformed one is rejected.
func (s *LedgerService) SaveSettings(ctx context.Context, settings core.AppSettings) error {
	settings.AlertEmail = strings.TrimSpace(settings.AlertEmail)
	if settings.AlertEmail != "" {
		if err := checkmail.ValidateFormat(settings.AlertEmail); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidEmail, err)
		}
	}
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.announce(ctx, core.CollectionSettings, "update", "settings")
	return nil
}

func (s *LedgerService) announce(ctx context.Context, collection, op, id string) {
	if s.publisher == nil {
		slog.DebugContext(ctx, "Change publisher not available, skipping change event",
			"collection", collection)
		return
	}
	ev := core.ChangeEvent{Collection: collection, Op: op, ID: id, At: s.now()}
	if err := s.publisher.PublishChange(ctx, ev); err != nil {
		slog.ErrorContext(ctx, "Failed to publish change event",
			"collection", collection,
			"op", op,
			"id", id,
			"error", err)
	}
}
