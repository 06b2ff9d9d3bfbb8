// Package memory is an in-process store used for tests and DATA_BACKEND=memory.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"teambudget/internal/core"
)

type Store struct {
	mu         sync.Mutex
	txs        []core.Transaction
	rules      []core.RecurringRule
	budgets    []core.CategoryBudget
	sources    []core.BudgetSource
	categories []core.Category
	goals      []core.SavingsGoal
	settings   core.AppSettings
	markers    map[string]struct{}

	// commitErr, when set, is returned by CommitBatch without applying anything.
	commitErr error
	newID     func() string
}

// New returns an empty store.
func New() *Store {
	return &Store{
		markers: make(map[string]struct{}),
		newID:   uuid.NewString,
	}
}

// NewSeeded returns a store holding the default category and budget template.
func NewSeeded() *Store {
	s := New()
	for _, c := range core.DefaultCategories() {
		c.ID = s.newID()
		s.categories = append(s.categories, c)
	}
	for _, b := range core.DefaultBudgets() {
		b.ID = s.newID()
		s.budgets = append(s.budgets, b)
	}
	return s
}

// FailCommits makes every CommitBatch fail with err until called with nil.
func (s *Store) FailCommits(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErr = err
}

func (s *Store) Snapshot(_ context.Context) (core.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return core.Snapshot{
		Transactions: append([]core.Transaction(nil), s.txs...),
		Rules:        append([]core.RecurringRule(nil), s.rules...),
		Budgets:      append([]core.CategoryBudget(nil), s.budgets...),
		Sources:      append([]core.BudgetSource(nil), s.sources...),
		Categories:   append([]core.Category(nil), s.categories...),
		Goals:        append([]core.SavingsGoal(nil), s.goals...),
		Settings:     s.settings,
	}, nil
}

// CommitBatch applies all transactions and the rule update under one lock,
// provided the rule still has the due date the batch was computed from.
func (s *Store) CommitBatch(_ context.Context, b core.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.commitErr != nil {
		return s.commitErr
	}
	i := s.ruleIndex(b.RuleID)
	if i < 0 {
		return fmt.Errorf("recurring rule %s: %w", b.RuleID, core.ErrNotFound)
	}
	if !s.rules[i].NextDueDate.Equal(b.PrevDueDate.Time) {
		return fmt.Errorf("recurring rule %s: %w", b.RuleID, core.ErrStaleRule)
	}
	for _, tx := range b.Transactions {
		tx.ID = s.newID()
		tx.RecurringRuleID = b.RuleID
		s.txs = append(s.txs, tx)
	}
	s.rules[i].NextDueDate = b.NextDueDate
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, tx core.Transaction) (core.Transaction, error) {
	if err := tx.Validate(); err != nil {
		return core.Transaction{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx.ID = s.newID()
	s.txs = append(s.txs, tx)
	return tx, nil
}

func (s *Store) DeleteTransaction(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.txs {
		if s.txs[i].ID == id {
			s.txs = append(s.txs[:i], s.txs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
}

func (s *Store) CreateRecurringRule(_ context.Context, r core.RecurringRule) (core.RecurringRule, error) {
	if err := r.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.newID()
	s.rules = append(s.rules, r)
	return r, nil
}

func (s *Store) DeleteRecurringRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ruleIndex(id)
	if i < 0 {
		return fmt.Errorf("recurring rule %s: %w", id, core.ErrNotFound)
	}
	s.rules = append(s.rules[:i], s.rules[i+1:]...)
	return nil
}

func (s *Store) UpdateRecurringRule(_ context.Context, id string, next core.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.ruleIndex(id)
	if i < 0 {
		return fmt.Errorf("recurring rule %s: %w", id, core.ErrNotFound)
	}
	s.rules[i].NextDueDate = next
	return nil
}

func (s *Store) UpsertCategoryBudget(_ context.Context, b core.CategoryBudget) (core.CategoryBudget, error) {
	if err := b.Validate(); err != nil {
		return core.CategoryBudget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.budgets {
		if s.budgets[i].Category == b.Category {
			s.budgets[i].MonthlyLimit = b.MonthlyLimit
			s.budgets[i].Rollover = b.Rollover
			return s.budgets[i], nil
		}
	}
	b.ID = s.newID()
	s.budgets = append(s.budgets, b)
	return b, nil
}

func (s *Store) UpsertBudgetSource(_ context.Context, src core.BudgetSource) (core.BudgetSource, error) {
	if err := src.Validate(); err != nil {
		return core.BudgetSource{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sources {
		if s.sources[i].Name == src.Name {
			s.sources[i].Amount = src.Amount
			s.sources[i].Description = src.Description
			return s.sources[i], nil
		}
	}
	src.ID = s.newID()
	s.sources = append(s.sources, src)
	return src, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if existing.Type == c.Type && strings.EqualFold(existing.Name, c.Name) {
			return existing, nil
		}
	}
	c.ID = s.newID()
	s.categories = append(s.categories, c)
	return c, nil
}

func (s *Store) DeleteCategory(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.categories {
		if s.categories[i].ID == id {
			s.categories = append(s.categories[:i], s.categories[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
}

func (s *Store) CreateSavingsGoal(_ context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	g.ID = s.newID()
	s.goals = append(s.goals, g)
	return g, nil
}

func (s *Store) AddToSavingsGoal(_ context.Context, id string, delta core.Money) (core.SavingsGoal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.goals {
		if s.goals[i].ID == id {
			s.goals[i].CurrentAmount = s.goals[i].CurrentAmount.Add(delta)
			return s.goals[i], nil
		}
	}
	return core.SavingsGoal{}, fmt.Errorf("savings goal %s: %w", id, core.ErrNotFound)
}

func (s *Store) DeleteSavingsGoal(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.goals {
		if s.goals[i].ID == id {
			s.goals = append(s.goals[:i], s.goals[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("savings goal %s: %w", id, core.ErrNotFound)
}

func (s *Store) SaveSettings(_ context.Context, settings core.AppSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *Store) HasMarker(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.markers[key]
	return ok, nil
}

func (s *Store) SetMarker(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markers[key] = struct{}{}
	return nil
}

func (s *Store) Close() error { return nil }

func (s *Store) ruleIndex(id string) int {
	for i := range s.rules {
		if s.rules[i].ID == id {
			return i
		}
	}
	return -1
}
