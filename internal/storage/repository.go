// Package storage is the SQL store backing the ledger: SQLite through
// modernc.org/sqlite or PostgreSQL through pgx, with embedded migrations.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"teambudget/internal/core"
)

type Repository struct {
	db      *sql.DB
	dialect Dialect
	newID   func() string
}

// NewSQLiteRepository opens (creating if needed) the SQLite database at dbPath
// and applies migrations.
func NewSQLiteRepository(dbPath string) (*Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(context.Background(), SQLite, dbPath)
}

// NewPostgresRepository connects to dsn and applies migrations.
func NewPostgresRepository(ctx context.Context, dsn string) (*Repository, error) {
	return open(ctx, Postgres, dsn)
}

func open(ctx context.Context, dialect Dialect, dsn string) (*Repository, error) {
	db, err := sql.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dialect == SQLite {
		// one writer; batch commits must not interleave
		db.SetMaxOpenConns(1)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Repository{db: db, dialect: dialect, newID: uuid.NewString}, nil
}

func (r *Repository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping checks connectivity for health probes.
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Dialect() Dialect { return r.dialect }

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *Repository) exec(ctx context.Context, x execer, query string, args ...any) (sql.Result, error) {
	return x.ExecContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return r.db.QueryContext(ctx, r.dialect.Rebind(query), args...)
}

func (r *Repository) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return r.db.QueryRowContext(ctx, r.dialect.Rebind(query), args...)
}

// withTx runs fn inside a transaction, rolling back on error.
func (r *Repository) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.ErrorContext(ctx, "Rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func mustAffect(res sql.Result, what, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s %s: %w", what, id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", what, id, core.ErrNotFound)
	}
	return nil
}

// Snapshot reads every collection.
func (r *Repository) Snapshot(ctx context.Context) (core.Snapshot, error) {
	var (
		snap core.Snapshot
		err  error
	)
	if snap.Transactions, err = r.listTransactions(ctx); err != nil {
		return core.Snapshot{}, err
	}
	if snap.Rules, err = r.listRecurringRules(ctx); err != nil {
		return core.Snapshot{}, err
	}
	if snap.Budgets, err = r.listBudgets(ctx); err != nil {
		return core.Snapshot{}, err
	}
	if snap.Sources, err = r.listSources(ctx); err != nil {
		return core.Snapshot{}, err
	}
	if snap.Categories, err = r.listCategories(ctx); err != nil {
		return core.Snapshot{}, err
	}
	if snap.Goals, err = r.listGoals(ctx); err != nil {
		return core.Snapshot{}, err
	}
	if snap.Settings, err = r.settings(ctx); err != nil {
		return core.Snapshot{}, err
	}
	return snap, nil
}

// storedDate parses a persisted date. Unparseable values become the zero
// Date, which the classifier treats as malformed.
func storedDate(ctx context.Context, table, id, raw string) core.Date {
	if raw == "" {
		return core.Date{}
	}
	d, err := core.ParseDate(raw)
	if err != nil {
		slog.WarnContext(ctx, "Unparseable stored date", "table", table, "id", id, "value", raw)
		return core.Date{}
	}
	return d
}

const insertTransactionSQL = `INSERT INTO transactions
	(id, date, description, amount_cents, category, type, company, invoice_no, po_no, recurring_rule_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *Repository) insertTransaction(ctx context.Context, x execer, t core.Transaction) error {
	_, err := r.exec(ctx, x, insertTransactionSQL,
		t.ID, t.Date.String(), t.Description, t.Amount.Cents, t.Category, string(t.Type),
		t.Company, t.InvoiceNo, t.PONo, t.RecurringRuleID)
	return err
}

func (r *Repository) CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error) {
	if err := t.Validate(); err != nil {
		return core.Transaction{}, err
	}
	t.ID = r.newID()
	if err := r.insertTransaction(ctx, r.db, t); err != nil {
		return core.Transaction{}, fmt.Errorf("create transaction: %w", err)
	}

	slog.InfoContext(ctx, "Transaction saved",
		"id", t.ID,
		"type", t.Type,
		"category", t.Category,
		"amount_cents", t.Amount.Cents,
		"date", t.Date.String())

	return t, nil
}

func (r *Repository) DeleteTransaction(ctx context.Context, id string) error {
	res, err := r.exec(ctx, r.db, `DELETE FROM transactions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return mustAffect(res, "transaction", id)
}

func (r *Repository) listTransactions(ctx context.Context) ([]core.Transaction, error) {
	rows, err := r.query(ctx, `SELECT id, date, description, amount_cents, category, type,
		company, invoice_no, po_no, recurring_rule_id
		FROM transactions ORDER BY date DESC, created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	var out []core.Transaction
	for rows.Next() {
		var (
			t         core.Transaction
			date, typ string
		)
		if err := rows.Scan(&t.ID, &date, &t.Description, &t.Amount.Cents, &t.Category, &typ,
			&t.Company, &t.InvoiceNo, &t.PONo, &t.RecurringRuleID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Date = storedDate(ctx, "transactions", t.ID, date)
		t.Type = core.TransactionType(typ)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Repository) CreateRecurringRule(ctx context.Context, rule core.RecurringRule) (core.RecurringRule, error) {
	if err := rule.Validate(); err != nil {
		return core.RecurringRule{}, err
	}
	rule.ID = r.newID()
	_, err := r.exec(ctx, r.db, `INSERT INTO recurring_rules
		(id, description, amount_cents, category, type, frequency, next_due_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Description, rule.Amount.Cents, rule.Category, string(rule.Type),
		string(rule.Frequency), rule.NextDueDate.String())
	if err != nil {
		return core.RecurringRule{}, fmt.Errorf("create recurring rule: %w", err)
	}

	slog.InfoContext(ctx, "Recurring rule saved",
		"id", rule.ID,
		"frequency", rule.Frequency,
		"next_due_date", rule.NextDueDate.String())

	return rule, nil
}

func (r *Repository) DeleteRecurringRule(ctx context.Context, id string) error {
	res, err := r.exec(ctx, r.db, `DELETE FROM recurring_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete recurring rule: %w", err)
	}
	return mustAffect(res, "recurring rule", id)
}

func (r *Repository) UpdateRecurringRule(ctx context.Context, id string, next core.Date) error {
	res, err := r.exec(ctx, r.db, `UPDATE recurring_rules SET next_due_date = ? WHERE id = ?`, next.String(), id)
	if err != nil {
		return fmt.Errorf("update recurring rule: %w", err)
	}
	return mustAffect(res, "recurring rule", id)
}

func (r *Repository) listRecurringRules(ctx context.Context) ([]core.RecurringRule, error) {
	rows, err := r.query(ctx, `SELECT id, description, amount_cents, category, type, frequency, next_due_date
		FROM recurring_rules ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list recurring rules: %w", err)
	}
	defer rows.Close()

	var out []core.RecurringRule
	for rows.Next() {
		var (
			rule            core.RecurringRule
			typ, freq, next string
		)
		if err := rows.Scan(&rule.ID, &rule.Description, &rule.Amount.Cents, &rule.Category, &typ, &freq, &next); err != nil {
			return nil, fmt.Errorf("scan recurring rule: %w", err)
		}
		rule.Type = core.TransactionType(typ)
		rule.Frequency = core.Frequency(freq)
		rule.NextDueDate = storedDate(ctx, "recurring_rules", rule.ID, next)
		out = append(out, rule)
	}
	return out, rows.Err()
}

// CommitBatch advances the rule and inserts every materialized transaction
// inside one SQL transaction. The rule is only advanced while its due date
// still equals b.PrevDueDate; otherwise core.ErrStaleRule is returned and
// nothing is written.
func (r *Repository) CommitBatch(ctx context.Context, b core.Batch) error {
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := r.exec(ctx, tx, `UPDATE recurring_rules SET next_due_date = ?
			WHERE id = ? AND next_due_date = ?`,
			b.NextDueDate.String(), b.RuleID, b.PrevDueDate.String())
		if err != nil {
			return fmt.Errorf("advance recurring rule: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("advance recurring rule: %w", err)
		}
		if n == 0 {
			return r.staleOrMissing(ctx, tx, b.RuleID)
		}
		for _, t := range b.Transactions {
			t.ID = r.newID()
			t.RecurringRuleID = b.RuleID
			if err := r.insertTransaction(ctx, tx, t); err != nil {
				return fmt.Errorf("insert materialized transaction: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("commit recurring batch: %w", err)
	}

	slog.DebugContext(ctx, "Recurring batch committed",
		"rule_id", b.RuleID,
		"transactions", len(b.Transactions),
		"next_due_date", b.NextDueDate.String())
	return nil
}

func (r *Repository) staleOrMissing(ctx context.Context, tx *sql.Tx, ruleID string) error {
	var one int
	err := tx.QueryRowContext(ctx, r.dialect.Rebind(`SELECT 1 FROM recurring_rules WHERE id = ?`), ruleID).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("recurring rule %s: %w", ruleID, core.ErrNotFound)
	case err != nil:
		return fmt.Errorf("look up recurring rule: %w", err)
	}
	return fmt.Errorf("recurring rule %s: %w", ruleID, core.ErrStaleRule)
}

func (r *Repository) UpsertCategoryBudget(ctx context.Context, b core.CategoryBudget) (core.CategoryBudget, error) {
	if err := b.Validate(); err != nil {
		return core.CategoryBudget{}, err
	}
	err := r.queryRow(ctx, `INSERT INTO category_budgets (id, category, monthly_limit_cents, rollover)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (category) DO UPDATE SET
			monthly_limit_cents = excluded.monthly_limit_cents,
			rollover = excluded.rollover
		RETURNING id`,
		r.newID(), b.Category, b.MonthlyLimit.Cents, b.Rollover).Scan(&b.ID)
	if err != nil {
		return core.CategoryBudget{}, fmt.Errorf("upsert category budget: %w", err)
	}
	return b, nil
}

func (r *Repository) listBudgets(ctx context.Context) ([]core.CategoryBudget, error) {
	rows, err := r.query(ctx, `SELECT id, category, monthly_limit_cents, rollover
		FROM category_budgets ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("list category budgets: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryBudget
	for rows.Next() {
		var b core.CategoryBudget
		if err := rows.Scan(&b.ID, &b.Category, &b.MonthlyLimit.Cents, &b.Rollover); err != nil {
			return nil, fmt.Errorf("scan category budget: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repository) UpsertBudgetSource(ctx context.Context, s core.BudgetSource) (core.BudgetSource, error) {
	if err := s.Validate(); err != nil {
		return core.BudgetSource{}, err
	}
	err := r.queryRow(ctx, `INSERT INTO budget_sources (id, name, amount_cents, description)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			amount_cents = excluded.amount_cents,
			description = excluded.description
		RETURNING id`,
		r.newID(), string(s.Name), s.Amount.Cents, s.Description).Scan(&s.ID)
	if err != nil {
		return core.BudgetSource{}, fmt.Errorf("upsert budget source: %w", err)
	}
	return s, nil
}

func (r *Repository) listSources(ctx context.Context) ([]core.BudgetSource, error) {
	rows, err := r.query(ctx, `SELECT id, name, amount_cents, description FROM budget_sources ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list budget sources: %w", err)
	}
	defer rows.Close()

	var out []core.BudgetSource
	for rows.Next() {
		var (
			s    core.BudgetSource
			name string
		)
		if err := rows.Scan(&s.ID, &name, &s.Amount.Cents, &s.Description); err != nil {
			return nil, fmt.Errorf("scan budget source: %w", err)
		}
		s.Name = core.BudgetSourceName(name)
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *Repository) CreateCategory(ctx context.Context, c core.Category) (core.Category, error) {
	if err := c.Validate(); err != nil {
		return core.Category{}, err
	}
	c.ID = r.newID()
	if _, err := r.exec(ctx, r.db, `INSERT INTO categories (id, name, color, type) VALUES (?, ?, ?, ?)`,
		c.ID, c.Name, c.Color, string(c.Type)); err != nil {
		return core.Category{}, fmt.Errorf("create category: %w", err)
	}
	return c, nil
}

func (r *Repository) DeleteCategory(ctx context.Context, id string) error {
	res, err := r.exec(ctx, r.db, `DELETE FROM categories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete category: %w", err)
	}
	return mustAffect(res, "category", id)
}

func (r *Repository) listCategories(ctx context.Context) ([]core.Category, error) {
	rows, err := r.query(ctx, `SELECT id, name, color, type FROM categories ORDER BY type, name`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []core.Category
	for rows.Next() {
		var (
			c   core.Category
			typ string
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.Color, &typ); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.Type = core.TransactionType(typ)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *Repository) CreateSavingsGoal(ctx context.Context, g core.SavingsGoal) (core.SavingsGoal, error) {
	if err := g.Validate(); err != nil {
		return core.SavingsGoal{}, err
	}
	g.ID = r.newID()
	_, err := r.exec(ctx, r.db, `INSERT INTO savings_goals
		(id, name, target_amount_cents, current_amount_cents, target_date, color)
		VALUES (?, ?, ?, ?, ?, ?)`,
		g.ID, g.Name, g.TargetAmount.Cents, g.CurrentAmount.Cents, g.TargetDate.String(), g.Color)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("create savings goal: %w", err)
	}
	return g, nil
}

func (r *Repository) AddToSavingsGoal(ctx context.Context, id string, delta core.Money) (core.SavingsGoal, error) {
	res, err := r.exec(ctx, r.db,
		`UPDATE savings_goals SET current_amount_cents = current_amount_cents + ? WHERE id = ?`, delta.Cents, id)
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("update savings goal: %w", err)
	}
	if err := mustAffect(res, "savings goal", id); err != nil {
		return core.SavingsGoal{}, err
	}
	return r.goal(ctx, id)
}

func (r *Repository) DeleteSavingsGoal(ctx context.Context, id string) error {
	res, err := r.exec(ctx, r.db, `DELETE FROM savings_goals WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete savings goal: %w", err)
	}
	return mustAffect(res, "savings goal", id)
}

const goalColumns = `id, name, target_amount_cents, current_amount_cents, target_date, color`

type scanner interface {
	Scan(dest ...any) error
}

func scanGoal(ctx context.Context, s scanner) (core.SavingsGoal, error) {
	var (
		g    core.SavingsGoal
		date string
	)
	if err := s.Scan(&g.ID, &g.Name, &g.TargetAmount.Cents, &g.CurrentAmount.Cents, &date, &g.Color); err != nil {
		return core.SavingsGoal{}, err
	}
	g.TargetDate = storedDate(ctx, "savings_goals", g.ID, date)
	return g, nil
}

func (r *Repository) goal(ctx context.Context, id string) (core.SavingsGoal, error) {
	g, err := scanGoal(ctx, r.queryRow(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.SavingsGoal{}, fmt.Errorf("savings goal %s: %w", id, core.ErrNotFound)
	}
	if err != nil {
		return core.SavingsGoal{}, fmt.Errorf("get savings goal: %w", err)
	}
	return g, nil
}

func (r *Repository) listGoals(ctx context.Context) ([]core.SavingsGoal, error) {
	rows, err := r.query(ctx, `SELECT `+goalColumns+` FROM savings_goals ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list savings goals: %w", err)
	}
	defer rows.Close()

	var out []core.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("scan savings goal: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (r *Repository) SaveSettings(ctx context.Context, s core.AppSettings) error {
	_, err := r.exec(ctx, r.db, `INSERT INTO app_settings
		(id, alert_email, email_service_id, email_template_id, email_public_key)
		VALUES (1, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			alert_email = excluded.alert_email,
			email_service_id = excluded.email_service_id,
			email_template_id = excluded.email_template_id,
			email_public_key = excluded.email_public_key`,
		s.AlertEmail, s.Email.ServiceID, s.Email.TemplateID, s.Email.PublicKey)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}

func (r *Repository) settings(ctx context.Context) (core.AppSettings, error) {
	var s core.AppSettings
	err := r.queryRow(ctx, `SELECT alert_email, email_service_id, email_template_id, email_public_key
		FROM app_settings WHERE id = 1`).
		Scan(&s.AlertEmail, &s.Email.ServiceID, &s.Email.TemplateID, &s.Email.PublicKey)
	if errors.Is(err, sql.ErrNoRows) {
		return core.AppSettings{}, nil
	}
	if err != nil {
		return core.AppSettings{}, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

func (r *Repository) HasMarker(ctx context.Context, key string) (bool, error) {
	var n int
	err := r.queryRow(ctx, `SELECT COUNT(*) FROM alert_markers WHERE marker_key = ?`, key).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check marker: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) SetMarker(ctx context.Context, key string) error {
	if _, err := r.exec(ctx, r.db,
		`INSERT INTO alert_markers (marker_key) VALUES (?) ON CONFLICT (marker_key) DO NOTHING`, key); err != nil {
		return fmt.Errorf("set marker: %w", err)
	}
	return nil
}

// Seed inserts the default category and budget template when the store has no
// categories yet. It reports whether anything was written.
func (r *Repository) Seed(ctx context.Context) (bool, error) {
	var n int
	if err := r.queryRow(ctx, `SELECT COUNT(*) FROM categories`).Scan(&n); err != nil {
		return false, fmt.Errorf("count categories: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	err := r.withTx(ctx, func(tx *sql.Tx) error {
		for _, c := range core.DefaultCategories() {
			if _, err := r.exec(ctx, tx, `INSERT INTO categories (id, name, color, type) VALUES (?, ?, ?, ?)`,
				r.newID(), c.Name, c.Color, string(c.Type)); err != nil {
				return fmt.Errorf("seed category %s: %w", c.Name, err)
			}
		}
		for _, b := range core.DefaultBudgets() {
			if _, err := r.exec(ctx, tx, `INSERT INTO category_budgets (id, category, monthly_limit_cents, rollover)
				VALUES (?, ?, ?, ?) ON CONFLICT (category) DO NOTHING`,
				r.newID(), b.Category, b.MonthlyLimit.Cents, b.Rollover); err != nil {
				return fmt.Errorf("seed budget %s: %w", b.Category, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	slog.InfoContext(ctx, "Seeded default categories and budgets",
		"categories", len(core.DefaultCategories()),
		"budgets", len(core.DefaultBudgets()))
	return true, nil
}
