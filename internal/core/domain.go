package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Daily   Frequency = "daily"
	Weekly  Frequency = "weekly"
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
)

const (
	Expense    TransactionType = "expense"
	Allocation TransactionType = "allocation"
)

const (
	PrimaryBudget   BudgetSourceName = "Primary Budget"
	PrincipleGrants BudgetSourceName = "Principle Grants"
	GroupGrants     BudgetSourceName = "Group Grants"
)

// DateLayout is the calendar-date wire format used by the store and the API.
const DateLayout = "2006-01-02"

type (
	Frequency        string
	TransactionType  string
	BudgetSourceName string

	// Date is a calendar date. The wrapped time is always midnight UTC.
	Date struct {
		time.Time
	}

	Money struct {
		Cents int64
	}

	Transaction struct {
		ID              string
		Date            Date
		Description     string
		Amount          Money
		Category        string
		Type            TransactionType
		Company         string
		InvoiceNo       string
		PONo            string
		RecurringRuleID string // set when materialized from a recurring rule
	}

	RecurringRule struct {
		ID          string
		Description string
		Amount      Money
		Category    string
		Type        TransactionType
		Frequency   Frequency
		NextDueDate Date
	}

	// CategoryBudget is keyed by Category; ID is the store's opaque identifier.
	CategoryBudget struct {
		ID           string
		Category     string
		MonthlyLimit Money
		Rollover     bool
	}

	BudgetSource struct {
		ID          string
		Name        BudgetSourceName
		Amount      Money
		Description string
	}

	Category struct {
		ID    string
		Name  string
		Color string
		Type  TransactionType
	}

	EmailProviderConfig struct {
		ServiceID  string
		TemplateID string
		PublicKey  string
	}

	AppSettings struct {
		AlertEmail string
		Email      EmailProviderConfig
	}

	SavingsGoal struct {
		ID            string
		Name          string
		TargetAmount  Money
		CurrentAmount Money
		TargetDate    Date
		Color         string
	}
)

var (
	ErrInvalidDate        = errors.New("invalid date")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrEmptyDescription   = errors.New("empty description")
	ErrEmptyCategory      = errors.New("empty category")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidFrequency   = errors.New("invalid frequency")
	ErrInvalidSourceName  = errors.New("invalid budget source name")
	ErrNegativeLimit      = errors.New("monthly limit cannot be negative")
	ErrDescriptionTooLong = errors.New("description too long (max 200 characters)")
	ErrNotFound           = errors.New("not found")
	ErrStaleRule          = errors.New("recurring rule already advanced")
)

// NewDate creates a new Date from year, month, day
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf drops the time of day of t, keeping the calendar date as seen in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// Today returns the current calendar date in loc.
func Today(loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(time.Now().In(loc))
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return Date{Time: t}, nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// AddDays returns the date n days later.
func (d Date) AddDays(n int) Date {
	return Date{Time: d.Time.AddDate(0, 0, n)}
}

// AddMonths uses AddDate overflow, so Jan 31 + 1 month is Mar 3 (Mar 2 in leap years).
func (d Date) AddMonths(n int) Date {
	return Date{Time: d.Time.AddDate(0, n, 0)}
}

// AddYears returns the date n years later. Feb 29 rolls to Mar 1.
func (d Date) AddYears(n int) Date {
	return Date{Time: d.Time.AddDate(n, 0, 0)}
}

// DaysUntil returns the whole days from d to other; negative if other is earlier.
func (d Date) DaysUntil(other Date) int {
	return int(other.Sub(d.Time).Hours() / 24)
}

// OnOrBefore reports whether d is the same day as other or earlier.
func (d Date) OnOrBefore(other Date) bool {
	return !d.After(other.Time)
}

// InMonth reports whether d falls in the given calendar month.
func (d Date) InMonth(month time.Month, year int) bool {
	return !d.IsZero() && d.Time.Month() == month && d.Time.Year() == year
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (t TransactionType) Valid() bool {
	return t == Expense || t == Allocation
}

func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Monthly, Yearly:
		return true
	}
	return false
}

func (n BudgetSourceName) Valid() bool {
	switch n {
	case PrimaryBudget, PrincipleGrants, GroupGrants:
		return true
	}
	return false
}

// BudgetSourceNames lists the funding sources in display order.
func BudgetSourceNames() []BudgetSourceName {
	return []BudgetSourceName{PrimaryBudget, PrincipleGrants, GroupGrants}
}

func validateDescription(desc string) error {
	if len(strings.TrimSpace(desc)) == 0 {
		return ErrEmptyDescription
	}
	if len(desc) > 200 {
		return ErrDescriptionTooLong
	}
	return nil
}

func (t Transaction) Validate() error {
	if err := t.Date.Validate(); err != nil {
		return err
	}
	if err := validateDescription(t.Description); err != nil {
		return err
	}
	if err := t.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(t.Category) == "" {
		return ErrEmptyCategory
	}
	if !t.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

func (r RecurringRule) Validate() error {
	if err := r.NextDueDate.Validate(); err != nil {
		return fmt.Errorf("invalid next due date: %w", err)
	}
	if !r.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if err := validateDescription(r.Description); err != nil {
		return err
	}
	if err := r.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(r.Category) == "" {
		return ErrEmptyCategory
	}
	if !r.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

func (b CategoryBudget) Validate() error {
	if strings.TrimSpace(b.Category) == "" {
		return ErrEmptyCategory
	}
	if b.MonthlyLimit.Cents < 0 {
		return ErrNegativeLimit
	}
	return nil
}

func (s BudgetSource) Validate() error {
	if !s.Name.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidSourceName, s.Name)
	}
	if s.Amount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyCategory
	}
	if !c.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// Complete reports whether every field needed to call the provider is present.
func (c EmailProviderConfig) Complete() bool {
	return strings.TrimSpace(c.ServiceID) != "" &&
		strings.TrimSpace(c.TemplateID) != "" &&
		strings.TrimSpace(c.PublicKey) != ""
}

// Progress returns the completion percentage, capped at 100.
func (g SavingsGoal) Progress() float64 {
	if g.TargetAmount.Cents <= 0 {
		return 0
	}
	p := float64(g.CurrentAmount.Cents) / float64(g.TargetAmount.Cents) * 100
	if p > 100 {
		return 100
	}
	return p
}

func (g SavingsGoal) Completed() bool {
	return g.TargetAmount.Cents > 0 && g.CurrentAmount.Cents >= g.TargetAmount.Cents
}

func (g SavingsGoal) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return ErrEmptyDescription
	}
	if g.TargetAmount.Cents <= 0 || g.CurrentAmount.Cents < 0 {
		return ErrInvalidAmount
	}
	return nil
}
