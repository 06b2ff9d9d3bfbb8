package http

import (
	"teambudget/internal/core"
	"teambudget/internal/services"
)

// Wire representations. Amounts are always carried as integer cents plus a
// display string; dates as YYYY-MM-DD.

type moneyView struct {
	Cents   int64  `json:"cents"`
	Value   string `json:"value"`
	Display string `json:"display"`
}

func newMoneyView(m core.Money) moneyView {
	return moneyView{Cents: m.Cents, Value: m.String(), Display: m.Format()}
}

type transactionView struct {
	ID              string    `json:"id"`
	Date            string    `json:"date"`
	Description     string    `json:"description"`
	Amount          moneyView `json:"amount"`
	Category        string    `json:"category"`
	Type            string    `json:"type"`
	Company         string    `json:"company,omitempty"`
	InvoiceNo       string    `json:"invoice_no,omitempty"`
	PONo            string    `json:"po_no,omitempty"`
	RecurringRuleID string    `json:"recurring_rule_id,omitempty"`
}

func newTransactionView(tx core.Transaction) transactionView {
	return transactionView{
		ID:              tx.ID,
		Date:            tx.Date.String(),
		Description:     tx.Description,
		Amount:          newMoneyView(tx.Amount),
		Category:        tx.Category,
		Type:            string(tx.Type),
		Company:         tx.Company,
		InvoiceNo:       tx.InvoiceNo,
		PONo:            tx.PONo,
		RecurringRuleID: tx.RecurringRuleID,
	}
}

func newTransactionViews(txs []core.Transaction) []transactionView {
	out := make([]transactionView, 0, len(txs))
	for _, tx := range txs {
		out = append(out, newTransactionView(tx))
	}
	return out
}

type ruleView struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Amount      moneyView `json:"amount"`
	Category    string    `json:"category"`
	Type        string    `json:"type"`
	Frequency   string    `json:"frequency"`
	NextDueDate string    `json:"next_due_date"`
}

func newRuleView(r core.RecurringRule) ruleView {
	return ruleView{
		ID:          r.ID,
		Description: r.Description,
		Amount:      newMoneyView(r.Amount),
		Category:    r.Category,
		Type:        string(r.Type),
		Frequency:   string(r.Frequency),
		NextDueDate: r.NextDueDate.String(),
	}
}

type budgetView struct {
	ID           string    `json:"id"`
	Category     string    `json:"category"`
	MonthlyLimit moneyView `json:"monthly_limit"`
	Rollover     bool      `json:"rollover"`
}

func newBudgetView(b core.CategoryBudget) budgetView {
	return budgetView{ID: b.ID, Category: b.Category, MonthlyLimit: newMoneyView(b.MonthlyLimit), Rollover: b.Rollover}
}

type capView struct {
	Category       string    `json:"category"`
	MonthlyLimit   moneyView `json:"monthly_limit"`
	Rollover       bool      `json:"rollover"`
	Spent          moneyView `json:"spent"`
	PriorSpent     moneyView `json:"prior_spent"`
	Carry          moneyView `json:"carry"`
	EffectiveLimit moneyView `json:"effective_limit"`
	Percent        float64   `json:"percent"`
	Configured     bool      `json:"configured"`
}

func newCapView(s services.CapStatus) capView {
	return capView{
		Category:       s.Budget.Category,
		MonthlyLimit:   newMoneyView(s.Budget.MonthlyLimit),
		Rollover:       s.Budget.Rollover,
		Spent:          newMoneyView(s.Spent),
		PriorSpent:     newMoneyView(s.PriorSpent),
		Carry:          newMoneyView(s.Carry),
		EffectiveLimit: newMoneyView(s.EffectiveLimit),
		Percent:        s.Percent(),
		Configured:     s.Configured(),
	}
}

type sourceView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Amount      moneyView `json:"amount"`
	Description string    `json:"description,omitempty"`
}

func newSourceView(s core.BudgetSource) sourceView {
	return sourceView{ID: s.ID, Name: string(s.Name), Amount: newMoneyView(s.Amount), Description: s.Description}
}

type categoryView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color"`
	Type  string `json:"type"`
}

func newCategoryView(c core.Category) categoryView {
	return categoryView{ID: c.ID, Name: c.Name, Color: c.Color, Type: string(c.Type)}
}

type goalView struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	TargetAmount  moneyView `json:"target_amount"`
	CurrentAmount moneyView `json:"current_amount"`
	TargetDate    string    `json:"target_date,omitempty"`
	Color         string    `json:"color,omitempty"`
	Progress      float64   `json:"progress"`
	Completed     bool      `json:"completed"`
}

func newGoalView(g core.SavingsGoal) goalView {
	return goalView{
		ID:            g.ID,
		Name:          g.Name,
		TargetAmount:  newMoneyView(g.TargetAmount),
		CurrentAmount: newMoneyView(g.CurrentAmount),
		TargetDate:    g.TargetDate.String(),
		Color:         g.Color,
		Progress:      g.Progress(),
		Completed:     g.Completed(),
	}
}

type settingsView struct {
	AlertEmail string `json:"alert_email"`
	ServiceID  string `json:"service_id"`
	TemplateID string `json:"template_id"`
	PublicKey  string `json:"public_key"`
	Configured bool   `json:"configured"`
}

func newSettingsView(s core.AppSettings) settingsView {
	return settingsView{
		AlertEmail: s.AlertEmail,
		ServiceID:  s.Email.ServiceID,
		TemplateID: s.Email.TemplateID,
		PublicKey:  s.Email.PublicKey,
		Configured: s.AlertEmail != "" && s.Email.Complete(),
	}
}

type notificationView struct {
	ID       string    `json:"id"`
	Kind     string    `json:"kind"`
	Severity string    `json:"severity"`
	Message  string    `json:"message"`
	Date     string    `json:"date"`
	Read     bool      `json:"read"`
	Type     string    `json:"type,omitempty"`
	Category string    `json:"category,omitempty"`
	Amount   moneyView `json:"amount"`
	Event    string    `json:"event_date,omitempty"`
}

func newNotificationViews(ns []core.Notification) []notificationView {
	out := make([]notificationView, 0, len(ns))
	for _, n := range ns {
		out = append(out, notificationView{
			ID:       n.ID,
			Kind:     string(n.Kind),
			Severity: string(n.Severity),
			Message:  n.Message,
			Date:     n.Date.String(),
			Read:     n.Read,
			Type:     string(n.Subject.Type),
			Category: n.Subject.Category,
			Amount:   newMoneyView(n.Subject.Amount),
			Event:    n.Subject.Date.String(),
		})
	}
	return out
}

type categoryAmountView struct {
	Name   string    `json:"name"`
	Amount moneyView `json:"amount"`
}

func newCategoryAmountViews(in []core.CategoryAmount) []categoryAmountView {
	out := make([]categoryAmountView, 0, len(in))
	for _, c := range in {
		out = append(out, categoryAmountView{Name: c.Name, Amount: newMoneyView(c.Amount)})
	}
	return out
}

type dashboardView struct {
	Today              string               `json:"today"`
	TotalAllocations   moneyView            `json:"total_allocations"`
	TotalExpenses      moneyView            `json:"total_expenses"`
	Balance            moneyView            `json:"balance"`
	PendingAllocations moneyView            `json:"pending_allocations"`
	FundingTotal       moneyView            `json:"funding_total"`
	Sources            []sourceView         `json:"sources"`
	ExpensesByCategory []categoryAmountView `json:"expenses_by_category"`
	Budgets            []capView            `json:"budgets"`
	Recent             []transactionView    `json:"recent"`
	Goals              []goalView           `json:"goals"`
}

func newDashboardView(d services.Dashboard) dashboardView {
	v := dashboardView{
		Today:              d.Today.String(),
		TotalAllocations:   newMoneyView(d.TotalAllocations),
		TotalExpenses:      newMoneyView(d.TotalExpenses),
		Balance:            newMoneyView(d.Balance),
		PendingAllocations: newMoneyView(d.PendingAllocations),
		FundingTotal:       newMoneyView(d.FundingTotal),
		Sources:            make([]sourceView, 0, len(d.Sources)),
		ExpensesByCategory: newCategoryAmountViews(d.ExpensesByCategory),
		Budgets:            make([]capView, 0, len(d.Budgets)),
		Recent:             newTransactionViews(d.Recent),
		Goals:              make([]goalView, 0, len(d.Goals)),
	}
	for _, s := range d.Sources {
		v.Sources = append(v.Sources, newSourceView(s))
	}
	for _, b := range d.Budgets {
		v.Budgets = append(v.Budgets, newCapView(b))
	}
	for _, g := range d.Goals {
		v.Goals = append(v.Goals, newGoalView(g))
	}
	return v
}

type snapshotView struct {
	Transactions []transactionView `json:"transactions"`
	Rules        []ruleView        `json:"recurring"`
	Budgets      []budgetView      `json:"budgets"`
	Sources      []sourceView      `json:"sources"`
	Categories   []categoryView    `json:"categories"`
	Goals        []goalView        `json:"savings"`
	Settings     settingsView      `json:"settings"`
}

func newSnapshotView(s core.Snapshot) snapshotView {
	v := snapshotView{
		Transactions: newTransactionViews(s.Transactions),
		Rules:        make([]ruleView, 0, len(s.Rules)),
		Budgets:      make([]budgetView, 0, len(s.Budgets)),
		Sources:      make([]sourceView, 0, len(s.Sources)),
		Categories:   make([]categoryView, 0, len(s.Categories)),
		Goals:        make([]goalView, 0, len(s.Goals)),
		Settings:     newSettingsView(s.Settings),
	}
	for _, r := range s.Rules {
		v.Rules = append(v.Rules, newRuleView(r))
	}
	for _, b := range s.Budgets {
		v.Budgets = append(v.Budgets, newBudgetView(b))
	}
	for _, src := range s.Sources {
		v.Sources = append(v.Sources, newSourceView(src))
	}
	for _, c := range s.Categories {
		v.Categories = append(v.Categories, newCategoryView(c))
	}
	for _, g := range s.Goals {
		v.Goals = append(v.Goals, newGoalView(g))
	}
	return v
}
