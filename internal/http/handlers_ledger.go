package http

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"teambudget/internal/core"
	"teambudget/internal/log"
	"teambudget/internal/middleware/trace"
	"teambudget/internal/services"
)

type transactionRequest struct {
	Date        string `json:"date"`
	Description string `json:"description"`
	Amount      Amount `json:"amount"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	Company     string `json:"company"`
	InvoiceNo   string `json:"invoice_no"`
	PONo        string `json:"po_no"`
}

func (req transactionRequest) toTransaction() (core.Transaction, error) {
	date, err := core.ParseDate(req.Date)
	if err != nil {
		return core.Transaction{}, err
	}
	amount, err := req.Amount.Cents()
	if err != nil {
		return core.Transaction{}, err
	}
	return core.Transaction{
		Date:        date,
		Description: sanitizeInput(req.Description),
		Amount:      amount,
		Category:    sanitizeInput(req.Category),
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(req.Type))),
		Company:     sanitizeInput(req.Company),
		InvoiceNo:   sanitizeInput(req.InvoiceNo),
		PONo:        sanitizeInput(req.PONo),
	}, nil
}

type recurringRequest struct {
	Description string `json:"description"`
	Amount      Amount `json:"amount"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	Frequency   string `json:"frequency"`
	NextDueDate string `json:"next_due_date"`
}

func (req recurringRequest) toRule() (core.RecurringRule, error) {
	next, err := core.ParseDate(req.NextDueDate)
	if err != nil {
		return core.RecurringRule{}, err
	}
	amount, err := req.Amount.Cents()
	if err != nil {
		return core.RecurringRule{}, err
	}
	return core.RecurringRule{
		Description: sanitizeInput(req.Description),
		Amount:      amount,
		Category:    sanitizeInput(req.Category),
		Type:        core.TransactionType(strings.ToLower(strings.TrimSpace(req.Type))),
		Frequency:   core.Frequency(strings.ToLower(strings.TrimSpace(req.Frequency))),
		NextDueDate: next,
	}, nil
}

type budgetRequest struct {
	MonthlyLimit Amount `json:"monthly_limit"`
	Rollover     bool   `json:"rollover"`
}

type sourceRequest struct {
	Amount      Amount `json:"amount"`
	Description string `json:"description"`
}

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
	Type  string `json:"type"`
}

type goalRequest struct {
	Name          string `json:"name"`
	TargetAmount  Amount `json:"target_amount"`
	CurrentAmount Amount `json:"current_amount"`
	TargetDate    string `json:"target_date"`
	Color         string `json:"color"`
}

func (req goalRequest) toGoal() (core.SavingsGoal, error) {
	target, err := req.TargetAmount.Cents()
	if err != nil {
		return core.SavingsGoal{}, err
	}
	var current core.Money
	if req.CurrentAmount != "" {
		if current, err = req.CurrentAmount.Limit(); err != nil {
			return core.SavingsGoal{}, err
		}
	}
	var date core.Date
	if strings.TrimSpace(req.TargetDate) != "" {
		if date, err = core.ParseDate(req.TargetDate); err != nil {
			return core.SavingsGoal{}, err
		}
	}
	return core.SavingsGoal{
		Name:          sanitizeInput(req.Name),
		TargetAmount:  target,
		CurrentAmount: current,
		TargetDate:    date,
		Color:         sanitizeInput(req.Color),
	}, nil
}

type contributionRequest struct {
	Amount Amount `json:"amount"`
}

type settingsRequest struct {
	AlertEmail string `json:"alert_email"`
	ServiceID  string `json:"service_id"`
	TemplateID string `json:"template_id"`
	PublicKey  string `json:"public_key"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	tx, err := req.toTransaction()
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	saved, err := s.ledger.CreateTransaction(r.Context(), tx)
	if err != nil {
		ServiceError(r, log.OpCreate, err).Write(w)
		return
	}
	s.countTransaction()
	log.NewStructuredLogger(log.FromContext(r.Context())).
		LogTransactionCreated(r.Context(), saved.ID, saved.Description, saved.Amount.Cents, saved.Category, string(saved.Type), saved.Date.String())
	NewJSONResponse().Status(http.StatusCreated).Body(newTransactionView(saved)).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteTransaction(r.Context(), r.PathValue("id")); err != nil {
		ServiceError(r, log.OpDelete, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCreateRecurring(w http.ResponseWriter, r *http.Request) {
	var req recurringRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	rule, err := req.toRule()
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	saved, err := s.ledger.CreateRecurringRule(r.Context(), rule)
	if err != nil {
		ServiceError(r, log.OpCreate, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newRuleView(saved)).Write(w)
}

func (s *Server) handleDeleteRecurring(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteRecurringRule(r.Context(), r.PathValue("id")); err != nil {
		ServiceError(r, log.OpDelete, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

type processView struct {
	Today         string `json:"today"`
	Materialized  int    `json:"materialized"`
	RulesAdvanced int    `json:"rules_advanced"`
	RulesCapped   int    `json:"rules_capped"`
	RulesFailed   int    `json:"rules_failed"`
	RulesStale    int    `json:"rules_stale"`
	Error         string `json:"error,omitempty"`
}

// handleProcessRecurring materializes every due occurrence on demand. Commit
// failures are reported with the per-rule counts.
func (s *Server) handleProcessRecurring(w http.ResponseWriter, r *http.Request) {
	if s.processor == nil {
		ErrorResponse(r, http.StatusServiceUnavailable, "recurring processing not configured").Write(w)
		return
	}
	today, err := s.today(r)
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		ServiceError(r, "process_recurring", err).Write(w)
		return
	}
	res, err := s.processor.ProcessDue(r.Context(), snap.Rules, today)
	atomic.AddInt64(&s.appMetrics.recurringProcessed, int64(res.Materialized))

	view := processView{
		Today:         today.String(),
		Materialized:  res.Materialized,
		RulesAdvanced: res.RulesAdvanced,
		RulesCapped:   res.RulesCapped,
		RulesFailed:   res.RulesFailed,
		RulesStale:    res.RulesStale,
	}
	if err != nil {
		slog.ErrorContext(r.Context(), "On-demand recurring processing failed",
			log.FieldComponent, log.ComponentHTTP,
			log.FieldRequestID, trace.RequestID(r),
			log.FieldError, err)
		view.Error = services.ErrRecurringProcessing.Error()
		if !errors.Is(err, services.ErrRecurringProcessing) {
			view.Error = "internal error"
		}
		NewJSONResponse().Status(http.StatusInternalServerError).Body(view).Write(w)
		return
	}
	NewJSONResponse().Body(view).Write(w)
}

func (s *Server) handleSetBudget(w http.ResponseWriter, r *http.Request) {
	var req budgetRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	limit, err := req.MonthlyLimit.Limit()
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	saved, err := s.ledger.SetCategoryBudget(r.Context(), r.PathValue("category"), limit, req.Rollover)
	if err != nil {
		ServiceError(r, log.OpUpdate, err).Write(w)
		return
	}
	NewJSONResponse().Body(newBudgetView(saved)).Write(w)
}

func (s *Server) handleSetSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	amount, err := req.Amount.Limit()
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	name := core.BudgetSourceName(r.PathValue("name"))
	saved, err := s.ledger.SetBudgetSource(r.Context(), name, amount, sanitizeInput(req.Description))
	if err != nil {
		ServiceError(r, log.OpUpdate, err).Write(w)
		return
	}
	NewJSONResponse().Body(newSourceView(saved)).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	saved, err := s.ledger.AddCategory(r.Context(), core.Category{
		Name:  sanitizeInput(req.Name),
		Color: sanitizeInput(req.Color),
		Type:  core.TransactionType(strings.ToLower(strings.TrimSpace(req.Type))),
	})
	if err != nil {
		ServiceError(r, log.OpCreate, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newCategoryView(saved)).Write(w)
}

func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteCategory(r.Context(), r.PathValue("id")); err != nil {
		ServiceError(r, log.OpDelete, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleCreateGoal(w http.ResponseWriter, r *http.Request) {
	var req goalRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	goal, err := req.toGoal()
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	saved, err := s.ledger.CreateSavingsGoal(r.Context(), goal)
	if err != nil {
		ServiceError(r, log.OpCreate, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusCreated).Body(newGoalView(saved)).Write(w)
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	var req contributionRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	amount, err := req.Amount.Cents()
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	saved, err := s.ledger.ContributeToSavings(r.Context(), r.PathValue("id"), amount)
	if err != nil {
		ServiceError(r, log.OpUpdate, err).Write(w)
		return
	}
	NewJSONResponse().Body(newGoalView(saved)).Write(w)
}

func (s *Server) handleDeleteGoal(w http.ResponseWriter, r *http.Request) {
	if err := s.ledger.DeleteSavingsGoal(r.Context(), r.PathValue("id")); err != nil {
		ServiceError(r, log.OpDelete, err).Write(w)
		return
	}
	NewJSONResponse().Status(http.StatusNoContent).Write(w)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := DecodeJSON(w, r, &req); err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	settings := core.AppSettings{
		AlertEmail: sanitizeInput(req.AlertEmail),
		Email: core.EmailProviderConfig{
			ServiceID:  sanitizeInput(req.ServiceID),
			TemplateID: sanitizeInput(req.TemplateID),
			PublicKey:  sanitizeInput(req.PublicKey),
		},
	}
	if err := s.ledger.SaveSettings(r.Context(), settings); err != nil {
		ServiceError(r, log.OpUpdate, err).Write(w)
		return
	}
	NewJSONResponse().Body(newSettingsView(settings)).Write(w)
}
