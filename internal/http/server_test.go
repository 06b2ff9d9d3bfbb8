package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"teambudget/internal/core"
	"teambudget/internal/middleware/ratelimit"
	"teambudget/internal/middleware/trace"
	"teambudget/internal/services"
	"teambudget/internal/storage/memory"
)

type testServer struct {
	*Server
	store *memory.Store
}

func newTestServer(t *testing.T, mutate ...func(*Deps)) *testServer {
	t.Helper()
	store := memory.New()
	deps := Deps{
		Ledger:    services.NewLedgerService(store, nil),
		Processor: services.NewRecurringProcessor(store),
		Ready:     func(context.Context) error { return nil },
		RateLimit: &ratelimit.Config{RequestsPerMinute: 1000, WritesOnly: true},
	}
	for _, m := range mutate {
		m(&deps)
	}
	srv := NewServer(":0", deps)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testServer{Server: srv, store: store}
}

func (ts *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &v), "body: %s", rr.Body.String())
	return v
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rr)["status"])

	rr = ts.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ready", decode[map[string]any](t, rr)["status"])
}

func TestReadyReportsStoreFailure(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) {
		d.Ready = func(context.Context) error { return errors.New("database is closed") }
	})

	rr := ts.do(t, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode[map[string]any](t, rr)
	assert.Equal(t, "not_ready", body["status"])
	assert.Contains(t, body["checks"].(map[string]any)["store"], "database is closed")
}

func TestCreateTransaction(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/transactions",
		`{"date":"2025-03-10","description":"Meta ads","amount":"920.50","category":"Ads","type":"expense","company":"Meta"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	tx := decode[transactionView](t, rr)
	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, "2025-03-10", tx.Date)
	assert.Equal(t, int64(92050), tx.Amount.Cents)
	assert.Equal(t, "920.50", tx.Amount.Value)
	assert.Equal(t, "Meta", tx.Company)

	snap, err := ts.store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Transactions, 1)
	assert.Equal(t, core.Expense, snap.Transactions[0].Type)
}

func TestCreateTransaction_NumericAmount(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/transactions",
		`{"date":"2025-03-10","description":"Grant","amount":1500,"category":"Quarterly Budget","type":"allocation"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, int64(150000), decode[transactionView](t, rr).Amount.Cents)
}

func TestCreateTransaction_Rejected(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"not json", "date=2025-03-10"},
		{"unknown field", `{"date":"2025-03-10","description":"x","amount":"1","category":"Ads","type":"expense","extra":1}`},
		{"bad date", `{"date":"10/03/2025","description":"x","amount":"1","category":"Ads","type":"expense"}`},
		{"zero amount", `{"date":"2025-03-10","description":"x","amount":"0","category":"Ads","type":"expense"}`},
		{"negative amount", `{"date":"2025-03-10","description":"x","amount":"-5","category":"Ads","type":"expense"}`},
		{"empty description", `{"date":"2025-03-10","description":"  ","amount":"1","category":"Ads","type":"expense"}`},
		{"bad type", `{"date":"2025-03-10","description":"x","amount":"1","category":"Ads","type":"refund"}`},
		{"trailing data", `{"date":"2025-03-10","description":"x","amount":"1","category":"Ads","type":"expense"} {}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rr := ts.do(t, http.MethodPost, "/api/transactions", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
			assert.NotEmpty(t, decode[errorBody](t, rr).Error)

			snap, err := ts.store.Snapshot(context.Background())
			require.NoError(t, err)
			assert.Empty(t, snap.Transactions)
		})
	}
}

func TestDeleteTransaction(t *testing.T) {
	ts := newTestServer(t)
	created, err := ts.store.CreateTransaction(context.Background(), core.Transaction{
		Date: core.NewDate(2025, 3, 1), Description: "Ads", Amount: core.Money{Cents: 100}, Category: "Ads", Type: core.Expense,
	})
	require.NoError(t, err)

	rr := ts.do(t, http.MethodDelete, "/api/transactions/"+created.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/api/transactions/"+created.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/api/transactions", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestBudgetDashboardAndNotifications(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPut, "/api/budgets/Ads", `{"monthly_limit":"1000"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, int64(100000), decode[budgetView](t, rr).MonthlyLimit.Cents)

	rr = ts.do(t, http.MethodPost, "/api/transactions",
		`{"date":"2025-03-10","description":"Meta ads","amount":"920","category":"Ads","type":"expense"}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	rr = ts.do(t, http.MethodPost, "/api/transactions",
		`{"date":"2025-03-17","description":"Extra grant","amount":"2500","category":"Extra Grant","type":"allocation"}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = ts.do(t, http.MethodGet, "/api/dashboard?date=2025-03-15", "")
	require.Equal(t, http.StatusOK, rr.Code)
	dash := decode[dashboardView](t, rr)
	assert.Equal(t, "2025-03-15", dash.Today)
	assert.Equal(t, int64(92000), dash.TotalExpenses.Cents)
	assert.Equal(t, int64(0), dash.TotalAllocations.Cents)
	assert.Equal(t, int64(250000), dash.PendingAllocations.Cents)
	require.Len(t, dash.Budgets, 1)
	assert.InDelta(t, 92.0, dash.Budgets[0].Percent, 0.001)

	rr = ts.do(t, http.MethodGet, "/api/notifications?date=2025-03-15", "")
	require.Equal(t, http.StatusOK, rr.Code)
	body := decode[struct {
		Today         string             `json:"today"`
		Notifications []notificationView `json:"notifications"`
	}](t, rr)
	var ids []string
	for _, n := range body.Notifications {
		ids = append(ids, n.ID)
	}
	require.Len(t, ids, 2)
	assert.True(t, strings.HasPrefix(ids[0], "alloc-"), "pending allocations come before budget caps")
	assert.Equal(t, core.BudgetNotificationID("Ads", 2), ids[1])
	assert.Equal(t, string(core.Warning), body.Notifications[1].Severity)
}

func TestInvalidDateParam(t *testing.T) {
	ts := newTestServer(t)
	for _, path := range []string{"/api/dashboard?date=tomorrow", "/api/notifications?date=2025-13-01"} {
		rr := ts.do(t, http.MethodGet, path, "")
		assert.Equal(t, http.StatusBadRequest, rr.Code, path)
	}
}

func TestSetBudgetRejectsNegativeLimit(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodPut, "/api/budgets/Ads", `{"monthly_limit":"-1"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSetSource(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPut, "/api/sources/Primary%20Budget", `{"amount":"50000","description":"FY25"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	src := decode[sourceView](t, rr)
	assert.Equal(t, "Primary Budget", src.Name)
	assert.Equal(t, int64(5000000), src.Amount.Cents)

	rr = ts.do(t, http.MethodPut, "/api/sources/Primary%20Budget", `{"amount":"60000"}`)
	require.Equal(t, http.StatusOK, rr.Code)

	snap, err := ts.store.Snapshot(context.Background())
	require.NoError(t, err)
	require.Len(t, snap.Sources, 1, "one live record per source name")
	assert.Equal(t, int64(6000000), snap.Sources[0].Amount.Cents)

	rr = ts.do(t, http.MethodPut, "/api/sources/Side%20Hustle", `{"amount":"1"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestCategories(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/categories", `{"name":"Ads","type":"expense"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	cat := decode[categoryView](t, rr)
	assert.Equal(t, services.DefaultCategoryColor, cat.Color)

	rr = ts.do(t, http.MethodPost, "/api/categories", `{"name":"ads","type":"expense"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	snap, err := ts.store.Snapshot(context.Background())
	require.NoError(t, err)
	_, ok := snap.BudgetFor("Ads")
	assert.True(t, ok, "expense categories get a zero budget")

	rr = ts.do(t, http.MethodDelete, "/api/categories/"+cat.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
	rr = ts.do(t, http.MethodDelete, "/api/categories/"+cat.ID, "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRecurringLifecycle(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/recurring",
		`{"description":"Quarterly grant","amount":"9000","category":"Quarterly Budget","type":"allocation","frequency":"monthly","next_due_date":"2025-02-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rule := decode[ruleView](t, rr)

	rr = ts.do(t, http.MethodPost, "/api/recurring/process?date=2025-03-15", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	res := decode[processView](t, rr)
	assert.Equal(t, 2, res.Materialized)
	assert.Equal(t, 1, res.RulesAdvanced)

	snap, err := ts.store.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Len(t, snap.Transactions, 2)
	require.Len(t, snap.Rules, 1)
	assert.Equal(t, core.NewDate(2025, 4, 1), snap.Rules[0].NextDueDate)

	// Processing again the same day is a no-op
	rr = ts.do(t, http.MethodPost, "/api/recurring/process?date=2025-03-15", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 0, decode[processView](t, rr).Materialized)

	rr = ts.do(t, http.MethodDelete, "/api/recurring/"+rule.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRecurringRejectsBadFrequency(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodPost, "/api/recurring",
		`{"description":"x","amount":"1","category":"Ads","type":"expense","frequency":"hourly","next_due_date":"2025-02-01"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestProcessRecurringCommitFailure(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.store.CreateRecurringRule(context.Background(), core.RecurringRule{
		Description: "Rent", Amount: core.Money{Cents: 100}, Category: "Office", Type: core.Expense,
		Frequency: core.Monthly, NextDueDate: core.NewDate(2025, 3, 1),
	})
	require.NoError(t, err)
	ts.store.FailCommits(errors.New("disk full"))

	rr := ts.do(t, http.MethodPost, "/api/recurring/process?date=2025-03-15", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	res := decode[processView](t, rr)
	assert.Equal(t, services.ErrRecurringProcessing.Error(), res.Error)
	assert.Equal(t, 1, res.RulesFailed)
	assert.NotContains(t, rr.Body.String(), "disk full")
}

func TestSavingsGoals(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPost, "/api/savings", `{"name":"Offsite","target_amount":"1000","target_date":"2025-12-01"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	goal := decode[goalView](t, rr)
	assert.Zero(t, goal.Progress)

	rr = ts.do(t, http.MethodPost, "/api/savings/"+goal.ID+"/contributions", `{"amount":"250"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	goal = decode[goalView](t, rr)
	assert.Equal(t, int64(25000), goal.CurrentAmount.Cents)
	assert.InDelta(t, 25.0, goal.Progress, 0.001)

	rr = ts.do(t, http.MethodPost, "/api/savings/"+goal.ID+"/contributions", `{"amount":"0"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodDelete, "/api/savings/"+goal.ID, "")
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = ts.do(t, http.MethodPost, "/api/savings/"+goal.ID+"/contributions", `{"amount":"1"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSaveSettings(t *testing.T) {
	ts := newTestServer(t)

	rr := ts.do(t, http.MethodPut, "/api/settings", `{"alert_email":"not-an-email","service_id":"s","template_id":"t","public_key":"k"}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = ts.do(t, http.MethodPut, "/api/settings", `{"alert_email":"team@example.com","service_id":"s","template_id":"t","public_key":"k"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.True(t, decode[settingsView](t, rr).Configured)

	rr = ts.do(t, http.MethodGet, "/api/snapshot", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "team@example.com", decode[snapshotView](t, rr).Settings.AlertEmail)
}

func TestInsightsFallback(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/api/insights", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, services.AdviceUnavailable, decode[map[string]string](t, rr)["advice"])
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	ts := newTestServer(t, func(d *Deps) {
		d.RateLimit = &ratelimit.Config{RequestsPerMinute: 1, WritesOnly: true}
	})
	body := `{"name":"Ads","type":"expense"}`

	assert.Equal(t, http.StatusCreated, ts.do(t, http.MethodPost, "/api/categories", body).Code)
	rr := ts.do(t, http.MethodPost, "/api/categories", body)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "60", rr.Header().Get("Retry-After"))

	// Reads are not limited
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/api/snapshot", "").Code)
}

func TestTrustedProxiesForwardClientIP(t *testing.T) {
	post := func(ts *testServer, forwardedFor string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/categories", strings.NewReader(`{"name":"Ads `+forwardedFor+`","type":"expense"}`))
		req.RemoteAddr = "198.51.100.7:4000"
		req.Header.Set("X-Forwarded-For", forwardedFor)
		rr := httptest.NewRecorder()
		ts.Handler.ServeHTTP(rr, req)
		return rr.Code
	}
	limited := func(d *Deps) { d.RateLimit = &ratelimit.Config{RequestsPerMinute: 1, WritesOnly: true} }

	t.Run("configured proxy", func(t *testing.T) {
		ts := newTestServer(t, limited, func(d *Deps) { d.TrustedProxies = []string{"198.51.100.0/24", "bogus"} })
		assert.Equal(t, http.StatusCreated, post(ts, "203.0.113.1"))
		assert.Equal(t, http.StatusCreated, post(ts, "203.0.113.2"))
	})

	t.Run("unknown proxy", func(t *testing.T) {
		ts := newTestServer(t, limited)
		assert.Equal(t, http.StatusCreated, post(ts, "203.0.113.1"))
		assert.Equal(t, http.StatusTooManyRequests, post(ts, "203.0.113.2"))
	})
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	ts := newTestServer(t)
	rr := ts.do(t, http.MethodGet, "/api/snapshot?file=../secret", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestRequestIDAndHeaders(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/snapshot", nil)
	req.Header.Set(trace.HeaderRequestID, "req_abc123")
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, req)

	assert.Equal(t, "req_abc123", rr.Header().Get(trace.HeaderRequestID))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "application/json; charset=utf-8", rr.Header().Get("Content-Type"))

	rr = ts.do(t, http.MethodDelete, "/api/transactions/missing", "")
	assert.Equal(t, rr.Header().Get(trace.HeaderRequestID), decode[errorBody](t, rr).RequestID)
}

func TestMetrics(t *testing.T) {
	ts := newTestServer(t)
	ts.do(t, http.MethodPost, "/api/transactions",
		`{"date":"2025-03-10","description":"Ads","amount":"1","category":"Ads","type":"expense"}`)

	rr := ts.do(t, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "http_requests_total 1")
	assert.Contains(t, rr.Body.String(), "transactions_created_total 1")
}
