package http

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"teambudget/internal/services"
)

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.appMetrics.uptime).String(),
	}).Write(w)
}

// handleReady performs readiness check with dependency verification
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]any)

	if s.ready == nil {
		checks["store"] = "not_checked"
	} else if err := s.ready(ctx); err != nil {
		checks["store"] = fmt.Sprintf("failed: %v", err)
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	} else {
		checks["store"] = "ok"
	}

	checks["rate_limiter"] = map[string]any{
		"active_clients": s.rateLimiter.ActiveClients(),
		"status":         "ok",
	}

	NewJSONResponse().Status(httpStatus).Body(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Write(w)
}

// handleMetrics provides application and security metrics in plain text format
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")

	securityMetrics := s.securityDetector.GetMetrics()
	rateLimitMetrics := s.rateLimiter.GetMetrics()
	traceMetrics := s.traceMiddleware.GetMetrics()

	w.WriteHeader(http.StatusOK)

	// Prometheus text exposition format
	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", traceMetrics.TotalRequests)

	fmt.Fprintf(w, "# HELP http_server_errors_total Total number of 5xx responses\n")
	fmt.Fprintf(w, "# TYPE http_server_errors_total counter\n")
	fmt.Fprintf(w, "http_server_errors_total %d\n\n", traceMetrics.ServerErrors)

	fmt.Fprintf(w, "# HELP http_response_time_avg_microseconds Average response time\n")
	fmt.Fprintf(w, "# TYPE http_response_time_avg_microseconds gauge\n")
	fmt.Fprintf(w, "http_response_time_avg_microseconds %d\n\n", traceMetrics.AverageResponseTime)

	fmt.Fprintf(w, "# HELP transactions_created_total Total number of transactions created through the API\n")
	fmt.Fprintf(w, "# TYPE transactions_created_total counter\n")
	fmt.Fprintf(w, "transactions_created_total %d\n\n", atomic.LoadInt64(&s.appMetrics.transactionsCreated))

	fmt.Fprintf(w, "# HELP recurring_materialized_total Total transactions materialized by on-demand processing\n")
	fmt.Fprintf(w, "# TYPE recurring_materialized_total counter\n")
	fmt.Fprintf(w, "recurring_materialized_total %d\n\n", atomic.LoadInt64(&s.appMetrics.recurringProcessed))

	fmt.Fprintf(w, "# HELP rate_limit_hits_total Total rate limit hits\n")
	fmt.Fprintf(w, "# TYPE rate_limit_hits_total counter\n")
	fmt.Fprintf(w, "rate_limit_hits_total %d\n\n", rateLimitMetrics.TotalHits)

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", securityMetrics.SuspiciousRequests)

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", s.rateLimiter.ActiveClients())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", time.Since(s.appMetrics.uptime).Seconds())
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	today, err := s.today(r)
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		ServiceError(r, "dashboard", err).Write(w)
		return
	}
	NewJSONResponse().Body(newDashboardView(services.BuildDashboard(snap, today))).Write(w)
}

// handleNotifications recomputes the notification set for the day. It never
// marks anything as seen or sends e-mail; that is the worker's cycle.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	today, err := s.today(r)
	if err != nil {
		BadRequestError(r, err.Error()).Write(w)
		return
	}
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		ServiceError(r, "notifications", err).Write(w)
		return
	}
	ns := services.Derive(services.DeriveInput{
		Rules:        snap.Rules,
		Transactions: snap.Transactions,
		Budgets:      snap.Budgets,
		Today:        today,
	})
	NewJSONResponse().Body(map[string]any{
		"today":         today.String(),
		"notifications": newNotificationViews(ns),
	}).Write(w)
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		ServiceError(r, "snapshot", err).Write(w)
		return
	}
	NewJSONResponse().Body(newSnapshotView(snap)).Write(w)
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"advice": s.insights.Advice(r.Context())}).Write(w)
}
