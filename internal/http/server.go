package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"teambudget/internal/core"
	"teambudget/internal/log"
	"teambudget/internal/middleware/ratelimit"
	"teambudget/internal/middleware/security"
	"teambudget/internal/middleware/trace"
	"teambudget/internal/services"
)

// Deps are the services the API is built on. Insights and Ready are optional.
type Deps struct {
	Ledger    *services.LedgerService
	Insights  *services.InsightsService
	Processor *services.RecurringProcessor
	Location  *time.Location
	// Ready reports whether the backing store is reachable.
	Ready func(ctx context.Context) error
	// RateLimit overrides the default write limiter configuration.
	RateLimit *ratelimit.Config
	// Logger is attached to every request context; defaults to slog.Default.
	Logger *log.Logger
	// TrustedProxies are CIDRs, beyond the private ranges, whose forwarding
	// headers are honoured. Invalid entries are logged and skipped.
	TrustedProxies []string
}

type appMetrics struct {
	transactionsCreated int64
	recurringProcessed  int64
	uptime              time.Time
}

type Server struct {
	http.Server
	ledger    *services.LedgerService
	insights  *services.InsightsService
	processor *services.RecurringProcessor
	location  *time.Location
	ready     func(ctx context.Context) error
	logger    *log.Logger
	now       func() time.Time

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	if deps.Insights == nil {
		deps.Insights = services.NewInsightsService(deps.Ledger, nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = log.FromContext(context.Background())
	}
	rlConfig := ratelimit.DefaultConfig()
	if deps.RateLimit != nil {
		rlConfig = *deps.RateLimit
	}

	detector := security.NewDetector()
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			logger.Warn("Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s := &Server{
		ledger:           deps.Ledger,
		insights:         deps.Insights,
		processor:        deps.Processor,
		location:         loc,
		ready:            deps.Ready,
		logger:           logger,
		now:              time.Now,
		securityDetector: detector,
		rateLimiter:      ratelimit.NewLimiter(rlConfig),
		traceMiddleware:  trace.NewMiddleware(),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/dashboard", s.handleDashboard)
	mux.HandleFunc("GET /api/notifications", s.handleNotifications)
	mux.HandleFunc("GET /api/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /api/insights", s.handleInsights)

	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("POST /api/recurring", s.handleCreateRecurring)
	mux.HandleFunc("DELETE /api/recurring/{id}", s.handleDeleteRecurring)
	mux.HandleFunc("POST /api/recurring/process", s.handleProcessRecurring)
	mux.HandleFunc("PUT /api/budgets/{category}", s.handleSetBudget)
	mux.HandleFunc("PUT /api/sources/{name}", s.handleSetSource)
	mux.HandleFunc("POST /api/categories", s.handleCreateCategory)
	mux.HandleFunc("DELETE /api/categories/{id}", s.handleDeleteCategory)
	mux.HandleFunc("POST /api/savings", s.handleCreateGoal)
	mux.HandleFunc("POST /api/savings/{id}/contributions", s.handleContribute)
	mux.HandleFunc("DELETE /api/savings/{id}", s.handleDeleteGoal)
	mux.HandleFunc("PUT /api/settings", s.handleSaveSettings)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// middleware applies, outermost first: tracing, request logger, access
// logging, suspicious request detection, security headers, write rate limiting.
func (s *Server) middleware(next http.Handler) http.Handler {
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	limited := s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(r, http.StatusTooManyRequests, "rate limit exceeded, please try again later").Write(w)
	})(next)
	logged := log.Middleware(s.logger, log.ComponentHTTP, trace.RequestID)(
		log.AccessMiddleware(s.securityDetector.ExtractClientIP)(
			s.securityDetector.Middleware(
				headers.Middleware(limited))))
	return s.traceMiddleware.Middleware(logged)
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// today is the reference date for a request: the "date" query parameter when
// present, otherwise the current date in the configured location.
func (s *Server) today(r *http.Request) (core.Date, error) {
	d, ok, err := ParseDateParam(r, "date")
	if err != nil {
		return core.Date{}, err
	}
	if ok {
		return d, nil
	}
	return core.DateOf(s.now().In(s.location)), nil
}

func (s *Server) countTransaction() {
	atomic.AddInt64(&s.appMetrics.transactionsCreated, 1)
}
