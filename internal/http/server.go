// Package http serves the ledger as a local JSON API with a websocket change stream.
package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"jizhang/internal/core"
	"jizhang/internal/log"
	"jizhang/internal/middleware/ratelimit"
	"jizhang/internal/middleware/security"
	"jizhang/internal/middleware/trace"
)

// Ledger is the store the API reads and mutates. *ledger.Store implements it.
type Ledger interface {
	Loaded() bool
	AddExpense(ctx context.Context, in core.ExpenseInput) core.Expense
	EditExpense(ctx context.Context, id string, in core.ExpenseInput) bool
	DeleteExpense(ctx context.Context, id string) bool
	SetBudget(ctx context.Context, month core.Month, amount float64)
	Budget(month core.Month) (float64, bool)
	Budgets() core.Budgets
	Expenses() []core.Expense
	Expense(id string) (core.Expense, bool)
}

// CategorySuggester proposes a category and never fails. *suggest.Service implements it.
type CategorySuggester interface {
	SuggestCategory(ctx context.Context, description string) core.Category
}

// Deps are the collaborators of the server. Suggester and Realtime may be nil.
type Deps struct {
	Ledger    Ledger
	Suggester CategorySuggester
	// Realtime serves the websocket change stream at /ws.
	Realtime http.Handler
	Logger   *log.Logger
	// TrustedProxies are CIDRs whose forwarding headers name the client, in
	// addition to loopback and private ranges.
	TrustedProxies []string
	// Now is the clock used for default months, for tests.
	Now func() time.Time
}

type Server struct {
	http.Server
	ledger    Ledger
	suggester CategorySuggester
	now       func() time.Time
	started   time.Time

	rateLimiter *ratelimit.Limiter
	detector    *security.Detector
	tracer      *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig()).WithComponent(log.ComponentHTTP)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	detector := security.NewDetector()
	for _, cidr := range deps.TrustedProxies {
		if err := detector.AddTrustedProxy(cidr); err != nil {
			deps.Logger.WarnContext(context.Background(), "Ignoring trusted proxy", log.FieldError, err)
		}
	}
	s := &Server{
		ledger:      deps.Ledger,
		suggester:   deps.Suggester,
		now:         deps.Now,
		started:     time.Now(),
		rateLimiter: ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector:    detector,
		tracer:      trace.NewMiddleware(deps.Logger, detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /api/stats", s.handleStats)

	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /api/expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("GET /api/budgets", s.handleListBudgets)
	mux.HandleFunc("GET /api/budgets/{month}", s.handleGetBudget)
	mux.HandleFunc("PUT /api/budgets/{month}", s.handleSetBudget)

	mux.HandleFunc("GET /api/overview", s.handleOverview)
	mux.HandleFunc("GET /api/breakdown", s.handleBreakdown)
	mux.HandleFunc("GET /api/months", s.handleMonths)
	mux.HandleFunc("GET /api/categories", s.handleCategories)

	mux.HandleFunc("POST /api/suggest-category", s.handleSuggestCategory)

	if deps.Realtime != nil {
		mux.Handle("GET /ws", deps.Realtime)
	}

	// Outermost first: tracing sees every response, including rate limited ones.
	var handler http.Handler = mux
	handler = security.NoStore(handler)
	handler = s.rateLimiter.Middleware(detector.ExtractClientIP, s.handleRateLimited,
		http.MethodPost, http.MethodPut, http.MethodDelete)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 16, // 64KB
	}
	return s
}

func (s *Server) handleRateLimited(w http.ResponseWriter, r *http.Request) {
	slog.WarnContext(r.Context(), "Rate limit exceeded",
		"client_ip", s.detector.ExtractClientIP(r), "method", r.Method, "path", r.URL.Path)
	writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded, please try again later")
}

// ListenAndServe runs the server until Shutdown; a clean shutdown returns nil.
func (s *Server) ListenAndServe() error {
	if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
