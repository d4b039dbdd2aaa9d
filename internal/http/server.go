// Package http exposes the report engine as a JSON API.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"finreport/internal/anomaly"
	"finreport/internal/core"
	"finreport/internal/insights"
	applog "finreport/internal/log"
	"finreport/internal/middleware/ratelimit"
	"finreport/internal/middleware/security"
	"finreport/internal/middleware/trace"
)

// ReportAPI is the subset of the report service the handlers call.
type ReportAPI interface {
	GenerateReport(ctx context.Context, userID, period string) (core.FinancialReport, error)
	EstimateReport(ctx context.Context, userID, period string) (core.FinancialReport, error)
	ListReports(ctx context.Context, userID string, limit int) ([]core.FinancialReport, error)
	GetReport(ctx context.Context, id string) (core.FinancialReport, error)
	DetectUnusualSpending(ctx context.Context, userID string, opts anomaly.Options) ([]core.UnusualTransaction, error)
	GenerateInsights(in insights.Input) insights.Insights
	TopCategories(ctx context.Context, userID, period string) ([]core.CategorySpending, error)
	TopBudgets(ctx context.Context, userID string) ([]core.BudgetStatus, error)
	CompareBudgets(ctx context.Context, userID, period string) ([]core.BudgetComparison, error)
}

// Server is the API server.
type Server struct {
	http.Server
	reports  ReportAPI
	logger   *slog.Logger
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware
	ready    func(context.Context) error
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithRateLimit throttles report generation per client.
func WithRateLimit(cfg ratelimit.Config) Option {
	return func(s *Server) { s.limiter = ratelimit.NewLimiter(cfg) }
}

// WithReadiness sets the /readyz probe, typically a backend ping.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.ready = check }
}

// NewServer builds the router and the underlying http.Server.
func NewServer(addr string, reports ReportAPI, opts ...Option) *Server {
	s := &Server{
		reports: reports,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.detector = security.NewDetector(s.logger)
	s.tracer = trace.NewMiddleware(s.logger, s.detector.ClientIP)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.tracer.Handler)
	r.Use(applog.Middleware(s.logger, trace.RequestID))
	r.Use(security.Headers(security.DefaultHeadersConfig()))
	r.Use(s.detector.Guard)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/users/{userID}", func(r chi.Router) {
		r.With(s.limit).Post("/reports", s.handleGenerateReport)
		r.Get("/reports", s.handleListReports)
		r.Get("/anomalies", s.handleAnomalies)
		r.Get("/top-categories", s.handleTopCategories)
		r.Get("/top-budgets", s.handleTopBudgets)
		r.Get("/budget-comparison", s.handleBudgetComparison)
	})
	r.Get("/reports/{reportID}", s.handleGetReport)
	r.Post("/insights", s.handleInsights)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// limit applies the rate limiter when one is configured.
func (s *Server) limit(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter.Middleware(s.detector.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
	})(next)
}

// Shutdown stops accepting requests and releases the limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	return s.Server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := s.tracer.Metrics()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"requests":         m.TotalRequests,
		"failedRequests":   m.FailedRequests,
		"rejectedRequests": s.detector.SuspiciousCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			writeError(w, http.StatusServiceUnavailable, "backend unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
