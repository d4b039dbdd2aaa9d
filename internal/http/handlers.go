package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"finreport/internal/anomaly"
	"finreport/internal/core"
	"finreport/internal/insights"
	applog "finreport/internal/log"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
	maxBodyBytes     = 1 << 20
)

// reportResponse marks whether the report is a non-persisted estimate.
type reportResponse struct {
	core.FinancialReport
	Estimate bool `json:"estimate"`
}

func periodParam(r *http.Request) string {
	if p := r.URL.Query().Get("period"); p != "" {
		return p
	}
	return string(core.Month)
}

// handleGenerateReport persists a new report. When generation fails the
// caller still gets an unsaved estimate built from the same data.
func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "userID")
	period := periodParam(r)

	report, err := s.reports.GenerateReport(ctx, userID, period)
	if err == nil {
		writeJSON(w, http.StatusCreated, reportResponse{FinancialReport: report})
		return
	}
	if !errors.Is(err, core.ErrReportGenerationFailed) {
		s.fail(w, r, err, applog.OpGenerate)
		return
	}

	log := applog.FromContext(ctx)
	log.WarnContext(ctx, "Report generation failed, serving estimate",
		applog.FieldUserID, userID,
		applog.FieldPeriod, period,
		applog.FieldError, err)

	estimate, estErr := s.reports.EstimateReport(ctx, userID, period)
	if estErr != nil {
		applog.LogError(ctx, log, "Report estimate failed", estErr, applog.OpEstimate,
			applog.NewFields().WithReport(userID, "", period))
		writeError(w, http.StatusServiceUnavailable, "report generation unavailable")
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{FinancialReport: estimate, Estimate: true})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxListLimit)
	}

	reports, err := s.reports.ListReports(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		s.fail(w, r, err, applog.OpList)
		return
	}
	if reports == nil {
		reports = []core.FinancialReport{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.reports.GetReport(r.Context(), chi.URLParam(r, "reportID"))
	if err != nil {
		s.fail(w, r, err, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, reportResponse{FinancialReport: report})
}

func (s *Server) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	opts, err := parseAnomalyOptions(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	flagged, err := s.reports.DetectUnusualSpending(r.Context(), chi.URLParam(r, "userID"), opts)
	if err != nil {
		s.fail(w, r, err, applog.OpDetect)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unusualTransactions": flagged})
}

func parseAnomalyOptions(r *http.Request) (anomaly.Options, error) {
	q := r.URL.Query()
	var opts anomaly.Options

	if v := q.Get("threshold"); v != "" {
		t, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
			return opts, fmt.Errorf("threshold must be a number")
		}
		opts.Threshold = anomaly.Threshold(t)
	}
	if v := firstOf(q, "startDate", "start"); v != "" {
		t, err := parseDate(v, false)
		if err != nil {
			return opts, fmt.Errorf("start: %w", err)
		}
		opts.Start = t
	}
	if v := firstOf(q, "endDate", "end"); v != "" {
		t, err := parseDate(v, true)
		if err != nil {
			return opts, fmt.Errorf("end: %w", err)
		}
		opts.End = t
	}
	if v := firstOf(q, "includeSeasonalContext", "seasonal"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, fmt.Errorf("seasonal must be a boolean")
		}
		opts.IncludeSeasonalContext = b
	}
	return opts, nil
}

func firstOf(q url.Values, keys ...string) string {
	for _, k := range keys {
		if v := q.Get(k); v != "" {
			return v
		}
	}
	return ""
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD or RFC 3339, got %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

type insightsRequest struct {
	Period           string                  `json:"period"`
	CategorySpending []core.CategorySpending `json:"categorySpending"`
	BudgetStatuses   []core.BudgetStatus     `json:"budgetStatuses"`
	MonthlyData      core.MonthlyData        `json:"monthlyData"`
	AccountBalance   decimal.Decimal         `json:"balance"`
}

// handleInsights runs the insight rules on caller-supplied aggregates.
// Bad aggregates degrade to the fallback message, never to an error.
func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	out := s.reports.GenerateInsights(insights.Input{
		Period:           core.Period(strings.ToLower(strings.TrimSpace(req.Period))),
		CategorySpending: req.CategorySpending,
		BudgetStatuses:   req.BudgetStatuses,
		MonthlyData:      req.MonthlyData,
		AccountBalance:   req.AccountBalance,
	})
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleTopCategories(w http.ResponseWriter, r *http.Request) {
	top, err := s.reports.TopCategories(r.Context(), chi.URLParam(r, "userID"), periodParam(r))
	if err != nil {
		s.fail(w, r, err, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": top})
}

func (s *Server) handleTopBudgets(w http.ResponseWriter, r *http.Request) {
	top, err := s.reports.TopBudgets(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.fail(w, r, err, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"budgets": top})
}

func (s *Server) handleBudgetComparison(w http.ResponseWriter, r *http.Request) {
	cmp, err := s.reports.CompareBudgets(r.Context(), chi.URLParam(r, "userID"), periodParam(r))
	if err != nil {
		s.fail(w, r, err, applog.OpRead)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"budgets": cmp})
}

// fail logs server-side errors and writes the mapped status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, op string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		fields := applog.NewFields()
		if userID := chi.URLParam(r, "userID"); userID != "" {
			fields[applog.FieldUserID] = userID
		}
		applog.LogError(r.Context(), applog.FromContext(r.Context()), "Request failed", err, op, fields)
	}
	writeError(w, status, publicMessage(status, err))
}
