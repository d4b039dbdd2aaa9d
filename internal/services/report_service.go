// Package services orchestrates report generation over the ledger ports.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"finreport/internal/analytics"
	"finreport/internal/anomaly"
	"finreport/internal/cache"
	"finreport/internal/core"
	"finreport/internal/insights"
	applog "finreport/internal/log"
	"finreport/internal/ports"
)

// DefaultFetchTimeout bounds the parallel ledger fetch of one report.
const DefaultFetchTimeout = 10 * time.Second

var hundred = decimal.NewFromInt(100)

// ReportService assembles, persists and serves financial reports.
type ReportService struct {
	ledger    ports.LedgerReader
	store     ports.ReportStore
	publisher ports.EventPublisher
	cache     cache.Cache[core.FinancialReport]

	aggregator   *analytics.Aggregator
	generator    *insights.Generator
	detector     *anomaly.Detector
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

type Option func(*ReportService)

// WithPublisher announces every persisted report.
func WithPublisher(p ports.EventPublisher) Option {
	return func(s *ReportService) { s.publisher = p }
}

// WithCache serves GetReport from c and fills it on generation.
func WithCache(c cache.Cache[core.FinancialReport]) Option {
	return func(s *ReportService) { s.cache = c }
}

func WithAggregator(a *analytics.Aggregator) Option {
	return func(s *ReportService) { s.aggregator = a }
}

func WithGenerator(g *insights.Generator) Option {
	return func(s *ReportService) { s.generator = g }
}

func WithDetector(d *anomaly.Detector) Option {
	return func(s *ReportService) { s.detector = d }
}

func WithFetchTimeout(d time.Duration) Option {
	return func(s *ReportService) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithClock sets the reference instant used to resolve periods.
func WithClock(now func() time.Time) Option {
	return func(s *ReportService) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *ReportService) { s.logger = l }
}

func NewReportService(ledger ports.LedgerReader, store ports.ReportStore, opts ...Option) *ReportService {
	s := &ReportService{
		ledger:       ledger,
		store:        store,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = applog.WithComponent(s.logger, applog.ComponentReport)
	if s.aggregator == nil {
		s.aggregator = analytics.NewAggregator(nil)
	}
	if s.generator == nil {
		s.generator = insights.NewGenerator(insights.WithLogger(s.logger))
	}
	if s.detector == nil {
		s.detector = anomaly.NewDetector(anomaly.WithClock(s.now), anomaly.WithLogger(s.logger))
	}
	return s
}

// ledgerSnapshot is everything one report reads, fetched in parallel.
type ledgerSnapshot struct {
	user         core.User
	bills        []core.Bill
	budgets      []core.Budget
	transactions []core.Transaction
}

func (s *ReportService) fetch(ctx context.Context, userID string, rng core.DateRange) (ledgerSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	var snap ledgerSnapshot
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := s.ledger.User(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch user: %w", err)
		}
		snap.user = u
		return nil
	})
	g.Go(func() error {
		bills, err := s.ledger.BillsInRange(gctx, userID, rng.Start, rng.End)
		if err != nil {
			return fmt.Errorf("fetch bills: %w", err)
		}
		snap.bills = bills
		return nil
	})
	g.Go(func() error {
		budgets, err := s.ledger.Budgets(gctx, userID)
		if err != nil {
			return fmt.Errorf("fetch budgets: %w", err)
		}
		snap.budgets = budgets
		return nil
	})
	g.Go(func() error {
		txs, err := s.ledger.TransactionsInRange(gctx, userID, rng.Start, rng.End)
		if err != nil {
			return fmt.Errorf("fetch transactions: %w", err)
		}
		snap.transactions = txs
		return nil
	})
	if err := g.Wait(); err != nil {
		return ledgerSnapshot{}, err
	}
	return snap, nil
}

// compose runs the whole pipeline without persisting.
func (s *ReportService) compose(ctx context.Context, userID, period string) (core.FinancialReport, error) {
	if userID == "" {
		return core.FinancialReport{}, core.ErrEmptyUserID
	}
	w, err := analytics.ResolveString(period, s.now())
	if err != nil {
		return core.FinancialReport{}, err
	}

	snap, err := s.fetch(ctx, userID, w.Range)
	if err != nil {
		return core.FinancialReport{}, classify(err)
	}

	categories, err := s.aggregator.CategorySpending(snap.bills, w.Range)
	if err != nil {
		return core.FinancialReport{}, classify(err)
	}
	statuses, err := s.aggregator.BudgetStatuses(snap.budgets)
	if err != nil {
		return core.FinancialReport{}, classify(err)
	}
	series, err := s.aggregator.MonthlySeries(snap.transactions, w)
	if err != nil {
		return core.FinancialReport{}, classify(err)
	}

	out := s.generator.Generate(insights.Input{
		Period:           w.Period,
		CategorySpending: categories,
		BudgetStatuses:   statuses,
		MonthlyData:      series,
		AccountBalance:   snap.user.Balance,
	})

	// The running balance stands in for period income.
	income := snap.user.Balance
	expenses := analytics.SumBills(analytics.PaidInRange(snap.bills, w.Range))

	return core.FinancialReport{
		UserID:           userID,
		Period:           w.Period,
		StartDate:        w.Range.Start,
		EndDate:          w.Range.End,
		CategorySpending: categories,
		BudgetStatuses:   statuses,
		MonthlyData:      series,
		Insights:         out.Insights,
		Recommendations:  out.Recommendations,
		TotalIncome:      income,
		TotalExpenses:    expenses,
		SavingsRate:      SavingsRate(income, expenses),
	}, nil
}

// classify passes caller errors through and wraps everything else as a
// generation failure.
func classify(err error) error {
	switch {
	case errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrInvalidPeriod),
		errors.Is(err, core.ErrEmptyUserID):
		return err
	default:
		return fmt.Errorf("%w: %w", core.ErrReportGenerationFailed, err)
	}
}

// SavingsRate is (income-expenses)/income*100, or 0 when income <= 0.
func SavingsRate(income, expenses decimal.Decimal) float64 {
	if !income.IsPositive() {
		return 0
	}
	return income.Sub(expenses).Div(income).Mul(hundred).InexactFloat64()
}

// GenerateReport assembles a report for userID over period, persists it and
// returns the stored snapshot. Nothing is persisted unless assembly succeeds.
func (s *ReportService) GenerateReport(ctx context.Context, userID, period string) (core.FinancialReport, error) {
	start := time.Now()

	r, err := s.compose(ctx, userID, period)
	if err != nil {
		s.logger.WarnContext(ctx, "Report generation failed",
			applog.FieldUserID, userID,
			applog.FieldPeriod, period,
			applog.FieldError, err)
		return core.FinancialReport{}, err
	}

	saved, err := s.store.SaveReport(ctx, r)
	if err != nil {
		err = fmt.Errorf("%w: persist: %w", core.ErrReportGenerationFailed, err)
		applog.LogError(ctx, s.logger, "Failed to persist report", err, applog.OpPersist,
			applog.NewFields().WithReport(userID, "", period))
		return core.FinancialReport{}, err
	}

	if s.cache != nil {
		s.cache.Set(saved.ID, saved.Clone())
	}
	if s.publisher != nil {
		if err := s.publisher.PublishReportGenerated(ctx, saved); err != nil {
			s.logger.WarnContext(ctx, "Failed to publish report generated event",
				applog.FieldReportID, saved.ID,
				applog.FieldError, err)
		}
	}

	applog.LogReportGenerated(ctx, s.logger, saved.UserID, saved.ID, saved.Period.String(), len(saved.CategorySpending))
	s.logger.DebugContext(ctx, "Report pipeline finished",
		applog.FieldReportID, saved.ID,
		applog.FieldDuration, time.Since(start).Milliseconds())
	return saved, nil
}

// EstimateReport runs the same pipeline as GenerateReport without persisting
// or publishing. The result has no ID.
func (s *ReportService) EstimateReport(ctx context.Context, userID, period string) (core.FinancialReport, error) {
	r, err := s.compose(ctx, userID, period)
	if err != nil {
		return core.FinancialReport{}, err
	}
	r.GeneratedAt = s.now()
	return r, nil
}

// GenerateForAllUsers generates one report per known user. Individual
// failures are collected and do not stop the run.
func (s *ReportService) GenerateForAllUsers(ctx context.Context, period string) (int, error) {
	ids, err := s.ledger.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}

	var (
		generated int
		errs      []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.GenerateReport(ctx, id, period); err != nil {
			errs = append(errs, fmt.Errorf("user %s: %w", id, err))
			continue
		}
		generated++
	}
	return generated, errors.Join(errs...)
}

// ListReports returns a user's stored reports, newest first. A limit <= 0
// returns all of them.
func (s *ReportService) ListReports(ctx context.Context, userID string, limit int) ([]core.FinancialReport, error) {
	if userID == "" {
		return nil, core.ErrEmptyUserID
	}
	return s.store.ListReports(ctx, userID, limit)
}

// GetReport returns a stored report, consulting the cache first. Cached
// reports are cloned so callers never alias the cached snapshot.
func (s *ReportService) GetReport(ctx context.Context, id string) (core.FinancialReport, error) {
	if s.cache != nil {
		if r, ok := s.cache.Get(id); ok {
			return r.Clone(), nil
		}
	}
	r, err := s.store.GetReport(ctx, id)
	if err != nil {
		return core.FinancialReport{}, err
	}
	if s.cache != nil {
		s.cache.Set(id, r.Clone())
	}
	return r, nil
}

// DetectUnusualSpending flags a user's transactions that stand out from
// their category mean. The result is never nil.
func (s *ReportService) DetectUnusualSpending(ctx context.Context, userID string, opts anomaly.Options) ([]core.UnusualTransaction, error) {
	if userID == "" {
		return nil, core.ErrEmptyUserID
	}
	rng, err := s.detector.Window(opts)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.User(ctx, userID); err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()
	txs, err := s.ledger.TransactionsInRange(fetchCtx, userID, rng.Start, rng.End)
	if err != nil {
		return nil, fmt.Errorf("fetch transactions: %w", err)
	}

	opts.Start, opts.End = rng.Start, rng.End
	flagged, err := s.detector.Detect(txs, opts)
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "Unusual spending detected",
		applog.FieldUserID, userID,
		applog.FieldOperation, applog.OpDetect,
		applog.FieldCount, len(flagged))
	return flagged, nil
}

// GenerateInsights re-runs the insight rules on externally supplied
// aggregates. It never fails.
func (s *ReportService) GenerateInsights(in insights.Input) insights.Insights {
	return s.generator.Generate(in)
}

// TopCategories returns the five largest spending categories of the period.
func (s *ReportService) TopCategories(ctx context.Context, userID, period string) ([]core.CategorySpending, error) {
	w, bills, err := s.billsForPeriod(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	top, err := s.aggregator.TopCategories(bills, w.Range)
	if err != nil {
		return nil, classify(err)
	}
	return top, nil
}

// TopBudgets returns the five most consumed budgets.
func (s *ReportService) TopBudgets(ctx context.Context, userID string) ([]core.BudgetStatus, error) {
	budgets, err := s.budgets(ctx, userID)
	if err != nil {
		return nil, err
	}
	top, err := s.aggregator.TopBudgets(budgets)
	if err != nil {
		return nil, classify(err)
	}
	return top, nil
}

// CompareBudgets joins each budget with the period's category spend.
func (s *ReportService) CompareBudgets(ctx context.Context, userID, period string) ([]core.BudgetComparison, error) {
	w, bills, err := s.billsForPeriod(ctx, userID, period)
	if err != nil {
		return nil, err
	}
	spending, err := s.aggregator.CategorySpending(bills, w.Range)
	if err != nil {
		return nil, classify(err)
	}
	budgets, err := s.budgets(ctx, userID)
	if err != nil {
		return nil, err
	}
	return analytics.CompareBudgets(budgets, spending), nil
}

func (s *ReportService) billsForPeriod(ctx context.Context, userID, period string) (analytics.Window, []core.Bill, error) {
	if userID == "" {
		return analytics.Window{}, nil, core.ErrEmptyUserID
	}
	w, err := analytics.ResolveString(period, s.now())
	if err != nil {
		return analytics.Window{}, nil, err
	}
	if _, err := s.ledger.User(ctx, userID); err != nil {
		return analytics.Window{}, nil, err
	}
	bills, err := s.ledger.BillsInRange(ctx, userID, w.Range.Start, w.Range.End)
	if err != nil {
		return analytics.Window{}, nil, fmt.Errorf("fetch bills: %w", err)
	}
	return w, bills, nil
}

func (s *ReportService) budgets(ctx context.Context, userID string) ([]core.Budget, error) {
	if userID == "" {
		return nil, core.ErrEmptyUserID
	}
	if _, err := s.ledger.User(ctx, userID); err != nil {
		return nil, err
	}
	budgets, err := s.ledger.Budgets(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("fetch budgets: %w", err)
	}
	return budgets, nil
}
