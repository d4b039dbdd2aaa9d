package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finreport/internal/anomaly"
	"finreport/internal/cache"
	"finreport/internal/core"
	"finreport/internal/insights"
	applog "finreport/internal/log"
	"finreport/internal/storage/memory"
)

var refTime = time.Date(2025, time.May, 31, 12, 0, 0, 0, time.UTC)

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func may(day int) time.Time { return time.Date(2025, time.May, day, 8, 0, 0, 0, time.UTC) }

// failingLedger wraps a store and fails selected reads.
type failingLedger struct {
	*memory.Store
	budgetsErr error
	billsErr   error
}

func (f failingLedger) Budgets(ctx context.Context, userID string) ([]core.Budget, error) {
	if f.budgetsErr != nil {
		return nil, f.budgetsErr
	}
	return f.Store.Budgets(ctx, userID)
}

func (f failingLedger) BillsInRange(ctx context.Context, userID string, start, end time.Time) ([]core.Bill, error) {
	if f.billsErr != nil {
		return nil, f.billsErr
	}
	return f.Store.BillsInRange(ctx, userID, start, end)
}

// negativeBills returns bills the aggregator must reject.
type negativeBills struct{ *memory.Store }

func (n negativeBills) BillsInRange(context.Context, string, time.Time, time.Time) ([]core.Bill, error) {
	return []core.Bill{{ID: "bad", Amount: d(-5), DueDate: may(10), Status: core.BillPaid}}, nil
}

type recordingPublisher struct {
	published []core.FinancialReport
	err       error
}

func (p *recordingPublisher) PublishReportGenerated(_ context.Context, r core.FinancialReport) error {
	p.published = append(p.published, r)
	return p.err
}

type brokenStore struct{ *memory.Store }

func (brokenStore) SaveReport(context.Context, core.FinancialReport) (core.FinancialReport, error) {
	return core.FinancialReport{}, errors.New("disk full")
}

// countingStore counts GetReport hits on the backing store.
type countingStore struct {
	*memory.Store
	gets int
}

func (c *countingStore) GetReport(ctx context.Context, id string) (core.FinancialReport, error) {
	c.gets++
	return c.Store.GetReport(ctx, id)
}

func seededStore(t *testing.T) *memory.Store {
	t.Helper()
	s := memory.New().WithClock(func() time.Time { return refTime })
	s.AddUser(core.User{ID: "u1", Name: "An", Balance: d(2_000_000)})
	s.AddUser(core.User{ID: "u2", Name: "Binh"})

	for _, b := range []core.Bill{
		{ID: "b1", UserID: "u1", Name: "Market", Amount: d(600_000), DueDate: may(10), Status: core.BillPaid, Category: core.Linked("Food")},
		{ID: "b2", UserID: "u1", Name: "Restaurant", Amount: d(400_000), DueDate: may(20), Status: core.BillPaid, Category: core.Linked("Food")},
		{ID: "b3", UserID: "u1", Name: "Rent", Amount: d(3_000_000), DueDate: may(25), Status: core.BillPending, Category: core.Linked("Housing")},
	} {
		if err := s.AddBill(b); err != nil {
			t.Fatalf("AddBill(%s): %v", b.ID, err)
		}
	}
	for _, b := range []core.Budget{
		{ID: "g1", UserID: "u1", Name: "Food", Amount: d(100_000), Spent: d(95_000), AlertThreshold: 80},
		{ID: "g2", UserID: "u1", Name: "Travel", Amount: d(1_000_000), Spent: d(100_000)},
	} {
		if err := s.AddBudget(b); err != nil {
			t.Fatalf("AddBudget(%s): %v", b.ID, err)
		}
	}
	for _, tx := range []core.Transaction{
		{ID: "t1", UserID: "u1", Amount: d(5_000_000), Date: may(1), Type: core.Income, Description: "Salary"},
		{ID: "t2", UserID: "u1", Amount: d(600_000), Date: may(10), Type: core.Expense, Category: core.Linked("Food"), Description: "Market"},
	} {
		if err := s.AddTransaction(tx); err != nil {
			t.Fatalf("AddTransaction(%s): %v", tx.ID, err)
		}
	}
	return s
}

func newService(store *memory.Store, opts ...Option) *ReportService {
	base := []Option{WithClock(func() time.Time { return refTime }), WithLogger(applog.Discard())}
	return NewReportService(store, store, append(base, opts...)...)
}

func TestGenerateReport(t *testing.T) {
	store := seededStore(t)
	pub := &recordingPublisher{}
	reports := cache.NewLRUCache[core.FinancialReport](10, time.Minute)
	svc := newService(store, WithPublisher(pub), WithCache(reports))

	r, err := svc.GenerateReport(context.Background(), "u1", "month")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}

	if r.ID == "" || !r.GeneratedAt.Equal(refTime) {
		t.Errorf("report not persisted: id=%q generatedAt=%v", r.ID, r.GeneratedAt)
	}
	if r.Period != core.Month || !r.EndDate.Equal(refTime) || !r.StartDate.Equal(refTime.AddDate(0, -1, 0)) {
		t.Errorf("window = %v..%v (%s)", r.StartDate, r.EndDate, r.Period)
	}
	if len(r.CategorySpending) != 1 || r.CategorySpending[0].Name != "Food" || !r.CategorySpending[0].Amount.Equal(d(1_000_000)) {
		t.Errorf("CategorySpending = %+v", r.CategorySpending)
	}
	if !r.TotalIncome.Equal(d(2_000_000)) || !r.TotalExpenses.Equal(d(1_000_000)) {
		t.Errorf("totals = %s/%s", r.TotalIncome, r.TotalExpenses)
	}
	if r.SavingsRate != 50 {
		t.Errorf("SavingsRate = %v, want 50", r.SavingsRate)
	}
	if r.MonthlyData.Len() != 30 {
		t.Errorf("MonthlyData buckets = %d, want 30", r.MonthlyData.Len())
	}
	if len(r.BudgetStatuses) != 2 || r.BudgetStatuses[0].Percentage != 95 {
		t.Errorf("BudgetStatuses = %+v", r.BudgetStatuses)
	}
	if len(r.Insights) == 0 || !strings.Contains(r.Insights[0], "100%") {
		t.Errorf("Insights = %q, want top category at 100%%", r.Insights)
	}
	if len(r.Insights) > insights.MaxEntries || len(r.Recommendations) > insights.MaxEntries {
		t.Errorf("lists exceed %d entries", insights.MaxEntries)
	}

	if len(pub.published) != 1 || pub.published[0].ID != r.ID {
		t.Errorf("published = %+v", pub.published)
	}
	if _, ok := reports.Get(r.ID); !ok {
		t.Error("generated report not cached")
	}
	stored, _ := store.ListReports(context.Background(), "u1", 0)
	if len(stored) != 1 {
		t.Errorf("stored reports = %d, want 1", len(stored))
	}
}

func TestGenerateReportErrors(t *testing.T) {
	ledgerDown := errors.New("ledger unavailable")

	tests := []struct {
		name    string
		ledger  func(s *memory.Store) *ReportService
		userID  string
		period  string
		wantErr error
		notErr  error
	}{
		{
			name:    "unknown user",
			ledger:  func(s *memory.Store) *ReportService { return newService(s) },
			userID:  "ghost",
			period:  "month",
			wantErr: core.ErrUserNotFound,
			notErr:  core.ErrReportGenerationFailed,
		},
		{
			name:    "invalid period",
			ledger:  func(s *memory.Store) *ReportService { return newService(s) },
			userID:  "u1",
			period:  "quarter",
			wantErr: core.ErrInvalidPeriod,
			notErr:  core.ErrReportGenerationFailed,
		},
		{
			name:    "empty user id",
			ledger:  func(s *memory.Store) *ReportService { return newService(s) },
			period:  "week",
			wantErr: core.ErrEmptyUserID,
		},
		{
			name: "budget fetch fails",
			ledger: func(s *memory.Store) *ReportService {
				l := failingLedger{Store: s, budgetsErr: ledgerDown}
				return NewReportService(l, s, WithClock(func() time.Time { return refTime }), WithLogger(applog.Discard()))
			},
			userID:  "u1",
			period:  "month",
			wantErr: core.ErrReportGenerationFailed,
		},
		{
			name: "aggregation rejects negative bill",
			ledger: func(s *memory.Store) *ReportService {
				return NewReportService(negativeBills{s}, s, WithClock(func() time.Time { return refTime }), WithLogger(applog.Discard()))
			},
			userID:  "u1",
			period:  "month",
			wantErr: core.ErrInvalidAmount,
		},
		{
			name: "persist fails",
			ledger: func(s *memory.Store) *ReportService {
				return NewReportService(s, brokenStore{s}, WithClock(func() time.Time { return refTime }), WithLogger(applog.Discard()))
			},
			userID:  "u1",
			period:  "year",
			wantErr: core.ErrReportGenerationFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := seededStore(t)
			svc := tt.ledger(store)

			_, err := svc.GenerateReport(context.Background(), tt.userID, tt.period)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GenerateReport() error = %v, want %v", err, tt.wantErr)
			}
			if tt.notErr != nil && errors.Is(err, tt.notErr) {
				t.Errorf("GenerateReport() error = %v should not wrap %v", err, tt.notErr)
			}
			if stored, _ := store.ListReports(context.Background(), "u1", 0); len(stored) != 0 {
				t.Errorf("failed generation persisted %d reports", len(stored))
			}
		})
	}
}

func TestGenerateReportAggregationFailureIsWrapped(t *testing.T) {
	store := seededStore(t)
	svc := NewReportService(negativeBills{store}, store, WithClock(func() time.Time { return refTime }), WithLogger(applog.Discard()))

	_, err := svc.GenerateReport(context.Background(), "u1", "month")
	if !errors.Is(err, core.ErrReportGenerationFailed) {
		t.Errorf("error = %v, want ErrReportGenerationFailed", err)
	}
}

func TestGenerateReportPublishFailureIsIgnored(t *testing.T) {
	store := seededStore(t)
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newService(store, WithPublisher(pub))

	r, err := svc.GenerateReport(context.Background(), "u1", "week")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if r.ID == "" || len(pub.published) != 1 {
		t.Errorf("report %q published %d times", r.ID, len(pub.published))
	}
}

func TestGenerateReportWithoutIncome(t *testing.T) {
	store := seededStore(t)
	if err := store.AddBill(core.Bill{ID: "b9", UserID: "u2", Amount: d(500_000), DueDate: may(30), Status: core.BillPaid}); err != nil {
		t.Fatal(err)
	}
	svc := newService(store)

	r, err := svc.GenerateReport(context.Background(), "u2", "week")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	if r.SavingsRate != 0 || !r.TotalExpenses.Equal(d(500_000)) {
		t.Errorf("savings=%v expenses=%s", r.SavingsRate, r.TotalExpenses)
	}
	if len(r.CategorySpending) != 1 || r.CategorySpending[0].Name != core.UncategorizedLabel {
		t.Errorf("CategorySpending = %+v", r.CategorySpending)
	}
}

func TestSavingsRate(t *testing.T) {
	tests := []struct {
		name             string
		income, expenses int64
		want             float64
	}{
		{"half saved", 1000, 500, 50},
		{"overspent", 1000, 1500, -50},
		{"no income", 0, 500000, 0},
		{"negative balance", -100, 50, 0},
		{"nothing spent", 400, 0, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SavingsRate(d(tt.income), d(tt.expenses)); got != tt.want {
				t.Errorf("SavingsRate(%d, %d) = %v, want %v", tt.income, tt.expenses, got, tt.want)
			}
		})
	}
}

func TestEstimateReport(t *testing.T) {
	store := seededStore(t)
	pub := &recordingPublisher{}
	svc := newService(store, WithPublisher(pub))

	r, err := svc.EstimateReport(context.Background(), "u1", "month")
	if err != nil {
		t.Fatalf("EstimateReport() error = %v", err)
	}
	if r.ID != "" || !r.GeneratedAt.Equal(refTime) {
		t.Errorf("estimate id=%q generatedAt=%v", r.ID, r.GeneratedAt)
	}
	if len(pub.published) != 0 {
		t.Error("estimate should not publish")
	}
	if stored, _ := store.ListReports(context.Background(), "u1", 0); len(stored) != 0 {
		t.Error("estimate should not persist")
	}

	generated, err := svc.GenerateReport(context.Background(), "u1", "month")
	if err != nil {
		t.Fatal(err)
	}
	if len(generated.Insights) != len(r.Insights) || generated.Insights[0] != r.Insights[0] {
		t.Errorf("estimate insights %q differ from generated %q", r.Insights, generated.Insights)
	}
}

func TestGetReportUsesCache(t *testing.T) {
	mem := seededStore(t)
	store := &countingStore{Store: mem}
	reports := cache.NewLRUCache[core.FinancialReport](10, time.Minute)
	svc := NewReportService(mem, store, WithCache(reports), WithClock(func() time.Time { return refTime }), WithLogger(applog.Discard()))
	ctx := context.Background()

	saved, err := mem.SaveReport(ctx, core.FinancialReport{UserID: "u1", Period: core.Month})
	if err != nil {
		t.Fatal(err)
	}

	for i := 0; i < 3; i++ {
		got, err := svc.GetReport(ctx, saved.ID)
		if err != nil || got.ID != saved.ID {
			t.Fatalf("GetReport() = %+v, %v", got, err)
		}
	}
	if store.gets != 1 {
		t.Errorf("store hit %d times, want 1", store.gets)
	}

	if _, err := svc.GetReport(ctx, "missing"); !errors.Is(err, core.ErrReportNotFound) {
		t.Errorf("GetReport(missing) error = %v", err)
	}
}

func TestCachedReportsAreNotAliased(t *testing.T) {
	store := seededStore(t)
	svc := newService(store, WithCache(cache.NewLRUCache[core.FinancialReport](10, time.Minute)))
	ctx := context.Background()

	r, err := svc.GenerateReport(ctx, "u1", "month")
	if err != nil {
		t.Fatalf("GenerateReport() error = %v", err)
	}
	wantInsight, wantCategory := r.Insights[0], r.CategorySpending[0].Name

	r.Insights[0] = "changed by caller"
	r.CategorySpending[0].Name = "Changed"

	got, err := svc.GetReport(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.Insights[0] != wantInsight || got.CategorySpending[0].Name != wantCategory {
		t.Fatalf("cached report changed through the generated value: %q / %q", got.Insights[0], got.CategorySpending[0].Name)
	}

	got.Recommendations[0] = "changed again"
	got.MonthlyData.Labels[0] = "changed"
	again, err := svc.GetReport(ctx, r.ID)
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if again.Recommendations[0] == "changed again" || again.MonthlyData.Labels[0] == "changed" {
		t.Error("cached report changed through a fetched value")
	}
}

func TestListReports(t *testing.T) {
	store := seededStore(t)
	svc := newService(store)
	ctx := context.Background()

	for _, p := range []string{"week", "month", "year"} {
		if _, err := svc.GenerateReport(ctx, "u1", p); err != nil {
			t.Fatalf("GenerateReport(%s): %v", p, err)
		}
	}
	all, err := svc.ListReports(ctx, "u1", 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListReports() = %d, %v", len(all), err)
	}
	if _, err := svc.ListReports(ctx, "", 0); !errors.Is(err, core.ErrEmptyUserID) {
		t.Errorf("ListReports(\"\") error = %v", err)
	}
}

func TestGenerateForAllUsers(t *testing.T) {
	store := seededStore(t)
	svc := newService(store)

	n, err := svc.GenerateForAllUsers(context.Background(), "month")
	if err != nil || n != 2 {
		t.Fatalf("GenerateForAllUsers() = %d, %v", n, err)
	}

	failing := NewReportService(failingLedger{Store: store, billsErr: errors.New("timeout")}, store,
		WithClock(func() time.Time { return refTime }), WithLogger(applog.Discard()))
	n, err = failing.GenerateForAllUsers(context.Background(), "month")
	if n != 0 || !errors.Is(err, core.ErrReportGenerationFailed) {
		t.Errorf("GenerateForAllUsers() = %d, %v", n, err)
	}
}

func TestDetectUnusualSpending(t *testing.T) {
	store := seededStore(t)
	for _, tx := range []core.Transaction{
		{ID: "f1", UserID: "u2", Amount: d(100), Date: time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), Type: core.Expense, Category: core.Linked("Food"), Description: "Groceries"},
		{ID: "f2", UserID: "u2", Amount: d(100), Date: time.Date(2025, 4, 5, 0, 0, 0, 0, time.UTC), Type: core.Expense, Category: core.Linked("Food"), Description: "Groceries"},
		{ID: "f3", UserID: "u2", Amount: d(400), Date: may(5), Type: core.Expense, Category: core.Linked("Food"), Description: "Dinner party"},
		{ID: "x1", UserID: "u2", Amount: d(9000), Date: may(6), Type: core.Expense, Category: core.Linked("Travel"), Description: "Flight"},
	} {
		if err := store.AddTransaction(tx); err != nil {
			t.Fatal(err)
		}
	}
	svc := newService(store)
	ctx := context.Background()

	got, err := svc.DetectUnusualSpending(ctx, "u2", anomaly.Options{Threshold: anomaly.Threshold(150)})
	if err != nil {
		t.Fatalf("DetectUnusualSpending() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("flagged %d transactions, want 1: %+v", len(got), got)
	}
	if got[0].Category != "Food" || got[0].PercentageAboveAverage != 100 || !got[0].Amount.Equal(d(400)) {
		t.Errorf("flagged = %+v", got[0])
	}

	empty, err := svc.DetectUnusualSpending(ctx, "u2", anomaly.Options{
		Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil || empty == nil || len(empty) != 0 {
		t.Errorf("empty window = %v, %v; want empty non-nil slice", empty, err)
	}

	if _, err := svc.DetectUnusualSpending(ctx, "ghost", anomaly.Options{}); !errors.Is(err, core.ErrUserNotFound) {
		t.Errorf("unknown user error = %v", err)
	}
	_, err = svc.DetectUnusualSpending(ctx, "u2", anomaly.Options{Start: may(10), End: may(1)})
	if !errors.Is(err, core.ErrInvalidDateRange) {
		t.Errorf("inverted range error = %v", err)
	}
}

func TestGenerateInsightsIsPure(t *testing.T) {
	svc := newService(memory.New())
	in := insights.Input{
		Period: core.Month,
		BudgetStatuses: []core.BudgetStatus{
			{Name: "Food", Spent: d(95_000), Total: d(100_000), Percentage: 95},
		},
	}
	a := svc.GenerateInsights(in)
	b := svc.GenerateInsights(in)
	if strings.Join(a.Insights, "|") != strings.Join(b.Insights, "|") {
		t.Errorf("GenerateInsights not idempotent: %q vs %q", a.Insights, b.Insights)
	}
	if !strings.Contains(strings.Join(a.Insights, " "), "1 budget that is over 90% spent.") {
		t.Errorf("Insights = %q", a.Insights)
	}

	bad := svc.GenerateInsights(insights.Input{Period: "decade"})
	if bad.Insights[0] != insights.Fallback().Insights[0] {
		t.Errorf("invalid input should degrade to fallback, got %q", bad.Insights)
	}
}

func TestTopViewsAndComparison(t *testing.T) {
	store := seededStore(t)
	svc := newService(store)
	ctx := context.Background()

	cats, err := svc.TopCategories(ctx, "u1", "month")
	if err != nil || len(cats) != 1 || cats[0].Name != "Food" {
		t.Errorf("TopCategories() = %+v, %v", cats, err)
	}

	budgets, err := svc.TopBudgets(ctx, "u1")
	if err != nil || len(budgets) != 2 || budgets[0].Name != "Food" {
		t.Errorf("TopBudgets() = %+v, %v", budgets, err)
	}

	cmp, err := svc.CompareBudgets(ctx, "u1", "month")
	if err != nil || len(cmp) != 2 {
		t.Fatalf("CompareBudgets() = %+v, %v", cmp, err)
	}
	food := cmp[0]
	if food.Name != "Food" || !food.PeriodSpent.Equal(d(1_000_000)) || !food.AlertTriggered || food.IsOverBudget {
		t.Errorf("food comparison = %+v", food)
	}
	if !cmp[1].PeriodSpent.IsZero() {
		t.Errorf("travel period spend = %s, want 0", cmp[1].PeriodSpent)
	}

	if _, err := svc.TopCategories(ctx, "u1", "fortnight"); !errors.Is(err, core.ErrInvalidPeriod) {
		t.Errorf("TopCategories(bad period) error = %v", err)
	}
	if _, err := svc.TopBudgets(ctx, "ghost"); !errors.Is(err, core.ErrUserNotFound) {
		t.Errorf("TopBudgets(ghost) error = %v", err)
	}
}
