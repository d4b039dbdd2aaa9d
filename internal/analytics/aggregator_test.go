package analytics

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"finreport/internal/core"
)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestCategorySpending(t *testing.T) {
	ref := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	w, _ := Resolve(core.Month, ref)
	in := ref.AddDate(0, 0, -3)

	bills := []core.Bill{
		{ID: "1", Amount: dec(300), DueDate: in, Status: core.BillPaid, Category: core.Linked("Food")},
		{ID: "2", Amount: dec(500), DueDate: in, Status: core.BillPaid, Category: core.Linked("Rent")},
		{ID: "3", Amount: dec(200), DueDate: in, Status: core.BillPaid, Category: core.Linked("Food")},
		{ID: "4", Amount: dec(50), DueDate: in, Status: core.BillPaid},
		{ID: "5", Amount: dec(999), DueDate: in, Status: core.BillPending, Category: core.Linked("Food")},
		{ID: "6", Amount: dec(999), DueDate: ref.AddDate(0, -2, 0), Status: core.BillPaid, Category: core.Linked("Food")},
		{ID: "7", Amount: dec(0), DueDate: in, Status: core.BillPaid, Category: core.Linked("Free")},
	}

	agg := NewAggregator(core.ColorPalette{"red", "green", "blue", "grey"})
	got, err := agg.CategorySpending(bills, w.Range)
	if err != nil {
		t.Fatalf("CategorySpending() error = %v", err)
	}

	want := []core.CategorySpending{
		{Name: "Food", Amount: dec(500), Color: "red"},
		{Name: "Rent", Amount: dec(500), Color: "green"},
		{Name: core.UncategorizedLabel, Amount: dec(50), Color: "blue"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d categories, want %d: %+v", len(got), len(want), got)
	}
	for i := range want {
		if got[i].Name != want[i].Name || !got[i].Amount.Equal(want[i].Amount) || got[i].Color != want[i].Color {
			t.Errorf("category %d = %+v, want %+v", i, got[i], want[i])
		}
	}

	// conservation: category totals equal the filtered bill total
	sum := decimal.Zero
	for _, cs := range got {
		sum = sum.Add(cs.Amount)
	}
	if total := SumBills(PaidInRange(bills, w.Range)); !sum.Equal(total) {
		t.Fatalf("category sum %s != paid bill total %s", sum, total)
	}
}

func TestCategorySpendingSingleCategory(t *testing.T) {
	ref := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	w, _ := Resolve(core.Month, ref)
	bills := []core.Bill{
		{Amount: dec(400000), DueDate: ref.AddDate(0, 0, -1), Status: core.BillPaid, Category: core.Linked("Food")},
		{Amount: dec(600000), DueDate: ref.AddDate(0, 0, -9), Status: core.BillPaid, Category: core.Linked("Food")},
	}
	got, err := NewAggregator(nil).CategorySpending(bills, w.Range)
	if err != nil {
		t.Fatalf("CategorySpending() error = %v", err)
	}
	if len(got) != 1 || got[0].Name != "Food" || !got[0].Amount.Equal(dec(1000000)) {
		t.Fatalf("unexpected spending: %+v", got)
	}
	if got[0].Color != core.DefaultPalette()[0] {
		t.Fatalf("expected first palette colour, got %q", got[0].Color)
	}
}

func TestCategorySpendingRejectsNegativeAmount(t *testing.T) {
	ref := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	w, _ := Resolve(core.Week, ref)
	bills := []core.Bill{{ID: "x", Amount: dec(-1), DueDate: ref, Status: core.BillPaid}}
	if _, err := NewAggregator(nil).CategorySpending(bills, w.Range); !errors.Is(err, core.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestTopCategoriesCapsAtFive(t *testing.T) {
	ref := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)
	w, _ := Resolve(core.Month, ref)
	var bills []core.Bill
	for i, name := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		bills = append(bills, core.Bill{Amount: dec(int64(10 * (i + 1))), DueDate: ref, Status: core.BillPaid, Category: core.Linked(name)})
	}
	agg := NewAggregator(nil)
	all, _ := agg.CategorySpending(bills, w.Range)
	top, _ := agg.TopCategories(bills, w.Range)
	if len(all) != 7 {
		t.Fatalf("full view must keep all categories, got %d", len(all))
	}
	if len(top) != TopLimit || top[0].Name != "g" {
		t.Fatalf("unexpected top view: %+v", top)
	}
}

func TestBudgetStatuses(t *testing.T) {
	budgets := []core.Budget{
		{ID: "a", Name: "Food", Amount: dec(100000), Spent: dec(95000)},
		{ID: "b", Name: "Zero", Amount: dec(0), Spent: dec(10)},
		{ID: "c", Name: "Fun", Amount: dec(200), Spent: dec(50)},
		{ID: "d", Name: "Rent", Amount: dec(1000), Spent: dec(1200)},
	}
	got, err := NewAggregator(nil).BudgetStatuses(budgets)
	if err != nil {
		t.Fatalf("BudgetStatuses() error = %v", err)
	}
	wantOrder := []string{"Rent", "Food", "Fun", "Zero"}
	wantPct := []float64{120, 95, 25, 0}
	for i := range wantOrder {
		if got[i].Name != wantOrder[i] {
			t.Errorf("status %d = %s, want %s", i, got[i].Name, wantOrder[i])
		}
		if diff := got[i].Percentage - wantPct[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("%s percentage = %v, want %v", got[i].Name, got[i].Percentage, wantPct[i])
		}
	}
}

func TestTopBudgetsCapsAtFive(t *testing.T) {
	var budgets []core.Budget
	for i := 1; i <= 8; i++ {
		budgets = append(budgets, core.Budget{Name: string(rune('a' + i)), Amount: dec(100), Spent: dec(int64(i * 10))})
	}
	top, err := NewAggregator(nil).TopBudgets(budgets)
	if err != nil {
		t.Fatalf("TopBudgets() error = %v", err)
	}
	if len(top) != TopLimit || top[0].Percentage != 80 {
		t.Fatalf("unexpected top budgets: %+v", top)
	}
}

func TestMonthlySeries(t *testing.T) {
	ref := time.Date(2025, 5, 20, 12, 0, 0, 0, time.UTC)

	for _, p := range []core.Period{core.Week, core.Month, core.Year} {
		t.Run(string(p), func(t *testing.T) {
			w, _ := Resolve(p, ref)
			txs := []core.Transaction{
				{Amount: dec(1000), Date: ref, Type: core.Income},
				{Amount: dec(300), Date: ref.Add(-time.Hour), Type: core.Expense},
				{Amount: dec(70), Date: ref.Add(-time.Hour), Type: "transfer"},
				{Amount: dec(5), Date: ref.AddDate(2, 0, 0), Type: core.Expense},
			}
			md, err := NewAggregator(nil).MonthlySeries(txs, w)
			if err != nil {
				t.Fatalf("MonthlySeries() error = %v", err)
			}
			if len(md.Labels) != w.BucketCount || len(md.Income) != w.BucketCount || len(md.Expenses) != w.BucketCount {
				t.Fatalf("length mismatch: labels=%d income=%d expenses=%d", len(md.Labels), len(md.Income), len(md.Expenses))
			}
			last := w.BucketCount - 1
			if !md.Income[last].Equal(dec(1000)) {
				t.Errorf("income[last] = %s", md.Income[last])
			}
			if !md.Expenses[last].Equal(dec(370)) {
				t.Errorf("expenses[last] = %s", md.Expenses[last])
			}
			_, exp := md.Totals()
			if !exp.Equal(dec(370)) {
				t.Errorf("out-of-window transaction must be dropped, expenses total = %s", exp)
			}
		})
	}
}

func TestCompareBudgets(t *testing.T) {
	budgets := []core.Budget{
		{Name: "Food", Amount: dec(1000), Spent: dec(1200), AlertThreshold: 80},
		{Name: "Fun", Amount: dec(500), Spent: dec(100), AlertThreshold: 80},
		{Name: "Empty", Amount: dec(0), Spent: dec(100)},
	}
	spending := []core.CategorySpending{{Name: "Food", Amount: dec(400)}}

	got := CompareBudgets(budgets, spending)
	if len(got) != 3 {
		t.Fatalf("expected 3 comparisons, got %d", len(got))
	}
	food := got[0]
	if !food.Difference.Equal(dec(-200)) || food.PercentageOfBudget != 120 || !food.IsOverBudget || !food.AlertTriggered {
		t.Errorf("unexpected food comparison: %+v", food)
	}
	if !food.PeriodSpent.Equal(dec(400)) {
		t.Errorf("food period spent = %s", food.PeriodSpent)
	}
	fun := got[1]
	if fun.IsOverBudget || fun.AlertTriggered || !fun.PeriodSpent.IsZero() {
		t.Errorf("unexpected fun comparison: %+v", fun)
	}
	empty := got[2]
	if empty.PercentageOfBudget != 0 || empty.IsOverBudget {
		t.Errorf("zero budget must report 0%% and not over budget: %+v", empty)
	}
}
