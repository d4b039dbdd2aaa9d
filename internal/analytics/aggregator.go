package analytics

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"finreport/internal/core"
)

// TopLimit caps the standalone "top" views.
const TopLimit = 5

var hundred = decimal.NewFromInt(100)

// Aggregator derives report aggregates from raw entities.
type Aggregator struct {
	palette core.ColorPalette
}

// NewAggregator returns an aggregator colouring categories from palette.
// A nil palette falls back to core.DefaultPalette.
func NewAggregator(palette core.ColorPalette) *Aggregator {
	if len(palette) == 0 {
		palette = core.DefaultPalette()
	}
	return &Aggregator{palette: palette}
}

// PaidInRange keeps the bills that count towards category spend.
func PaidInRange(bills []core.Bill, rng core.DateRange) []core.Bill {
	out := make([]core.Bill, 0, len(bills))
	for _, b := range bills {
		if b.IsPaid() && rng.Contains(b.DueDate) {
			out = append(out, b)
		}
	}
	return out
}

// SumBills totals the amounts of bills.
func SumBills(bills []core.Bill) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bills {
		total = total.Add(b.Amount)
	}
	return total
}

// CategorySpending groups paid bills in rng by category, sorted by amount
// descending. Every category with nonzero spend is kept.
func (a *Aggregator) CategorySpending(bills []core.Bill, rng core.DateRange) ([]core.CategorySpending, error) {
	var (
		order  []string
		totals = map[string]decimal.Decimal{}
	)
	for _, b := range PaidInRange(bills, rng) {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("bill %s: %w", b.ID, err)
		}
		label := b.Category.Label()
		if _, seen := totals[label]; !seen {
			order = append(order, label)
			totals[label] = decimal.Zero
		}
		totals[label] = totals[label].Add(b.Amount)
	}

	out := make([]core.CategorySpending, 0, len(order))
	for i, name := range order {
		amount := totals[name]
		if amount.IsZero() {
			continue
		}
		out = append(out, core.CategorySpending{
			Name:   name,
			Amount: amount,
			Color:  a.palette.At(i),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Amount.GreaterThan(out[j].Amount)
	})
	return out, nil
}

// TopCategories is CategorySpending capped at TopLimit entries.
func (a *Aggregator) TopCategories(bills []core.Bill, rng core.DateRange) ([]core.CategorySpending, error) {
	all, err := a.CategorySpending(bills, rng)
	if err != nil {
		return nil, err
	}
	if len(all) > TopLimit {
		all = all[:TopLimit]
	}
	return all, nil
}

// BudgetPercentage is spent/total*100, or 0 when total <= 0.
func BudgetPercentage(spent, total decimal.Decimal) float64 {
	if !total.IsPositive() {
		return 0
	}
	return spent.Div(total).Mul(hundred).InexactFloat64()
}

// BudgetStatuses evaluates every budget at its current spent/amount, sorted
// by percentage descending.
func (a *Aggregator) BudgetStatuses(budgets []core.Budget) ([]core.BudgetStatus, error) {
	out := make([]core.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		if err := b.Validate(); err != nil {
			return nil, fmt.Errorf("budget %s: %w", b.ID, err)
		}
		out = append(out, core.BudgetStatus{
			Name:       b.Name,
			Spent:      b.Spent,
			Total:      b.Amount,
			Percentage: BudgetPercentage(b.Spent, b.Amount),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Percentage > out[j].Percentage
	})
	return out, nil
}

// TopBudgets is BudgetStatuses capped at TopLimit entries.
func (a *Aggregator) TopBudgets(budgets []core.Budget) ([]core.BudgetStatus, error) {
	all, err := a.BudgetStatuses(budgets)
	if err != nil {
		return nil, err
	}
	if len(all) > TopLimit {
		all = all[:TopLimit]
	}
	return all, nil
}

// MonthlySeries buckets transactions into the window's income/expense series.
// Transactions that map outside the window are dropped.
func (a *Aggregator) MonthlySeries(txs []core.Transaction, w Window) (core.MonthlyData, error) {
	md := core.NewMonthlyData(w.Labels())
	for _, t := range txs {
		if err := t.Validate(); err != nil {
			return core.MonthlyData{}, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		i, ok := w.BucketIndex(t.Date)
		if !ok {
			continue
		}
		if t.IsIncome() {
			md.Income[i] = md.Income[i].Add(t.Amount)
		} else {
			md.Expenses[i] = md.Expenses[i].Add(t.Amount)
		}
	}
	return md, nil
}
