package analytics

import (
	"github.com/shopspring/decimal"

	"finreport/internal/core"
)

// CompareBudgets joins each budget with the window's spend for the category
// of the same name. Difference may be negative when a budget is overspent.
func CompareBudgets(budgets []core.Budget, spending []core.CategorySpending) []core.BudgetComparison {
	byName := make(map[string]decimal.Decimal, len(spending))
	for _, cs := range spending {
		byName[cs.Name] = cs.Amount
	}

	out := make([]core.BudgetComparison, 0, len(budgets))
	for _, b := range budgets {
		pct := BudgetPercentage(b.Spent, b.Amount)
		periodSpent, ok := byName[b.Name]
		if !ok {
			periodSpent = decimal.Zero
		}
		cmp := core.BudgetComparison{
			Name:               b.Name,
			BudgetAmount:       b.Amount,
			ActualSpent:        b.Spent,
			PeriodSpent:        periodSpent,
			Difference:         b.Amount.Sub(b.Spent),
			PercentageOfBudget: pct,
		}
		if b.Amount.IsPositive() {
			cmp.IsOverBudget = b.Spent.GreaterThan(b.Amount)
			cmp.AlertTriggered = b.AlertThreshold > 0 && pct >= b.AlertThreshold
		}
		out = append(out, cmp)
	}
	return out
}
