package insights

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"finreport/internal/analytics"
	"finreport/internal/core"
)

// Thresholds used by the default rules.
const (
	TopCategoryShareLimit    = 40.0
	SecondCategoryShareLimit = 20.0
	OverBudgetPercent        = 90.0
	NearBudgetPercent        = 70.0
	HealthyBudgetPercent     = 50.0
	LowSavingsRate           = 20.0
	HighSavingsRate          = 50.0
	TrendChangePercent       = 20.0
	EmergencyFundMonths      = 6
	// Category spend is presumed to cover three months when estimating
	// the monthly expense for the emergency fund.
	CategoryWindowMonths = 3
)

// DiversifyBalance is the balance above which diversification is suggested.
var DiversifyBalance = decimal.NewFromInt(50_000_000)

// Context is the shared input every rule evaluates.
type Context struct {
	Input
	Format core.CurrencyFormatter
}

// Outcome is what one rule contributes.
type Outcome struct {
	Insights        []string
	Recommendations []string
}

// Rule is one independent heuristic.
type Rule interface {
	Name() string
	Apply(c Context) Outcome
}

type ruleFunc struct {
	name string
	fn   func(c Context) Outcome
}

func (r ruleFunc) Name() string            { return r.name }
func (r ruleFunc) Apply(c Context) Outcome { return r.fn(c) }

// NewRule wraps a function as a Rule.
func NewRule(name string, fn func(c Context) Outcome) Rule {
	return ruleFunc{name: name, fn: fn}
}

// DefaultRules returns the rules in priority order.
func DefaultRules() []Rule {
	return []Rule{
		NewRule("no_data", NoDataRule),
		NewRule("top_category", TopCategoryRule),
		NewRule("balance_without_categories", BalanceWithoutCategoriesRule),
		NewRule("budget_thresholds", BudgetThresholdRule),
		NewRule("savings_rate", SavingsRateRule),
		NewRule("trend", TrendRule),
		NewRule("emergency_fund", EmergencyFundRule),
	}
}

var noDataInsights = map[core.Period][]string{
	core.Week: {
		"No financial activity was recorded this week.",
		"Track your daily spending this week to see where your money goes.",
	},
	core.Month: {
		"No financial activity was recorded this month.",
		"A full month of tracked expenses reveals your real spending habits.",
	},
	core.Year: {
		"No financial activity was recorded this year.",
		"Tracking a full year of finances helps you spot seasonal spending patterns.",
	},
}

var noDataRecommendations = map[core.Period][]string{
	core.Week: {
		"Set a simple weekly spending limit to stay on track.",
		"Review the bills due in the coming week.",
	},
	core.Month: {
		"Create a monthly budget for your main expense categories.",
		"Schedule a monthly review of your bills and subscriptions.",
	},
	core.Year: {
		"Set yearly savings goals and break them into monthly targets.",
		"Review your annual subscriptions and recurring bills.",
	},
}

const startTrackingRecommendation = "Start tracking your expenses to receive personalized insights."

// NoDataRule emits canned, period-specific text when there is nothing to
// analyse. Later rules still run; their output lands after the canned text.
func NoDataRule(c Context) Outcome {
	if len(c.CategorySpending) > 0 || len(c.BudgetStatuses) > 0 || c.MonthlyData.HasData() {
		return Outcome{}
	}
	recs := append([]string(nil), noDataRecommendations[c.Period]...)
	recs = append(recs, startTrackingRecommendation)
	return Outcome{
		Insights:        append([]string(nil), noDataInsights[c.Period]...),
		Recommendations: recs,
	}
}

// TopCategoryRule reports the largest category and, when dominant, suggests cutting it.
func TopCategoryRule(c Context) Outcome {
	if len(c.CategorySpending) == 0 {
		return Outcome{}
	}
	total := decimal.Zero
	for _, cs := range c.CategorySpending {
		total = total.Add(cs.Amount)
	}
	if !total.IsPositive() {
		return Outcome{}
	}

	var out Outcome
	top := c.CategorySpending[0]
	share := shareOf(top.Amount, total)
	out.Insights = append(out.Insights,
		fmt.Sprintf("%s is your top spending category at %d%% of total expenses.", top.Name, roundPct(share)))
	if share > TopCategoryShareLimit {
		out.Recommendations = append(out.Recommendations,
			fmt.Sprintf("Consider reducing your spending on %s, which makes up %d%% of your expenses.", top.Name, roundPct(share)))
	}
	if len(c.CategorySpending) > 1 {
		second := c.CategorySpending[1]
		if s := shareOf(second.Amount, total); s > SecondCategoryShareLimit {
			out.Insights = append(out.Insights,
				fmt.Sprintf("%s is your second largest category at %d%% of total expenses.", second.Name, roundPct(s)))
		}
	}
	return out
}

// BalanceWithoutCategoriesRule covers a positive balance with no categorised spend.
func BalanceWithoutCategoriesRule(c Context) Outcome {
	if len(c.CategorySpending) > 0 || !c.AccountBalance.IsPositive() {
		return Outcome{}
	}
	return Outcome{
		Insights: []string{fmt.Sprintf("You have a balance of %s but no categorized expenses this %s.",
			c.Format.Format(c.AccountBalance), c.Period)},
		Recommendations: []string{"Start categorizing your expenses to get a clearer picture of your spending."},
	}
}

// BudgetThresholdRule buckets budgets into over, near and healthy.
func BudgetThresholdRule(c Context) Outcome {
	if len(c.BudgetStatuses) == 0 {
		return Outcome{Recommendations: []string{"Set up budget categories to keep your spending under control."}}
	}

	var over, near, healthy []core.BudgetStatus
	for _, b := range c.BudgetStatuses {
		switch {
		case b.Percentage >= OverBudgetPercent:
			over = append(over, b)
		case b.Percentage >= NearBudgetPercent:
			near = append(near, b)
		case b.Percentage < HealthyBudgetPercent:
			healthy = append(healthy, b)
		}
	}

	var out Outcome
	if n := len(over); n > 0 {
		out.Insights = append(out.Insights,
			fmt.Sprintf("You have %d %s over 90%% spent.", n, plural(n, "budget that is", "budgets that are")))
	}
	if n := len(near); n > 0 {
		out.Insights = append(out.Insights,
			fmt.Sprintf("You have %d %s (70-90%% spent).", n, plural(n, "budget that is approaching its limit", "budgets that are approaching their limits")))
	}
	if n := len(healthy); n > 0 {
		out.Insights = append(out.Insights,
			fmt.Sprintf("%d %s (under 50%% spent).", n, plural(n, "budget is well within its limit", "budgets are well within their limits")))
	}
	for _, b := range over {
		out.Recommendations = append(out.Recommendations,
			fmt.Sprintf("Your %s budget is at %d%%. Cut back on this category for the rest of the period.", b.Name, roundPct(b.Percentage)))
	}
	return out
}

// SavingsRateRule compares income and expenses across the series.
func SavingsRateRule(c Context) Outcome {
	if !c.MonthlyData.HasData() {
		return Outcome{}
	}
	income, expenses := c.MonthlyData.Totals()

	switch {
	case income.IsPositive() && expenses.IsPositive():
		rate := income.Sub(expenses).Div(income).Mul(decimal.NewFromInt(100)).InexactFloat64()
		if rate <= 0 {
			return Outcome{
				Insights: []string{fmt.Sprintf("You spent more than you earned this %s (%s spent vs %s earned).",
					c.Period, c.Format.Format(expenses), c.Format.Format(income))},
				Recommendations: []string{"Create a stricter budget to bring your expenses below your income."},
			}
		}
		out := Outcome{Insights: []string{fmt.Sprintf("Your savings rate for this %s is %d%%.", c.Period, roundPct(rate))}}
		switch {
		case rate < LowSavingsRate:
			out.Recommendations = append(out.Recommendations,
				"Try to increase your savings rate to at least 20% by trimming non-essential expenses.")
		case rate > HighSavingsRate:
			out.Recommendations = append(out.Recommendations,
				"Great savings rate! Consider investing your surplus to grow your wealth.")
		}
		return out
	case expenses.IsPositive():
		return Outcome{Insights: []string{fmt.Sprintf("You spent %s this %s with no income recorded.",
			c.Format.Format(expenses), c.Period)}}
	default:
		return Outcome{}
	}
}

// TrendRule compares the last two expense buckets.
func TrendRule(c Context) Outcome {
	exp := c.MonthlyData.Expenses
	if len(exp) <= 2 {
		return Outcome{}
	}
	prev, last := exp[len(exp)-2], exp[len(exp)-1]
	if !prev.IsPositive() {
		return Outcome{}
	}
	change := last.Sub(prev).Div(prev).Mul(decimal.NewFromInt(100)).InexactFloat64()
	unit := analytics.BucketUnit(c.Period)

	switch {
	case change > TrendChangePercent:
		return Outcome{
			Insights:        []string{fmt.Sprintf("Your expenses rose %d%% compared to the previous %s.", roundPct(change), unit)},
			Recommendations: []string{"Review your recent purchases to understand the spending spike."},
		}
	case change < -TrendChangePercent:
		return Outcome{
			Insights: []string{fmt.Sprintf("Your expenses dropped %d%% compared to the previous %s. Nice work!", roundPct(-change), unit)},
		}
	default:
		return Outcome{}
	}
}

// EmergencyFundRule checks the balance against six months of expenses.
func EmergencyFundRule(c Context) Outcome {
	if !c.AccountBalance.IsPositive() {
		return Outcome{}
	}

	avg := decimal.Zero
	switch {
	case len(c.CategorySpending) > 0:
		total := decimal.Zero
		for _, cs := range c.CategorySpending {
			total = total.Add(cs.Amount)
		}
		avg = total.Div(decimal.NewFromInt(CategoryWindowMonths))
	case c.MonthlyData.Len() > 0:
		_, expenses := c.MonthlyData.Totals()
		avg = expenses.Div(decimal.NewFromInt(int64(c.MonthlyData.Len())))
	}

	var out Outcome
	if avg.IsPositive() {
		fund := avg.Mul(decimal.NewFromInt(EmergencyFundMonths))
		if c.AccountBalance.LessThan(fund) {
			out.Recommendations = append(out.Recommendations,
				fmt.Sprintf("Build an emergency fund of at least %s to cover %d months of expenses.",
					c.Format.Format(fund), EmergencyFundMonths))
		}
	}
	if c.AccountBalance.GreaterThan(DiversifyBalance) {
		out.Recommendations = append(out.Recommendations,
			"Your balance is substantial. Consider diversifying your investments to reduce risk.")
	}
	return out
}

func shareOf(part, total decimal.Decimal) float64 {
	return part.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
}

// roundPct rounds half up, the way the display layer does.
func roundPct(v float64) int {
	return int(math.Floor(v + 0.5))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
