package core

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// CategorySpending is the paid-bill total attributed to one category.
type CategorySpending struct {
	Name   string          `json:"name"`
	Amount decimal.Decimal `json:"amount"`
	Color  string          `json:"color"`
}

// BudgetStatus is a budget's spent/total ratio at evaluation time.
type BudgetStatus struct {
	Name       string          `json:"name"`
	Spent      decimal.Decimal `json:"spent"`
	Total      decimal.Decimal `json:"total"`
	Percentage float64         `json:"percentage"`
}

// BudgetComparison joins a budget with the category spend of the report window.
type BudgetComparison struct {
	Name               string          `json:"name"`
	BudgetAmount       decimal.Decimal `json:"budgetAmount"`
	ActualSpent        decimal.Decimal `json:"actualSpent"`
	PeriodSpent        decimal.Decimal `json:"periodSpent"`
	Difference         decimal.Decimal `json:"difference"`
	PercentageOfBudget float64         `json:"percentageOfBudget"`
	IsOverBudget       bool            `json:"isOverBudget"`
	AlertTriggered     bool            `json:"alertTriggered"`
}

// MonthlyData is the bucketed income/expense series, oldest bucket first.
type MonthlyData struct {
	Labels   []string          `json:"labels"`
	Income   []decimal.Decimal `json:"income"`
	Expenses []decimal.Decimal `json:"expenses"`
}

// FinancialReport is an immutable snapshot produced by report generation.
type FinancialReport struct {
	ID               string             `json:"id"`
	UserID           string             `json:"userId"`
	GeneratedAt      time.Time          `json:"generatedAt"`
	Period           Period             `json:"period"`
	StartDate        time.Time          `json:"startDate"`
	EndDate          time.Time          `json:"endDate"`
	CategorySpending []CategorySpending `json:"categorySpending"`
	BudgetStatuses   []BudgetStatus     `json:"budgetStatuses"`
	MonthlyData      MonthlyData        `json:"monthlyData"`
	Insights         []string           `json:"insights"`
	Recommendations  []string           `json:"recommendations"`
	TotalIncome      decimal.Decimal    `json:"totalIncome"`
	TotalExpenses    decimal.Decimal    `json:"totalExpenses"`
	SavingsRate      float64            `json:"savingsRate"`
}

// Clone returns a copy that shares no slices with r.
func (r FinancialReport) Clone() FinancialReport {
	r.CategorySpending = slices.Clone(r.CategorySpending)
	r.BudgetStatuses = slices.Clone(r.BudgetStatuses)
	r.MonthlyData = MonthlyData{
		Labels:   slices.Clone(r.MonthlyData.Labels),
		Income:   slices.Clone(r.MonthlyData.Income),
		Expenses: slices.Clone(r.MonthlyData.Expenses),
	}
	r.Insights = slices.Clone(r.Insights)
	r.Recommendations = slices.Clone(r.Recommendations)
	return r
}

// UnusualTransaction is a transaction flagged by the anomaly detector.
type UnusualTransaction struct {
	Category               string          `json:"category"`
	Amount                 decimal.Decimal `json:"amount"`
	Date                   time.Time       `json:"date"`
	Description            string          `json:"description,omitempty"`
	PercentageAboveAverage float64         `json:"percentageAboveAverage"`
	Frequency              string          `json:"frequency,omitempty"`
	SeasonalContext        string          `json:"seasonalContext,omitempty"`
}

// NewMonthlyData allocates a zeroed series with the given labels.
func NewMonthlyData(labels []string) MonthlyData {
	md := MonthlyData{
		Labels:   labels,
		Income:   make([]decimal.Decimal, len(labels)),
		Expenses: make([]decimal.Decimal, len(labels)),
	}
	for i := range labels {
		md.Income[i] = decimal.Zero
		md.Expenses[i] = decimal.Zero
	}
	return md
}

// Len is the number of buckets.
func (m MonthlyData) Len() int {
	return len(m.Labels)
}

// HasData reports whether any bucket holds income or expenses.
func (m MonthlyData) HasData() bool {
	for _, v := range m.Income {
		if !v.IsZero() {
			return true
		}
	}
	for _, v := range m.Expenses {
		if !v.IsZero() {
			return true
		}
	}
	return false
}

// Totals sums income and expenses over every bucket.
func (m MonthlyData) Totals() (income, expenses decimal.Decimal) {
	income, expenses = decimal.Zero, decimal.Zero
	for _, v := range m.Income {
		income = income.Add(v)
	}
	for _, v := range m.Expenses {
		expenses = expenses.Add(v)
	}
	return income, expenses
}
