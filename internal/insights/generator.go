// Package insights turns report aggregates into short natural-language
// insights and recommendations.
//
// Generation runs an ordered list of independent rules over a shared context,
// concatenates their output and truncates each list to MaxEntries. Generate
// never fails: any error or panic degrades to a fixed fallback pair.
package insights

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/shopspring/decimal"

	"finreport/internal/core"
	applog "finreport/internal/log"
)

// MaxEntries caps both the insight and the recommendation list.
const MaxEntries = 4

// ErrGeneration reports that the rule engine could not produce output.
var ErrGeneration = errors.New("insight generation failed")

const (
	emptyInsightFmt        = "Not enough data yet to generate insights for this %s."
	emptyRecommendation    = "Keep recording your transactions to unlock personalized recommendations."
	fallbackInsight        = "We couldn't analyze your finances right now."
	fallbackRecommendation = "Keep tracking your expenses and check back later for personalized recommendations."
)

// Input is the aggregate data the rules look at.
type Input struct {
	Period           core.Period
	CategorySpending []core.CategorySpending
	BudgetStatuses   []core.BudgetStatus
	MonthlyData      core.MonthlyData
	AccountBalance   decimal.Decimal
}

// Insights is the generator output.
type Insights struct {
	Insights        []string `json:"insights"`
	Recommendations []string `json:"recommendations"`
}

// Fallback is the output used when generation fails.
func Fallback() Insights {
	return Insights{
		Insights:        []string{fallbackInsight},
		Recommendations: []string{fallbackRecommendation},
	}
}

// Generator evaluates rules in order.
type Generator struct {
	rules  []Rule
	format core.CurrencyFormatter
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithRules replaces the default rule list.
func WithRules(rules ...Rule) Option {
	return func(g *Generator) { g.rules = rules }
}

// WithFormatter sets the currency formatter used in amount text.
func WithFormatter(f core.CurrencyFormatter) Option {
	return func(g *Generator) { g.format = f }
}

// WithLogger sets the logger used to report degraded generation.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// NewGenerator returns a generator with the default rules and formatter.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		rules:  DefaultRules(),
		format: core.DefaultFormatter(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = g.logger.With(applog.FieldComponent, applog.ComponentInsights)
	return g
}

// Generate returns insights for in, or Fallback when generation fails.
func (g *Generator) Generate(in Input) Insights {
	out, err := g.Try(in)
	if err != nil {
		g.logger.Warn("Insight generation degraded to fallback",
			applog.FieldError, err,
			applog.FieldPeriod, string(in.Period))
		return Fallback()
	}
	return out
}

// Try runs the rules and reports failure instead of degrading.
func (g *Generator) Try(in Input) (out Insights, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = Insights{}
			err = fmt.Errorf("%w: rule panicked: %v", ErrGeneration, r)
		}
	}()

	if err := validate(in); err != nil {
		return Insights{}, fmt.Errorf("%w: %w", ErrGeneration, err)
	}

	ctx := Context{Input: in, Format: g.format}
	for _, rule := range g.rules {
		o := rule.Apply(ctx)
		out.Insights = append(out.Insights, o.Insights...)
		out.Recommendations = append(out.Recommendations, o.Recommendations...)
	}

	if len(out.Insights) == 0 {
		out.Insights = []string{fmt.Sprintf(emptyInsightFmt, in.Period)}
	}
	if len(out.Recommendations) == 0 {
		out.Recommendations = []string{emptyRecommendation}
	}
	out.Insights = truncate(out.Insights)
	out.Recommendations = truncate(out.Recommendations)
	return out, nil
}

func validate(in Input) error {
	if !in.Period.IsValid() {
		return fmt.Errorf("%w: %q", core.ErrInvalidPeriod, in.Period)
	}
	for _, b := range in.BudgetStatuses {
		if math.IsNaN(b.Percentage) || math.IsInf(b.Percentage, 0) {
			return fmt.Errorf("budget %q has non-finite percentage", b.Name)
		}
	}
	md := in.MonthlyData
	if len(md.Income) != len(md.Labels) || len(md.Expenses) != len(md.Labels) {
		return fmt.Errorf("time series lengths differ: labels=%d income=%d expenses=%d",
			len(md.Labels), len(md.Income), len(md.Expenses))
	}
	return nil
}

func truncate(s []string) []string {
	if len(s) > MaxEntries {
		return s[:MaxEntries]
	}
	return s
}
