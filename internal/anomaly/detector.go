// Package anomaly flags transactions that are unusually large compared with
// the average of their category.
package anomaly

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"finreport/internal/core"
	applog "finreport/internal/log"
)

const (
	// DefaultThreshold flags transactions at 150% of their category mean.
	DefaultThreshold = 150.0
	// DefaultLookbackMonths is the window used when no start date is given.
	DefaultLookbackMonths = 6
	// FrequencyRecurring marks a flagged transaction that repeats in other months.
	FrequencyRecurring = "recurring"
	// minBaseline is the smallest category size that yields a usable mean.
	minBaseline = 2
)

var hundred = decimal.NewFromInt(100)

// Options narrows a detection run. Zero times and a nil Threshold take the
// detector defaults.
type Options struct {
	Start time.Time
	End   time.Time
	// Threshold is a percentage of the category mean. Any value is used as
	// given, including zero or values under 100, which flag broadly.
	Threshold              *float64
	IncludeSeasonalContext bool
}

// Threshold returns a pointer for Options.Threshold.
func Threshold(pct float64) *float64 { return &pct }

// Detector compares each transaction with its category mean.
type Detector struct {
	calendar       SeasonalCalendar
	lookbackMonths int
	threshold      float64
	now            func() time.Time
	logger         *slog.Logger
}

// Option configures a Detector.
type Option func(*Detector)

// WithCalendar replaces the seasonal calendar.
func WithCalendar(c SeasonalCalendar) Option {
	return func(d *Detector) { d.calendar = c }
}

// WithLookbackMonths sets the default window length.
func WithLookbackMonths(n int) Option {
	return func(d *Detector) {
		if n > 0 {
			d.lookbackMonths = n
		}
	}
}

// WithThreshold sets the threshold used when Options.Threshold is unset.
func WithThreshold(t float64) Option {
	return func(d *Detector) {
		if t > 0 {
			d.threshold = t
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(d *Detector) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Detector) { d.logger = l }
}

// NewDetector returns a detector with the default calendar and lookback.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		calendar:       DefaultCalendar(),
		lookbackMonths: DefaultLookbackMonths,
		threshold:      DefaultThreshold,
		now:            time.Now,
		logger:         slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.logger = d.logger.With(applog.FieldComponent, applog.ComponentAnomaly)
	return d
}

// Window returns the effective date range for opts.
func (d *Detector) Window(opts Options) (core.DateRange, error) {
	end := opts.End
	if end.IsZero() {
		end = d.now()
	}
	start := opts.Start
	if start.IsZero() {
		start = end.AddDate(0, -d.lookbackMonths, 0)
	}
	rng := core.DateRange{Start: start, End: end}
	return rng, rng.Validate()
}

// Detect returns the transactions in the window whose amount is at least
// Threshold percent of their category mean, largest deviation first.
// Categories with fewer than two transactions have no baseline and are skipped.
func (d *Detector) Detect(txs []core.Transaction, opts Options) ([]core.UnusualTransaction, error) {
	rng, err := d.Window(opts)
	if err != nil {
		return nil, err
	}
	threshold := d.threshold
	if opts.Threshold != nil {
		threshold = *opts.Threshold
	}

	var (
		order  []string
		groups = map[string][]core.Transaction{}
	)
	for _, t := range txs {
		if !rng.Contains(t.Date) {
			continue
		}
		if err := t.Validate(); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		label := t.Category.Label()
		if _, ok := groups[label]; !ok {
			order = append(order, label)
		}
		groups[label] = append(groups[label], t)
	}

	seen := occurrences(groups)
	out := make([]core.UnusualTransaction, 0)
	for _, category := range order {
		group := groups[category]
		if len(group) < minBaseline {
			continue
		}
		mean := meanAmount(group)
		if !mean.IsPositive() {
			continue
		}
		for _, t := range group {
			ratio := t.Amount.Div(mean).Mul(hundred).InexactFloat64()
			if ratio < threshold {
				continue
			}
			u := core.UnusualTransaction{
				Category:               category,
				Amount:                 t.Amount,
				Date:                   t.Date,
				Description:            t.Description,
				PercentageAboveAverage: ratio - 100,
			}
			if seen.recursElsewhere(category, t) {
				u.Frequency = FrequencyRecurring
			}
			if opts.IncludeSeasonalContext {
				if p, ok := d.calendar.Lookup(t.Date); ok {
					u.SeasonalContext = p.Context
				}
			}
			out = append(out, u)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PercentageAboveAverage > out[j].PercentageAboveAverage
	})

	d.logger.Debug("Anomaly detection completed",
		"transactions", len(txs),
		"categories", len(groups),
		"flagged", len(out),
		"threshold", threshold)
	return out, nil
}

func meanAmount(txs []core.Transaction) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range txs {
		sum = sum.Add(t.Amount)
	}
	return sum.Div(decimal.NewFromInt(int64(len(txs))))
}

// NormalizeDescription folds case and whitespace so that "Netflix " and
// "netflix" compare equal.
func NormalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

type recurrenceKey struct {
	category    string
	description string
	amount      string
}

// monthSet records which calendar months a description/amount pair occurs in.
type monthSet map[recurrenceKey]map[string]struct{}

func occurrences(groups map[string][]core.Transaction) monthSet {
	m := monthSet{}
	for category, txs := range groups {
		for _, t := range txs {
			k, ok := keyFor(category, t)
			if !ok {
				continue
			}
			if m[k] == nil {
				m[k] = map[string]struct{}{}
			}
			m[k][t.Date.Format("2006-01")] = struct{}{}
		}
	}
	return m
}

func (m monthSet) recursElsewhere(category string, t core.Transaction) bool {
	k, ok := keyFor(category, t)
	if !ok {
		return false
	}
	months := m[k]
	if len(months) < 2 {
		return false
	}
	_, here := months[t.Date.Format("2006-01")]
	return here
}

func keyFor(category string, t core.Transaction) (recurrenceKey, bool) {
	desc := NormalizeDescription(t.Description)
	if desc == "" {
		return recurrenceKey{}, false
	}
	return recurrenceKey{category: category, description: desc, amount: t.Amount.String()}, true
}
