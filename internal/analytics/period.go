// Package analytics resolves reporting windows and derives aggregates from
// bills, budgets and transactions.
//
// Each period (week, month, year) has its own resolver strategy that knows how
// far back the window reaches, how many buckets the time series has and how a
// timestamp maps onto a bucket.
package analytics

import (
	"fmt"
	"math"
	"time"

	"finreport/internal/core"
)

// Window is a resolved reporting period.
type Window struct {
	Period      core.Period
	Range       core.DateRange
	BucketCount int
	resolver    PeriodResolver
}

// PeriodResolver is the strategy for one symbolic period.
type PeriodResolver interface {
	// Start returns the first instant of the window ending at ref.
	Start(ref time.Time) time.Time
	// BucketCount is the number of time-series slots.
	BucketCount() int
	// BucketIndex maps t onto a slot; values outside [0, BucketCount) are dropped.
	BucketIndex(ref, t time.Time) int
	// Label names the i-th slot, oldest first.
	Label(ref time.Time, i int) string
}

// WeekResolver covers the trailing seven days, one bucket per day.
type WeekResolver struct{}

func (WeekResolver) Start(ref time.Time) time.Time { return ref.AddDate(0, 0, -7) }
func (WeekResolver) BucketCount() int              { return 7 }

func (r WeekResolver) BucketIndex(ref, t time.Time) int {
	return dailyIndex(r.BucketCount(), ref, t)
}

func (r WeekResolver) Label(ref time.Time, i int) string {
	return ref.AddDate(0, 0, -(r.BucketCount() - 1 - i)).Format("Mon")
}

// MonthResolver covers one calendar month back, bucketed into 30 days.
type MonthResolver struct{}

func (MonthResolver) Start(ref time.Time) time.Time { return ref.AddDate(0, -1, 0) }
func (MonthResolver) BucketCount() int              { return 30 }

func (r MonthResolver) BucketIndex(ref, t time.Time) int {
	return dailyIndex(r.BucketCount(), ref, t)
}

func (r MonthResolver) Label(ref time.Time, i int) string {
	return ref.AddDate(0, 0, -(r.BucketCount() - 1 - i)).Format("Jan 2")
}

// YearResolver covers one calendar year back, one bucket per month.
type YearResolver struct{}

func (YearResolver) Start(ref time.Time) time.Time { return ref.AddDate(-1, 0, 0) }
func (YearResolver) BucketCount() int              { return 12 }

func (r YearResolver) BucketIndex(ref, t time.Time) int {
	months := (ref.Year()-t.Year())*12 + (int(ref.Month()) - int(t.Month()))
	return r.BucketCount() - 1 - months
}

func (r YearResolver) Label(ref time.Time, i int) string {
	first := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, ref.Location())
	return first.AddDate(0, -(r.BucketCount() - 1 - i), 0).Format("Jan 2006")
}

// dailyIndex is bucketCount-1-floor((ref-t)/24h).
func dailyIndex(bucketCount int, ref, t time.Time) int {
	days := math.Floor(ref.Sub(t).Hours() / 24)
	return bucketCount - 1 - int(days)
}

var periodResolvers = map[core.Period]PeriodResolver{
	core.Week:  WeekResolver{},
	core.Month: MonthResolver{},
	core.Year:  YearResolver{},
}

// GetPeriodResolver returns the strategy registered for p.
func GetPeriodResolver(p core.Period) (PeriodResolver, error) {
	r, ok := periodResolvers[p]
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, p)
	}
	return r, nil
}

// Resolve converts a period and reference instant into a concrete window.
// A zero ref means now.
func Resolve(p core.Period, ref time.Time) (Window, error) {
	r, err := GetPeriodResolver(p)
	if err != nil {
		return Window{}, err
	}
	if ref.IsZero() {
		ref = time.Now()
	}
	return Window{
		Period:      p,
		Range:       core.DateRange{Start: r.Start(ref), End: ref},
		BucketCount: r.BucketCount(),
		resolver:    r,
	}, nil
}

// ResolveString is Resolve for an unparsed period symbol.
func ResolveString(period string, ref time.Time) (Window, error) {
	p, err := core.ParsePeriod(period)
	if err != nil {
		return Window{}, fmt.Errorf("%w: %q", core.ErrInvalidPeriod, period)
	}
	return Resolve(p, ref)
}

// Labels returns the bucket labels, oldest first.
func (w Window) Labels() []string {
	labels := make([]string, w.BucketCount)
	for i := range labels {
		labels[i] = w.resolver.Label(w.Range.End, i)
	}
	return labels
}

// BucketIndex maps t onto the window's series; ok is false when t falls outside.
func (w Window) BucketIndex(t time.Time) (int, bool) {
	i := w.resolver.BucketIndex(w.Range.End, t)
	return i, i >= 0 && i < w.BucketCount
}

// BucketUnit names one bucket in prose ("day" or "month").
func (w Window) BucketUnit() string {
	return BucketUnit(w.Period)
}

// BucketUnit names one bucket of period p in prose.
func BucketUnit(p core.Period) string {
	if p == core.Year {
		return "month"
	}
	return "day"
}
