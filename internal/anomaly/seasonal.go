package anomaly

import "time"

// MonthDay is a calendar day without a year.
type MonthDay struct {
	Month time.Month
	Day   int
}

func (m MonthDay) before(o MonthDay) bool {
	if m.Month != o.Month {
		return m.Month < o.Month
	}
	return m.Day < o.Day
}

// SeasonalPeriod is a recurring stretch of the year when spending habitually
// rises. From and To are inclusive; a period may wrap the new year.
type SeasonalPeriod struct {
	Name    string
	From    MonthDay
	To      MonthDay
	Context string
}

// Contains reports whether t falls inside the period.
func (p SeasonalPeriod) Contains(t time.Time) bool {
	day := MonthDay{Month: t.Month(), Day: t.Day()}
	inFirst := !day.before(p.From)
	inLast := !p.To.before(day)
	if p.To.before(p.From) {
		return inFirst || inLast
	}
	return inFirst && inLast
}

// SeasonalCalendar is an ordered list of periods; the first match wins.
type SeasonalCalendar []SeasonalPeriod

// DefaultCalendar returns the built-in seasonal periods.
func DefaultCalendar() SeasonalCalendar {
	return SeasonalCalendar{
		{
			Name:    "new_year",
			From:    MonthDay{time.December, 29},
			To:      MonthDay{time.January, 3},
			Context: "Around New Year, when celebrations raise spending.",
		},
		{
			Name:    "lunar_new_year",
			From:    MonthDay{time.January, 20},
			To:      MonthDay{time.February, 20},
			Context: "During the Lunar New Year (Tết) season, when gifts and travel raise spending.",
		},
		{
			Name:    "back_to_school",
			From:    MonthDay{time.August, 15},
			To:      MonthDay{time.September, 15},
			Context: "During back-to-school season, when tuition and supplies raise spending.",
		},
		{
			Name:    "year_end_sales",
			From:    MonthDay{time.November, 20},
			To:      MonthDay{time.December, 14},
			Context: "During year-end sales, when promotions raise spending.",
		},
		{
			Name:    "holiday_season",
			From:    MonthDay{time.December, 15},
			To:      MonthDay{time.December, 28},
			Context: "During the December holidays, when gifts and travel raise spending.",
		},
	}
}

// Lookup returns the first period containing t.
func (c SeasonalCalendar) Lookup(t time.Time) (SeasonalPeriod, bool) {
	for _, p := range c {
		if p.Contains(t) {
			return p, true
		}
	}
	return SeasonalPeriod{}, false
}
