// Package calendar classifies business days and computes week, month, quarter
// and fiscal period boundaries. A Calendar is immutable after New.
package calendar

import (
	"fmt"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
)

// Options configures a Calendar.
type Options struct {
	WeekStart            time.Weekday
	Holidays             []time.Time
	Rules                HolidayRuleSet
	FiscalYearStartMonth time.Month
}

// DefaultOptions returns Monday weeks, the jp-major holiday rules and an April fiscal year.
func DefaultOptions() Options {
	return Options{
		WeekStart:            time.Monday,
		Rules:                RulesJPMajor,
		FiscalYearStartMonth: time.April,
	}
}

// Calendar answers calendar questions for one site configuration.
type Calendar struct {
	weekStart   time.Weekday
	holidays    map[time.Time]struct{}
	rules       HolidayRuleSet
	fiscalStart time.Month
}

// New validates opts and builds a Calendar.
func New(opts Options) (*Calendar, error) {
	if opts.WeekStart < time.Sunday || opts.WeekStart > time.Saturday {
		return nil, core.NewValidationError("week_start", fmt.Sprintf("weekday %d out of range", opts.WeekStart))
	}
	if opts.FiscalYearStartMonth == 0 {
		opts.FiscalYearStartMonth = time.April
	}
	if opts.FiscalYearStartMonth < time.January || opts.FiscalYearStartMonth > time.December {
		return nil, core.NewValidationError("fiscal_year_start_month", fmt.Sprintf("month %d out of range", opts.FiscalYearStartMonth))
	}
	if opts.Rules == "" {
		opts.Rules = RulesNone
	}
	if !opts.Rules.Valid() {
		return nil, core.NewValidationError("holiday_rules", fmt.Sprintf("unknown rule set %q", opts.Rules))
	}

	holidays := make(map[time.Time]struct{}, len(opts.Holidays))
	for _, h := range opts.Holidays {
		if h.IsZero() {
			return nil, core.NewValidationError("holidays", "zero date in holiday list")
		}
		holidays[core.Date(h)] = struct{}{}
	}

	return &Calendar{
		weekStart:   opts.WeekStart,
		holidays:    holidays,
		rules:       opts.Rules,
		fiscalStart: opts.FiscalYearStartMonth,
	}, nil
}

// MustDefault builds the default calendar; it cannot fail.
func MustDefault() *Calendar {
	cal, err := New(DefaultOptions())
	if err != nil {
		panic(err)
	}
	return cal
}

// WeekStart returns the configured first day of the week.
func (c *Calendar) WeekStart() time.Weekday {
	return c.weekStart
}

func checkDate(field string, d time.Time) error {
	if d.IsZero() {
		return core.NewValidationError(field, "zero date")
	}
	return nil
}

// IsHoliday reports whether d is a designated holiday (explicit list or rule set).
func (c *Calendar) IsHoliday(d time.Time) bool {
	d = core.Date(d)
	if _, ok := c.holidays[d]; ok {
		return true
	}
	return c.rules.Match(d)
}

// IsBusinessDay is false on weekends and designated holidays.
func (c *Calendar) IsBusinessDay(d time.Time) (bool, error) {
	if err := checkDate("date", d); err != nil {
		return false, err
	}
	return c.isBusinessDay(d), nil
}

func (c *Calendar) isBusinessDay(d time.Time) bool {
	switch d.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	return !c.IsHoliday(d)
}

// WeekBounds returns the first and last day of the week containing d.
func (c *Calendar) WeekBounds(d time.Time) (time.Time, time.Time, error) {
	return c.PeriodBounds(d, caseload.GranularityWeek)
}

// PeriodBounds returns the inclusive first and last day of the period of
// granularity g that contains d.
func (c *Calendar) PeriodBounds(d time.Time, g caseload.Granularity) (time.Time, time.Time, error) {
	if err := checkDate("date", d); err != nil {
		return time.Time{}, time.Time{}, err
	}
	if !g.Valid() {
		return time.Time{}, time.Time{}, core.NewGranularityError(string(g))
	}
	start := c.PeriodStart(d, g)
	return start, core.AddDays(c.NextPeriodStart(start, g), -1), nil
}

// PeriodStart truncates d to the start of its period. g must be valid.
func (c *Calendar) PeriodStart(d time.Time, g caseload.Granularity) time.Time {
	d = core.Date(d)
	switch g {
	case caseload.GranularityWeek:
		offset := (int(d.Weekday()) - int(c.weekStart) + 7) % 7
		return core.AddDays(d, -offset)
	case caseload.GranularityMonth:
		return core.MakeDate(d.Year(), d.Month(), 1)
	case caseload.GranularityQuarter:
		return core.MakeDate(d.Year(), quarterStartMonth(d.Month()), 1)
	default:
		return d
	}
}

// NextPeriodStart returns the start of the period following the one starting at start.
func (c *Calendar) NextPeriodStart(start time.Time, g caseload.Granularity) time.Time {
	switch g {
	case caseload.GranularityWeek:
		return core.AddDays(start, 7)
	case caseload.GranularityMonth:
		return start.AddDate(0, 1, 0)
	case caseload.GranularityQuarter:
		return start.AddDate(0, 3, 0)
	default:
		return core.AddDays(start, 1)
	}
}

// PeriodsBetween counts period steps from the period containing a to the
// period containing b; negative when b precedes a.
func (c *Calendar) PeriodsBetween(a, b time.Time, g caseload.Granularity) int {
	pa, pb := c.PeriodStart(a, g), c.PeriodStart(b, g)
	switch g {
	case caseload.GranularityWeek:
		return core.DaysBetween(pa, pb) / 7
	case caseload.GranularityMonth:
		return monthIndex(pb) - monthIndex(pa)
	case caseload.GranularityQuarter:
		return (monthIndex(pb) - monthIndex(pa)) / 3
	default:
		return core.DaysBetween(pa, pb)
	}
}

// BusinessDaysBetween counts business days in [start, end].
func (c *Calendar) BusinessDaysBetween(start, end time.Time) int {
	start, end = core.Date(start), core.Date(end)
	n := 0
	for d := start; !d.After(end); d = core.AddDays(d, 1) {
		if c.isBusinessDay(d) {
			n++
		}
	}
	return n
}

// FiscalYear returns the fiscal year d belongs to, named after the calendar
// year in which it starts.
func (c *Calendar) FiscalYear(d time.Time) int {
	if d.Month() >= c.fiscalStart {
		return d.Year()
	}
	return d.Year() - 1
}

// FiscalPeriod returns the 1-based month index of d inside its fiscal year.
func (c *Calendar) FiscalPeriod(d time.Time) int {
	return (int(d.Month())-int(c.fiscalStart)+12)%12 + 1
}

// FiscalYearRange returns the first and last day of fiscal year fy.
func (c *Calendar) FiscalYearRange(fy int) caseload.DateRange {
	start := core.MakeDate(fy, c.fiscalStart, 1)
	return caseload.DateRange{Start: start, End: core.AddDays(start.AddDate(1, 0, 0), -1)}
}

// LastCompleteWeekEnd returns the last day of the latest week that has fully
// elapsed on latest. When latest is itself the last day of a week it is returned.
func (c *Calendar) LastCompleteWeekEnd(latest time.Time) time.Time {
	start := c.PeriodStart(latest, caseload.GranularityWeek)
	end := core.AddDays(start, 6)
	if end.Equal(core.Date(latest)) {
		return end
	}
	return core.AddDays(start, -1)
}

// Label renders a human-readable period name: 2024-W03, 2024-03, 2024 Q1, 2024-03-05.
func (c *Calendar) Label(start time.Time, g caseload.Granularity) string {
	switch g {
	case caseload.GranularityWeek:
		if c.weekStart == time.Monday {
			y, w := start.ISOWeek()
			return fmt.Sprintf("%04d-W%02d", y, w)
		}
		return "week of " + core.FormatDate(start)
	case caseload.GranularityMonth:
		return start.Format("2006-01")
	case caseload.GranularityQuarter:
		return fmt.Sprintf("%d Q%d", start.Year(), quarterOf(start.Month()))
	default:
		return core.FormatDate(start)
	}
}

// Annotate derives the calendar columns of a case.
func (c *Calendar) Annotate(rec caseload.CaseRecord) caseload.CanonicalRow {
	d := core.Date(rec.Date)
	rec.Date = d
	isoYear, isoWeek := d.ISOWeek()
	return caseload.CanonicalRow{
		CaseRecord:    rec,
		IsBusinessDay: c.isBusinessDay(d),
		ISOYear:       isoYear,
		ISOWeek:       isoWeek,
		WeekStart:     c.PeriodStart(d, caseload.GranularityWeek),
		Month:         c.PeriodStart(d, caseload.GranularityMonth),
		Quarter:       quarterOf(d.Month()),
		QuarterStart:  c.PeriodStart(d, caseload.GranularityQuarter),
		FiscalYear:    c.FiscalYear(d),
		FiscalPeriod:  c.FiscalPeriod(d),
	}
}

func quarterOf(m time.Month) int {
	return (int(m)-1)/3 + 1
}

func quarterStartMonth(m time.Month) time.Month {
	return time.Month((quarterOf(m)-1)*3 + 1)
}

func monthIndex(d time.Time) int {
	return d.Year()*12 + int(d.Month()) - 1
}
