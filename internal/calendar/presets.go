package calendar

import (
	"fmt"
	"strings"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
)

// Preset names a reporting window relative to the latest case date.
type Preset string

const (
	PresetAll            Preset = "all"
	PresetLast30Days     Preset = "last_30_days"
	PresetLast90Days     Preset = "last_90_days"
	PresetThisFiscalYear Preset = "this_fiscal_year"
	PresetLastFiscalYear Preset = "last_fiscal_year"
	PresetLast4Weeks     Preset = "last_4_complete_weeks"
)

// ParsePreset parses a window preset name.
func ParsePreset(s string) (Preset, error) {
	p := Preset(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case "":
		return PresetAll, nil
	case PresetAll, PresetLast30Days, PresetLast90Days, PresetThisFiscalYear, PresetLastFiscalYear, PresetLast4Weeks:
		return p, nil
	}
	return "", core.NewValidationError("preset", "unknown window preset "+s)
}

// ResolvePreset turns a preset into a concrete window clipped to coverage, the
// dataset's date range. A preset span that misses the coverage entirely is a
// validation error.
func (c *Calendar) ResolvePreset(coverage caseload.DateRange, p Preset) (caseload.DateRange, error) {
	if coverage.IsZero() {
		return caseload.DateRange{}, core.NewValidationError("coverage", "empty coverage")
	}
	span, err := c.presetSpan(coverage.End, p)
	if err != nil {
		return caseload.DateRange{}, err
	}
	if p == PresetAll || p == "" {
		return coverage, nil
	}
	window, ok := span.Intersect(coverage)
	if !ok {
		return caseload.DateRange{}, core.NewValidationError("preset", fmt.Sprintf("%s (%s) does not overlap the data (%s)", p, span, coverage))
	}
	return window, nil
}

func (c *Calendar) presetSpan(latest time.Time, p Preset) (caseload.DateRange, error) {
	switch p {
	case PresetAll, "":
		return caseload.DateRange{}, nil
	case PresetLast30Days:
		return caseload.DateRange{Start: core.AddDays(latest, -29), End: latest}, nil
	case PresetLast90Days:
		return caseload.DateRange{Start: core.AddDays(latest, -89), End: latest}, nil
	case PresetThisFiscalYear:
		return c.FiscalYearRange(c.FiscalYear(latest)), nil
	case PresetLastFiscalYear:
		return c.FiscalYearRange(c.FiscalYear(latest) - 1), nil
	case PresetLast4Weeks:
		end := c.LastCompleteWeekEnd(latest)
		return caseload.DateRange{Start: core.AddDays(end, -27), End: end}, nil
	}
	return caseload.DateRange{}, core.NewValidationError("preset", "unknown window preset "+string(p))
}

// HorizonPreset names a forecast end point relative to the latest case date.
type HorizonPreset string

const (
	HorizonFiscalYearEnd   HorizonPreset = "fiscal_year_end"
	HorizonCalendarYearEnd HorizonPreset = "calendar_year_end"
	HorizonSixMonths       HorizonPreset = "six_months"
)

// HorizonEnd returns the last date a forecast should reach for preset p.
func (c *Calendar) HorizonEnd(latest time.Time, p HorizonPreset) (time.Time, error) {
	switch p {
	case HorizonFiscalYearEnd:
		return c.FiscalYearRange(c.FiscalYear(latest)).End, nil
	case HorizonCalendarYearEnd:
		return core.MakeDate(latest.Year(), time.December, 31), nil
	case HorizonSixMonths:
		return core.Date(latest).AddDate(0, 6, 0), nil
	}
	return time.Time{}, core.NewValidationError("horizon", "unknown horizon preset "+string(p))
}

// HorizonUntil counts the periods after lastPeriodStart needed to reach end.
// Zero or negative means end is not in the future of the series.
func (c *Calendar) HorizonUntil(lastPeriodStart, end time.Time, g caseload.Granularity) int {
	return c.PeriodsBetween(lastPeriodStart, end, g)
}
