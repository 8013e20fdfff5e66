package caseload

import (
	"strings"
	"time"

	"caseflow/domain/core"
)

// Granularity is the calendar bucket size used for rollups.
type Granularity string

const (
	GranularityDay     Granularity = "day"
	GranularityWeek    Granularity = "week"
	GranularityMonth   Granularity = "month"
	GranularityQuarter Granularity = "quarter"
)

// Granularities lists the supported set in ascending span order.
var Granularities = []Granularity{GranularityDay, GranularityWeek, GranularityMonth, GranularityQuarter}

// ParseGranularity accepts the canonical names plus a few common aliases.
func ParseGranularity(s string) (Granularity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "daily", "d":
		return GranularityDay, nil
	case "week", "weekly", "w":
		return GranularityWeek, nil
	case "month", "monthly", "m":
		return GranularityMonth, nil
	case "quarter", "quarterly", "q":
		return GranularityQuarter, nil
	}
	return "", core.NewGranularityError(s)
}

// Valid reports whether g is one of the supported granularities.
func (g Granularity) Valid() bool {
	for _, known := range Granularities {
		if g == known {
			return true
		}
	}
	return false
}

// GroupBy selects the grouping key inside each period.
type GroupBy string

const (
	GroupAll        GroupBy = "all"
	GroupDepartment GroupBy = "department"
	GroupSurgeon    GroupBy = "surgeon"
)

// AllKey is the grouping key of hospital-wide aggregates.
const AllKey = "ALL"

// ParseGroupBy parses a grouping name.
func ParseGroupBy(s string) (GroupBy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all", "hospital":
		return GroupAll, nil
	case "department", "dept":
		return GroupDepartment, nil
	case "surgeon":
		return GroupSurgeon, nil
	}
	return "", core.NewValidationError("grouping", "unknown grouping "+s)
}

// Metric is the value a ranking is ordered by.
type Metric string

const (
	MetricCaseCount     Metric = "case_count"
	MetricTotalDuration Metric = "total_duration"
)

// ParseMetric parses a ranking metric name.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "case_count", "cases", "count":
		return MetricCaseCount, nil
	case "total_duration", "duration", "minutes":
		return MetricTotalDuration, nil
	}
	return "", core.NewValidationError("metric", "unknown metric "+s)
}

// ErrorMetric scores forecast errors on held-out points; lower is better.
type ErrorMetric string

const (
	ErrorMAE  ErrorMetric = "mae"
	ErrorRMSE ErrorMetric = "rmse"
	ErrorMAPE ErrorMetric = "mape"
)

// ParseErrorMetric parses a validation metric name.
func ParseErrorMetric(s string) (ErrorMetric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mae":
		return ErrorMAE, nil
	case "rmse":
		return ErrorRMSE, nil
	case "mape":
		return ErrorMAPE, nil
	}
	return "", core.NewValidationError("metric", "unknown validation metric "+s)
}

// RawRecord is one case as delivered by an ingestion collaborator. Date and
// Duration are untyped because sources disagree (strings, Excel serials, time values).
type RawRecord struct {
	Row           int    `json:"row,omitempty"`
	Date          any    `json:"date"`
	Department    string `json:"department"`
	Surgeon       string `json:"surgeon"`
	Duration      any    `json:"duration"`
	ProcedureType string `json:"procedure_type,omitempty"`
	Outcome       string `json:"outcome,omitempty"`
}

// CaseRecord is one validated surgical case.
type CaseRecord struct {
	Date          time.Time `json:"date"`
	Department    string    `json:"department"`
	Surgeon       string    `json:"surgeon"`
	Duration      float64   `json:"duration"` // minutes
	ProcedureType string    `json:"procedure_type,omitempty"`
	Outcome       string    `json:"outcome,omitempty"`
}

// CanonicalRow is a CaseRecord annotated with its calendar columns.
type CanonicalRow struct {
	CaseRecord
	IsBusinessDay bool      `json:"is_business_day"`
	ISOYear       int       `json:"iso_year"`
	ISOWeek       int       `json:"iso_week"`
	WeekStart     time.Time `json:"week_start"`
	Month         time.Time `json:"month"`
	Quarter       int       `json:"quarter"`
	QuarterStart  time.Time `json:"quarter_start"`
	FiscalYear    int       `json:"fiscal_year"`
	FiscalPeriod  int       `json:"fiscal_period"`
}

// DateRange is an inclusive span of civil dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewDateRange normalizes both ends to civil dates.
func NewDateRange(start, end time.Time) DateRange {
	return DateRange{Start: core.Date(start), End: core.Date(end)}
}

// IsZero reports whether the range was never set.
func (r DateRange) IsZero() bool {
	return r.Start.IsZero() && r.End.IsZero()
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d time.Time) bool {
	d = core.Date(d)
	return !d.Before(r.Start) && !d.After(r.End)
}

// Covers reports whether other lies entirely inside r.
func (r DateRange) Covers(other DateRange) bool {
	if r.IsZero() {
		return false
	}
	return !other.Start.Before(r.Start) && !other.End.After(r.End)
}

// Overlaps reports whether the two ranges share at least one day.
func (r DateRange) Overlaps(other DateRange) bool {
	return !other.End.Before(r.Start) && !other.Start.After(r.End)
}

// Intersect returns the common part of two ranges and false when they are disjoint.
func (r DateRange) Intersect(other DateRange) (DateRange, bool) {
	if !r.Overlaps(other) {
		return DateRange{}, false
	}
	return DateRange{Start: core.MaxDate(r.Start, other.Start), End: core.MinDate(r.End, other.End)}, true
}

// Days returns the number of days in the range, both ends included.
func (r DateRange) Days() int {
	if r.IsZero() || r.End.Before(r.Start) {
		return 0
	}
	return core.DaysBetween(r.Start, r.End) + 1
}

func (r DateRange) String() string {
	return core.FormatDate(r.Start) + ".." + core.FormatDate(r.End)
}
