// Package performance compares department case volumes with weekly targets
// over complete weeks and the running fiscal year.
package performance

import (
	"math"
	"sort"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal"
	"caseflow/internal/aggregate"
	"caseflow/internal/calendar"

	"github.com/montanaflynn/stats"
)

// DepartmentPerformance is one department's recent four complete weeks.
type DepartmentPerformance struct {
	Department      string             `json:"department"`
	WeeklyAverage   float64            `json:"weekly_average"`
	LatestWeekCases int                `json:"latest_week_cases"`
	WeeklyTarget    float64            `json:"weekly_target"`
	AchievementRate float64            `json:"achievement_rate"` // percent
	Window          caseload.DateRange `json:"window"`
}

// Achievement is a department's volume against its target over the table span.
type Achievement struct {
	Department   string  `json:"department"`
	Actual       int     `json:"actual"`
	PeriodTarget float64 `json:"period_target"`
	Rate         float64 `json:"rate"` // percent
}

// CumulativeWeek is one week of the fiscal-year running total.
type CumulativeWeek struct {
	WeekStart        time.Time `json:"week_start"`
	Actual           int       `json:"actual"`
	CumulativeActual int       `json:"cumulative_actual"`
	CumulativeTarget float64   `json:"cumulative_target"`
}

// KPISummary describes the last four complete weeks of the whole hospital.
type KPISummary struct {
	Window              caseload.DateRange `json:"window"`
	TotalCases          int                `json:"total_cases"`
	BusinessDayCases    int                `json:"business_day_cases"`
	BusinessDays        int                `json:"business_days"`
	CasesPerBusinessDay float64            `json:"cases_per_business_day"`
	TotalDuration       float64            `json:"total_duration"`
	MedianDuration      float64            `json:"median_duration"`
	Departments         int                `json:"departments"`
}

// Analyzer computes target views on top of the weekly rollup.
type Analyzer struct {
	cal    *calendar.Calendar
	agg    *aggregate.Aggregator
	logger *internal.Logger
}

// New creates an analyzer sharing the aggregator's calendar.
func New(agg *aggregate.Aggregator, logger *internal.Logger) *Analyzer {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Analyzer{cal: agg.Calendar(), agg: agg, logger: logger.With("performance")}
}

// recentWeeks is the span of the last four complete weeks of table.
func (a *Analyzer) recentWeeks(table *caseload.CanonicalTable) (caseload.DateRange, error) {
	if table == nil || table.Len() == 0 {
		return caseload.DateRange{}, core.ErrEmptyInput
	}
	window, err := a.cal.ResolvePreset(table.Coverage(), calendar.PresetLast4Weeks)
	if err != nil {
		return caseload.DateRange{}, core.NewValidationError("table", "no complete week in "+table.Coverage().String())
	}
	return window, nil
}

// DepartmentPerformance reports, for every department with a target and at
// least one case in the last four complete weeks, its weekly average, its
// latest week and the achievement rate. Rows are ordered by rate descending.
func (a *Analyzer) DepartmentPerformance(table *caseload.CanonicalTable, targets caseload.Targets) ([]DepartmentPerformance, error) {
	window, err := a.recentWeeks(table)
	if err != nil {
		return nil, err
	}
	aggs, err := a.agg.AggregateWithOptions(table.Window(window), caseload.GranularityWeek, caseload.GroupDepartment, aggregate.Options{CompleteOnly: true})
	if err != nil {
		return nil, err
	}

	var out []DepartmentPerformance
	for _, dept := range targets.Departments() {
		s := aggregate.Series(aggs, dept, aggregate.CaseCount)
		total := 0.0
		for _, v := range s.Values {
			total += v
		}
		if total == 0 {
			continue
		}
		avg := total / float64(s.Len())
		target := targets[dept]
		out = append(out, DepartmentPerformance{
			Department:      dept,
			WeeklyAverage:   avg,
			LatestWeekCases: int(s.Values[s.Len()-1]),
			WeeklyTarget:    target,
			AchievementRate: rate(avg, target),
			Window:          window,
		})
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].AchievementRate > out[j].AchievementRate })
	a.logger.Debug("performance of %d departments over %s", len(out), window)
	return out, nil
}

// AchievementRates compares each targeted department's case count over the
// whole table span with its weekly target scaled to that span.
func (a *Analyzer) AchievementRates(table *caseload.CanonicalTable, targets caseload.Targets) ([]Achievement, error) {
	if table == nil || table.Len() == 0 {
		return nil, core.ErrEmptyInput
	}
	weeks := float64(table.Coverage().Days()) / 7

	counts := make(map[string]int)
	table.Each(func(r caseload.CanonicalRow) { counts[r.Department]++ })

	var out []Achievement
	for _, dept := range targets.Departments() {
		actual, ok := counts[dept]
		if !ok {
			continue
		}
		periodTarget := targets[dept] * weeks
		out = append(out, Achievement{
			Department:   dept,
			Actual:       actual,
			PeriodTarget: round1(periodTarget),
			Rate:         round1(rate(float64(actual), periodTarget)),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Rate > out[j].Rate })
	return out, nil
}

// Cumulative runs the hospital's weekly actuals and targets through the fiscal
// year containing the last case, from the first week with data.
func (a *Analyzer) Cumulative(table *caseload.CanonicalTable, weeklyTarget float64) ([]CumulativeWeek, error) {
	if table == nil || table.Len() == 0 {
		return nil, core.ErrEmptyInput
	}
	coverage := table.Coverage()
	fy := a.cal.FiscalYearRange(a.cal.FiscalYear(coverage.End))
	aggs, err := a.agg.Aggregate(table.Window(fy), caseload.GranularityWeek, caseload.GroupAll)
	if err != nil {
		return nil, err
	}

	out := make([]CumulativeWeek, 0, len(aggs))
	running := 0
	for i, agg := range aggs {
		running += agg.CaseCount
		out = append(out, CumulativeWeek{
			WeekStart:        agg.PeriodStart,
			Actual:           agg.CaseCount,
			CumulativeActual: running,
			CumulativeTarget: float64(i+1) * weeklyTarget,
		})
	}
	return out, nil
}

// KPI summarizes the last four complete weeks of the hospital.
func (a *Analyzer) KPI(table *caseload.CanonicalTable) (KPISummary, error) {
	window, err := a.recentWeeks(table)
	if err != nil {
		return KPISummary{}, err
	}
	recent := table.Window(window)

	kpi := KPISummary{
		Window:       window,
		TotalCases:   recent.Len(),
		BusinessDays: a.cal.BusinessDaysBetween(window.Start, window.End),
		Departments:  len(recent.Departments()),
	}
	durations := make([]float64, 0, recent.Len())
	recent.Each(func(r caseload.CanonicalRow) {
		if r.IsBusinessDay {
			kpi.BusinessDayCases++
		}
		kpi.TotalDuration += r.Duration
		durations = append(durations, r.Duration)
	})
	if len(durations) > 0 {
		kpi.MedianDuration, _ = stats.Median(durations)
	}
	if kpi.BusinessDays > 0 {
		kpi.CasesPerBusinessDay = round1(float64(kpi.BusinessDayCases) / float64(kpi.BusinessDays))
	}
	return kpi, nil
}

func rate(actual, target float64) float64 {
	if target <= 0 {
		return 0
	}
	return actual / target * 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
