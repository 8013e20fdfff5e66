// Package aggregate rolls the canonical table up into day, week, month and
// quarter periods per grouping key.
package aggregate

import (
	"sort"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal"
	"caseflow/internal/calendar"
)

// Options tunes a rollup.
type Options struct {
	// CompleteOnly drops periods the dataset does not fully cover.
	CompleteOnly bool
}

// Aggregator buckets rows using calendar boundaries.
type Aggregator struct {
	cal    *calendar.Calendar
	logger *internal.Logger
}

// New creates an aggregator. A nil logger falls back to the default logger.
func New(cal *calendar.Calendar, logger *internal.Logger) *Aggregator {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	return &Aggregator{cal: cal, logger: logger.With("aggregate")}
}

// Calendar returns the calendar periods are computed with.
func (a *Aggregator) Calendar() *calendar.Calendar {
	return a.cal
}

type cell struct {
	count       int
	duration    float64
	bizCases    int
	observedBiz int
	lastBizDay  time.Time
}

// Aggregate returns one row per (period, key) from the period containing the
// coverage start to the period containing the coverage end. Every key seen in
// the table appears in every period, zero-filled, so periods are contiguous
// and never overlap. Rows are ordered by period then key.
func (a *Aggregator) Aggregate(table *caseload.CanonicalTable, g caseload.Granularity, grouping caseload.GroupBy) ([]caseload.PeriodAggregate, error) {
	return a.AggregateWithOptions(table, g, grouping, Options{})
}

// AggregateWithOptions is Aggregate with explicit options.
func (a *Aggregator) AggregateWithOptions(table *caseload.CanonicalTable, g caseload.Granularity, grouping caseload.GroupBy, opts Options) ([]caseload.PeriodAggregate, error) {
	if !g.Valid() {
		return nil, core.NewGranularityError(string(g))
	}
	keysOf, err := keyFunc(grouping)
	if err != nil {
		return nil, err
	}
	if table == nil || table.Coverage().IsZero() {
		return []caseload.PeriodAggregate{}, nil
	}

	coverage := table.Coverage()
	first := a.cal.PeriodStart(coverage.Start, g)
	nPeriods := a.cal.PeriodsBetween(first, coverage.End, g) + 1

	keys := groupingKeys(table, grouping)
	keyIdx := make(map[string]int, len(keys))
	for i, k := range keys {
		keyIdx[k] = i
	}

	cells := make([][]cell, nPeriods)
	for i := range cells {
		cells[i] = make([]cell, len(keys))
	}

	table.Each(func(row caseload.CanonicalRow) {
		p := a.cal.PeriodsBetween(first, row.Date, g)
		for _, k := range keysOf(row) {
			c := &cells[p][keyIdx[k]]
			c.count++
			c.duration += row.Duration
			if row.IsBusinessDay {
				c.bizCases++
				if !c.lastBizDay.Equal(row.Date) {
					c.observedBiz++
					c.lastBizDay = row.Date
				}
			}
		}
	})

	out := make([]caseload.PeriodAggregate, 0, nPeriods*len(keys))
	start := first
	for p := 0; p < nPeriods; p++ {
		next := a.cal.NextPeriodStart(start, g)
		end := core.AddDays(next, -1)
		span := caseload.DateRange{Start: start, End: end}
		complete := coverage.Covers(span)
		if complete || !opts.CompleteOnly {
			bizDays := a.cal.BusinessDaysBetween(start, end)
			label := a.cal.Label(start, g)
			for i, k := range keys {
				c := cells[p][i]
				out = append(out, caseload.PeriodAggregate{
					PeriodStart:          start,
					PeriodEnd:            end,
					Granularity:          g,
					Label:                label,
					GroupingKey:          k,
					CaseCount:            c.count,
					TotalDuration:        c.duration,
					BusinessDayCount:     bizDays,
					BusinessDayCases:     c.bizCases,
					ObservedBusinessDays: c.observedBiz,
					IsComplete:           complete,
				})
			}
		}
		start = next
	}

	a.logger.Debug("%s/%s rollup: %d periods x %d keys over %s", g, grouping, nPeriods, len(keys), coverage)
	return out, nil
}

func keyFunc(grouping caseload.GroupBy) (func(caseload.CanonicalRow) []string, error) {
	switch grouping {
	case caseload.GroupAll, "":
		return func(caseload.CanonicalRow) []string { return []string{caseload.AllKey} }, nil
	case caseload.GroupDepartment:
		return func(r caseload.CanonicalRow) []string { return []string{r.Department} }, nil
	case caseload.GroupSurgeon:
		// each named surgeon on a shared case gets credit for it
		return func(r caseload.CanonicalRow) []string { return caseload.SplitSurgeons(r.Surgeon) }, nil
	}
	return nil, core.NewValidationError("grouping", "unknown grouping "+string(grouping))
}

func groupingKeys(table *caseload.CanonicalTable, grouping caseload.GroupBy) []string {
	switch grouping {
	case caseload.GroupDepartment:
		return table.Departments()
	case caseload.GroupSurgeon:
		return table.Surgeons()
	default:
		return []string{caseload.AllKey}
	}
}

// Keys returns the distinct grouping keys of aggs in lexical order.
func Keys(aggs []caseload.PeriodAggregate) []string {
	seen := make(map[string]struct{})
	for _, a := range aggs {
		seen[a.GroupingKey] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// CompleteOnly keeps the complete periods of aggs.
func CompleteOnly(aggs []caseload.PeriodAggregate) []caseload.PeriodAggregate {
	out := make([]caseload.PeriodAggregate, 0, len(aggs))
	for _, a := range aggs {
		if a.IsComplete {
			out = append(out, a)
		}
	}
	return out
}

// InWindow keeps aggregates whose whole span lies inside w.
func InWindow(aggs []caseload.PeriodAggregate, w caseload.DateRange) []caseload.PeriodAggregate {
	out := make([]caseload.PeriodAggregate, 0, len(aggs))
	for _, a := range aggs {
		if w.Covers(a.Span()) {
			out = append(out, a)
		}
	}
	return out
}
