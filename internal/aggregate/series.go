package aggregate

import (
	"caseflow/domain/caseload"
)

// ValueFunc reads one number out of an aggregate.
type ValueFunc func(caseload.PeriodAggregate) float64

// Value functions for Series.
var (
	CaseCount      ValueFunc = func(a caseload.PeriodAggregate) float64 { return float64(a.CaseCount) }
	TotalDuration  ValueFunc = func(a caseload.PeriodAggregate) float64 { return a.TotalDuration }
	PerBusinessDay ValueFunc = caseload.PeriodAggregate.PerBusinessDay
)

// ValueFor maps a ranking metric onto its value function.
func ValueFor(m caseload.Metric) ValueFunc {
	if m == caseload.MetricTotalDuration {
		return TotalDuration
	}
	return CaseCount
}

// Series extracts the ordered (period_start, value) sequence of one key.
func Series(aggs []caseload.PeriodAggregate, key string, value ValueFunc) caseload.Series {
	s := caseload.Series{Key: key}
	for _, a := range aggs {
		if a.GroupingKey != key {
			continue
		}
		s.Granularity = a.Granularity
		s.PeriodStarts = append(s.PeriodStarts, a.PeriodStart)
		s.Values = append(s.Values, value(a))
	}
	return s
}

// NormalizedSeries is the business-day-normalized case count of one key, used
// to compare weeks that contain holidays.
func NormalizedSeries(aggs []caseload.PeriodAggregate, key string) caseload.Series {
	return Series(aggs, key, PerBusinessDay)
}
