// Package rank orders grouping keys by a summed metric using standard
// competition ranking (1, 1, 3).
package rank

import (
	"sort"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal/aggregate"
)

// Rank sums metric per grouping key over the supplied periods and returns the
// keys in descending order. Equal values share a rank and the next distinct
// value skips by the size of the tie group. Keys inside a tie are listed in
// lexical order. topN <= 0 returns every key; otherwise the result is cut after
// position topN but keeps every entry tied with it.
func Rank(aggs []caseload.PeriodAggregate, metric caseload.Metric, topN int) ([]caseload.RankingEntry, error) {
	if len(aggs) == 0 {
		return nil, core.ErrEmptyInput
	}
	if metric != caseload.MetricCaseCount && metric != caseload.MetricTotalDuration {
		return nil, core.NewValidationError("metric", "cannot rank by "+string(metric))
	}

	totals := make(map[string]float64)
	period := aggs[0].Span()
	for _, a := range aggs {
		totals[a.GroupingKey] += a.Value(metric)
		period.Start = core.MinDate(period.Start, a.PeriodStart)
		period.End = core.MaxDate(period.End, a.PeriodEnd)
	}

	entries := make([]caseload.RankingEntry, 0, len(totals))
	for key, value := range totals {
		entries = append(entries, caseload.RankingEntry{
			GroupingKey: key,
			MetricValue: value,
			Metric:      metric,
			Period:      period,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].MetricValue != entries[j].MetricValue {
			return entries[i].MetricValue > entries[j].MetricValue
		}
		return entries[i].GroupingKey < entries[j].GroupingKey
	})

	for i := range entries {
		if i > 0 && entries[i].MetricValue == entries[i-1].MetricValue {
			entries[i].Rank = entries[i-1].Rank
		} else {
			entries[i].Rank = i + 1
		}
	}

	return truncate(entries, topN), nil
}

func truncate(entries []caseload.RankingEntry, topN int) []caseload.RankingEntry {
	if topN <= 0 || len(entries) <= topN {
		return entries
	}
	cut := topN
	for cut < len(entries) && entries[cut].MetricValue == entries[topN-1].MetricValue {
		cut++
	}
	return entries[:cut]
}

// WindowOptions selects the periods a windowed ranking covers.
type WindowOptions struct {
	Metric       caseload.Metric
	TopN         int
	CompleteOnly bool
}

// RankWindow ranks the aggregates whose span lies inside window. A zero
// window keeps every period.
func RankWindow(aggs []caseload.PeriodAggregate, window caseload.DateRange, opts WindowOptions) ([]caseload.RankingEntry, error) {
	selected := aggs
	if !window.IsZero() {
		selected = aggregate.InWindow(selected, window)
	}
	if opts.CompleteOnly {
		selected = aggregate.CompleteOnly(selected)
	}
	if opts.Metric == "" {
		opts.Metric = caseload.MetricCaseCount
	}
	return Rank(selected, opts.Metric, opts.TopN)
}
