package rank

import (
	"testing"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func agg(key string, count int, start time.Time, complete bool) caseload.PeriodAggregate {
	return caseload.PeriodAggregate{
		PeriodStart:   start,
		PeriodEnd:     core.AddDays(start, 6),
		Granularity:   caseload.GranularityWeek,
		GroupingKey:   key,
		CaseCount:     count,
		TotalDuration: float64(count) * 30,
		IsComplete:    complete,
	}
}

var week1 = core.MakeDate(2024, time.January, 8)

func ranks(entries []caseload.RankingEntry) []int {
	out := make([]int, len(entries))
	for i, e := range entries {
		out[i] = e.Rank
	}
	return out
}

func keys(entries []caseload.RankingEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.GroupingKey
	}
	return out
}

func TestCompetitionRanking(t *testing.T) {
	aggs := []caseload.PeriodAggregate{
		agg("C", 5, week1, true),
		agg("B", 10, week1, true),
		agg("A", 10, week1, true),
	}

	entries, err := Rank(aggs, caseload.MetricCaseCount, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 3}, ranks(entries))
	assert.Equal(t, []string{"A", "B", "C"}, keys(entries))
	assert.Equal(t, caseload.NewDateRange(week1, core.AddDays(week1, 6)), entries[0].Period)
}

func TestTieGroupSizeLaw(t *testing.T) {
	aggs := []caseload.PeriodAggregate{
		agg("A", 9, week1, true),
		agg("B", 7, week1, true),
		agg("C", 7, week1, true),
		agg("D", 7, week1, true),
		agg("E", 2, week1, true),
		agg("F", 2, week1, true),
		agg("G", 1, week1, true),
	}
	entries, err := Rank(aggs, caseload.MetricCaseCount, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 2, 2, 5, 5, 7}, ranks(entries))
}

func TestRankingSumsAcrossPeriods(t *testing.T) {
	week2 := core.AddDays(week1, 7)
	aggs := []caseload.PeriodAggregate{
		agg("A", 3, week1, true),
		agg("B", 4, week1, true),
		agg("A", 3, week2, true),
		agg("B", 1, week2, true),
	}
	entries, err := Rank(aggs, caseload.MetricTotalDuration, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, keys(entries))
	assert.Equal(t, 180.0, entries[0].MetricValue)
	assert.Equal(t, caseload.MetricTotalDuration, entries[0].Metric)
	assert.Equal(t, core.AddDays(week2, 6), entries[0].Period.End)
}

func TestTopNKeepsTies(t *testing.T) {
	aggs := []caseload.PeriodAggregate{
		agg("A", 10, week1, true),
		agg("B", 8, week1, true),
		agg("C", 8, week1, true),
		agg("D", 1, week1, true),
	}

	entries, err := Rank(aggs, caseload.MetricCaseCount, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, keys(entries))

	entries, err = Rank(aggs, caseload.MetricCaseCount, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, keys(entries))

	entries, err = Rank(aggs, caseload.MetricCaseCount, 10)
	require.NoError(t, err)
	assert.Len(t, entries, 4)
}

func TestRankingIsIdempotent(t *testing.T) {
	aggs := []caseload.PeriodAggregate{
		agg("Orthopedics", 4, week1, true),
		agg("Cardiology", 4, week1, true),
		agg("Urology", 6, week1, true),
	}
	first, err := Rank(aggs, caseload.MetricCaseCount, 0)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Rank(aggs, caseload.MetricCaseCount, 0)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestRankErrors(t *testing.T) {
	_, err := Rank(nil, caseload.MetricCaseCount, 0)
	assert.ErrorIs(t, err, core.ErrEmptyInput)

	_, err = Rank([]caseload.PeriodAggregate{agg("A", 1, week1, true)}, "revenue", 0)
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRankWindow(t *testing.T) {
	week2 := core.AddDays(week1, 7)
	aggs := []caseload.PeriodAggregate{
		agg("A", 10, week1, true),
		agg("B", 1, week1, true),
		agg("A", 0, week2, false),
		agg("B", 5, week2, false),
	}

	entries, err := RankWindow(aggs, caseload.NewDateRange(week2, core.AddDays(week2, 6)), WindowOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, keys(entries))

	entries, err = RankWindow(aggs, caseload.DateRange{}, WindowOptions{CompleteOnly: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, keys(entries))
	assert.Equal(t, 10.0, entries[0].MetricValue)

	_, err = RankWindow(aggs, caseload.NewDateRange(week2, core.AddDays(week2, 6)), WindowOptions{CompleteOnly: true})
	assert.ErrorIs(t, err, core.ErrEmptyInput)
}
