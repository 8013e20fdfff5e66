package forecast

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal"
	"caseflow/internal/aggregate"
	"caseflow/internal/calendar"
	"caseflow/internal/preprocess"
	"caseflow/internal/testkit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModel predicts a constant and can be told to fail or to block until cancelled.
type stubModel struct {
	name  string
	value float64
	err   error
	block bool
}

func (s stubModel) Name() string       { return s.name }
func (s stubModel) MinHistory(int) int { return 2 }

func (s stubModel) Fit(ctx context.Context, y []float64, season int) (Fitted, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return &fitted{
		predict: func(h int) []float64 {
			out := make([]float64, h)
			for i := range out {
				out[i] = s.value
			}
			return out
		},
		residuals: []float64{1, -1, 1, -1},
	}, nil
}

func newForecaster() *Forecaster {
	return New(calendar.MustDefault(), DefaultOptions(), internal.Discard())
}

func dailySeries(values ...float64) caseload.Series {
	starts := make([]time.Time, len(values))
	for i := range starts {
		starts[i] = core.MakeDate(2024, time.January, 8+i)
	}
	return caseload.Series{Key: caseload.AllKey, Granularity: caseload.GranularityDay, PeriodStarts: starts, Values: values}
}

func assertBounds(t *testing.T, r *caseload.ForecastResult, horizon int) {
	t.Helper()
	require.Len(t, r.PointForecast, horizon)
	require.Len(t, r.LowerBound, horizon)
	require.Len(t, r.UpperBound, horizon)
	for i := range r.PointForecast {
		assert.False(t, math.IsNaN(r.PointForecast[i]) || math.IsInf(r.PointForecast[i], 0))
		assert.LessOrEqual(t, r.LowerBound[i], r.PointForecast[i], "lower > point at %d", i)
		assert.LessOrEqual(t, r.PointForecast[i], r.UpperBound[i], "point > upper at %d", i)
	}
}

func TestShortBusinessDaySeries(t *testing.T) {
	series := dailySeries(10, 12, 11, 13, 12, 14, 13)

	result, err := newForecaster().Forecast(context.Background(), series, 1, nil)
	require.NoError(t, err)
	assertBounds(t, result, 1)

	assert.NotEmpty(t, result.ModelName)
	assert.Equal(t, caseload.ErrorMAE, result.Metric)
	assert.Equal(t, []caseload.ForecastState{
		caseload.StateFitCandidates, caseload.StateValidate, caseload.StateSelect,
		caseload.StateProduceForecast, caseload.StateDone,
	}, result.States)
	assert.Equal(t, []time.Time{core.MakeDate(2024, time.January, 15)}, result.PeriodStarts)
	assert.Equal(t, caseload.NewDateRange(core.MakeDate(2024, time.January, 8), core.MakeDate(2024, time.January, 14)), result.FitWindow)

	require.Len(t, result.Candidates, 4)
	selected := 0
	for _, c := range result.Candidates {
		if c.Status == caseload.CandidateSelected {
			selected++
			assert.Equal(t, result.ModelName, c.ModelName)
		}
	}
	assert.Equal(t, 1, selected)
	assert.Equal(t, caseload.CandidateUnavailable, result.Candidates[2].Status, "trend+season needs more history than six training points")
}

func TestWeeklyForecastFromGeneratedCases(t *testing.T) {
	config := testkit.DefaultCaseConfig()
	config.EndDate = core.MakeDate(2024, time.December, 29)
	raw := testkit.NewCaseGenerator(config, nil).GenerateRecords()

	cal := calendar.MustDefault()
	table, _, err := preprocess.New(cal, preprocess.DefaultOptions(), internal.Discard()).Preprocess(raw)
	require.NoError(t, err)
	aggs, err := aggregate.New(cal, internal.Discard()).AggregateWithOptions(table, caseload.GranularityWeek, caseload.GroupAll, aggregate.Options{CompleteOnly: true})
	require.NoError(t, err)
	series := aggregate.Series(aggs, caseload.AllKey, aggregate.CaseCount)

	opts := DefaultOptions()
	opts.Folds = 3
	opts.Metric = caseload.ErrorRMSE
	result, err := New(cal, opts, internal.Discard()).Forecast(context.Background(), series, 8, nil)
	require.NoError(t, err)
	assertBounds(t, result, 8)
	for _, c := range result.Candidates {
		assert.NotEqual(t, caseload.CandidateUnavailable, c.Status, "%s: %s", c.ModelName, c.Reason)
	}
	for i, lo := range result.LowerBound {
		assert.GreaterOrEqual(t, lo, 0.0)
		if i > 0 {
			assert.Equal(t, 7, core.DaysBetween(result.PeriodStarts[i-1], result.PeriodStarts[i]))
		}
	}
}

func TestInsufficientHistory(t *testing.T) {
	_, err := newForecaster().Forecast(context.Background(), dailySeries(10, 12, 11, 13, 12), 1, nil)
	assert.ErrorIs(t, err, core.ErrInsufficientHistory)
	assert.True(t, core.IsNoForecastError(err))
}

func TestAllModelsFailed(t *testing.T) {
	candidates := []Model{
		stubModel{name: "a", err: errors.New("singular")},
		stubModel{name: "b", err: errors.New("diverged")},
	}
	result, err := newForecaster().Forecast(context.Background(), dailySeries(10, 12, 11, 13, 12, 14, 13), 1, candidates)
	assert.ErrorIs(t, err, core.ErrAllModelsFailed)
	assert.True(t, core.IsNoForecastError(err))
	assert.Nil(t, result)
}

func TestSelectionPrefersLowestScoreThenPriority(t *testing.T) {
	series := dailySeries(10, 10, 10, 10, 10, 10, 10)
	f := newForecaster()

	result, err := f.Forecast(context.Background(), series, 2, []Model{stubModel{name: "far", value: 40}, stubModel{name: "exact", value: 10}})
	require.NoError(t, err)
	assert.Equal(t, "exact", result.ModelName)
	assert.Zero(t, result.ValidationScore)

	result, err = f.Forecast(context.Background(), series, 2, []Model{stubModel{name: "first", value: 12}, stubModel{name: "second", value: 12}})
	require.NoError(t, err)
	assert.Equal(t, "first", result.ModelName)

	result, err = f.Forecast(context.Background(), series, 2, []Model{stubModel{name: "second", value: 12}, stubModel{name: "first", value: 12}})
	require.NoError(t, err)
	assert.Equal(t, "second", result.ModelName)
}

func TestForecastsAreClippedAtZero(t *testing.T) {
	result, err := newForecaster().Forecast(context.Background(), dailySeries(1, 0, 1, 0, 1, 0, 1), 3, []Model{stubModel{name: "negative", value: -5}})
	require.NoError(t, err)
	assertBounds(t, result, 3)
	assert.Equal(t, []float64{0, 0, 0}, result.PointForecast)
	assert.Equal(t, []float64{0, 0, 0}, result.LowerBound)
}

func TestIntervalsWidenWithHorizon(t *testing.T) {
	result, err := newForecaster().Forecast(context.Background(), dailySeries(50, 52, 51, 53, 52, 54, 53), 4, []Model{stubModel{name: "flat", value: 52}})
	require.NoError(t, err)
	width := func(i int) float64 { return result.UpperBound[i] - result.LowerBound[i] }
	for i := 1; i < 4; i++ {
		assert.Greater(t, width(i), width(i-1))
	}
	// z(0.975) times the sample deviation of the stub residuals
	assert.InDelta(t, 1.959964*math.Sqrt(4.0/3.0), result.UpperBound[0]-52, 1e-4)
}

func TestCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	result, err := newForecaster().Forecast(ctx, dailySeries(10, 12, 11, 13, 12, 14, 13), 1, []Model{stubModel{name: "slow", block: true}, SeasonalNaive()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)

	// a fresh request is unaffected
	result, err = newForecaster().Forecast(context.Background(), dailySeries(10, 12, 11, 13, 12, 14, 13), 1, nil)
	require.NoError(t, err)
	assertBounds(t, result, 1)
}

func TestForecastValidatesInput(t *testing.T) {
	_, err := newForecaster().Forecast(context.Background(), dailySeries(1, 2, 3, 4, 5, 6, 7), 0, nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = newForecaster().Forecast(context.Background(), dailySeries(1, 2, 3, math.NaN(), 5, 6, 7), 1, nil)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = newForecaster().Forecast(context.Background(), dailySeries(1, 2, 3, 4, 5, 6, 7), 1, []Model{})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestRollingOriginsNeverLeak(t *testing.T) {
	origins := rollingOrigins(20, 3, 3)
	require.Len(t, origins, 3)
	assert.Equal(t, fold{trainEnd: 11, testEnd: 14}, origins[0])
	assert.Equal(t, fold{trainEnd: 17, testEnd: 20}, origins[2])
	for i, o := range origins {
		assert.Greater(t, o.testEnd, o.trainEnd)
		if i > 0 {
			assert.Equal(t, origins[i-1].testEnd, o.trainEnd)
		}
	}

	assert.Equal(t, 1, autoHoldout(7, 5))
	assert.Equal(t, 4, autoHoldout(52, 4))
	assert.Equal(t, 3, autoHoldout(15, 12))
}
