package forecast

import (
	"context"
	"fmt"
	"math"

	"caseflow/domain/core"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/mat"
)

// fitted is the shared Fitted implementation: a prediction closure plus residuals.
type fitted struct {
	predict   func(h int) []float64
	residuals []float64
}

func (f *fitted) Predict(h int) []float64 { return f.predict(h) }
func (f *fitted) Residuals() []float64    { return f.residuals }

// seasonal naive

type seasonalNaive struct{}

// SeasonalNaive repeats the last observed season. With a season of one it is
// the plain naive forecast.
func SeasonalNaive() Model { return seasonalNaive{} }

func (seasonalNaive) Name() string { return NameSeasonalNaive }

func (seasonalNaive) MinHistory(season int) int {
	return max(season, 2)
}

func (m seasonalNaive) Fit(ctx context.Context, y []float64, season int) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	season = max(season, 1)
	if len(y) < m.MinHistory(season) {
		return nil, core.NewModelFitError(m.Name(), fmt.Sprintf("need %d points, have %d", m.MinHistory(season), len(y)))
	}

	var residuals []float64
	for t := season; t < len(y); t++ {
		residuals = append(residuals, y[t]-y[t-season])
	}
	last := append([]float64(nil), y[len(y)-season:]...)
	return &fitted{
		predict: func(h int) []float64 {
			out := make([]float64, h)
			for i := range out {
				out[i] = last[i%season]
			}
			return out
		},
		residuals: residuals,
	}, nil
}

// exponential smoothing

var (
	smoothingGrid = []float64{0.1, 0.3, 0.5, 0.7, 0.9}
	trendGrid     = []float64{0.05, 0.1, 0.3, 0.5}
	seasonalGrid  = []float64{0.1, 0.3, 0.5}
)

type exponentialSmoothing struct{}

// ExponentialSmoothing is Holt's linear method, or additive Holt-Winters when
// the series holds two full seasons. Smoothing parameters are grid searched
// on in-sample one-step squared error.
func ExponentialSmoothing() Model { return exponentialSmoothing{} }

func (exponentialSmoothing) Name() string { return NameExponentialSmoothing }

func (exponentialSmoothing) MinHistory(int) int { return 3 }

type smoothingRun struct {
	level, trend float64
	seasonals    []float64
	residuals    []float64
	sse          float64
}

func (m exponentialSmoothing) Fit(ctx context.Context, y []float64, season int) (Fitted, error) {
	if len(y) < m.MinHistory(season) {
		return nil, core.NewModelFitError(m.Name(), fmt.Sprintf("need %d points, have %d", m.MinHistory(season), len(y)))
	}

	seasonal := season >= 2 && len(y) >= 2*season
	gammas := []float64{0}
	if seasonal {
		gammas = seasonalGrid
	}

	var best *smoothingRun
	for _, alpha := range smoothingGrid {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, beta := range trendGrid {
			for _, gamma := range gammas {
				var run smoothingRun
				if seasonal {
					run = holtWinters(y, season, alpha, beta, gamma)
				} else {
					run = holt(y, alpha, beta)
				}
				if best == nil || run.sse < best.sse {
					r := run
					best = &r
				}
			}
		}
	}
	if best == nil || math.IsNaN(best.sse) || math.IsInf(best.sse, 0) {
		return nil, core.NewModelFitError(m.Name(), "smoothing diverged")
	}

	run, n := *best, len(y)
	return &fitted{
		predict: func(h int) []float64 {
			out := make([]float64, h)
			for i := range out {
				out[i] = run.level + float64(i+1)*run.trend
				if run.seasonals != nil {
					out[i] += run.seasonals[n-season+i%season]
				}
			}
			return out
		},
		residuals: run.residuals,
	}, nil
}

func holt(y []float64, alpha, beta float64) smoothingRun {
	level, trend := y[0], y[1]-y[0]
	run := smoothingRun{}
	for t := 1; t < len(y); t++ {
		e := y[t] - (level + trend)
		run.residuals = append(run.residuals, e)
		run.sse += e * e
		prev := level
		level = alpha*y[t] + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
	}
	run.level, run.trend = level, trend
	return run
}

func holtWinters(y []float64, season int, alpha, beta, gamma float64) smoothingRun {
	first, _ := stats.Mean(y[:season])
	second, _ := stats.Mean(y[season : 2*season])
	level, trend := first, (second-first)/float64(season)

	seasonals := make([]float64, len(y))
	for i := 0; i < season; i++ {
		seasonals[i] = y[i] - first
	}

	run := smoothingRun{}
	for t := season; t < len(y); t++ {
		s := seasonals[t-season]
		e := y[t] - (level + trend + s)
		run.residuals = append(run.residuals, e)
		run.sse += e * e
		prev := level
		level = alpha*(y[t]-s) + (1-alpha)*(level+trend)
		trend = beta*(level-prev) + (1-beta)*trend
		seasonals[t] = gamma*(y[t]-level) + (1-gamma)*s
	}
	run.level, run.trend, run.seasonals = level, trend, seasonals
	return run
}

// linear trend with seasonal dummies

type linearTrendSeasonal struct{}

// LinearTrendSeasonal regresses the series on time and one dummy per season
// phase (phase 0 is the baseline) by least squares.
func LinearTrendSeasonal() Model { return linearTrendSeasonal{} }

func (linearTrendSeasonal) Name() string { return NameLinearTrendSeasonal }

func (linearTrendSeasonal) MinHistory(season int) int {
	if season < 2 {
		return 3
	}
	return season + 2
}

func (m linearTrendSeasonal) Fit(ctx context.Context, y []float64, season int) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if season < 2 {
		season = 1
	}
	n := len(y)
	if n < m.MinHistory(season) {
		return nil, core.NewModelFitError(m.Name(), fmt.Sprintf("need %d points, have %d", m.MinHistory(season), n))
	}

	p := season + 1
	design := func(t int) []float64 {
		row := make([]float64, p)
		row[0], row[1] = 1, float64(t)
		if phase := t % season; phase > 0 {
			row[1+phase] = 1
		}
		return row
	}

	X := mat.NewDense(n, p, nil)
	for t := 0; t < n; t++ {
		X.SetRow(t, design(t))
	}
	var beta mat.VecDense
	if err := beta.SolveVec(X, mat.NewVecDense(n, append([]float64(nil), y...))); err != nil {
		return nil, core.NewModelFitError(m.Name(), err.Error())
	}

	at := func(t int) float64 {
		return mat.Dot(mat.NewVecDense(p, design(t)), &beta)
	}
	residuals := make([]float64, n)
	for t := range y {
		residuals[t] = y[t] - at(t)
	}
	return &fitted{
		predict: func(h int) []float64 {
			out := make([]float64, h)
			for i := range out {
				out[i] = at(n + i)
			}
			return out
		},
		residuals: residuals,
	}, nil
}

// moving average

type movingAverage struct {
	window int
}

// MovingAverage forecasts the mean of the trailing window.
func MovingAverage(window int) Model {
	if window <= 0 {
		window = DefaultMovingAverageWindow
	}
	return movingAverage{window: window}
}

func (movingAverage) Name() string { return NameMovingAverage }

func (movingAverage) MinHistory(int) int { return 2 }

func (m movingAverage) Fit(ctx context.Context, y []float64, season int) (Fitted, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(y) < m.MinHistory(season) {
		return nil, core.NewModelFitError(m.Name(), fmt.Sprintf("need %d points, have %d", m.MinHistory(season), len(y)))
	}

	trailing := func(end int) float64 {
		mean, _ := stats.Mean(y[max(0, end-m.window):end])
		return mean
	}
	residuals := make([]float64, 0, len(y)-1)
	for t := 1; t < len(y); t++ {
		residuals = append(residuals, y[t]-trailing(t))
	}
	level := trailing(len(y))
	return &fitted{
		predict: func(h int) []float64 {
			out := make([]float64, h)
			for i := range out {
				out[i] = level
			}
			return out
		},
		residuals: residuals,
	}, nil
}
