package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal"
	"caseflow/internal/calendar"

	"github.com/montanaflynn/stats"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"
)

// Options configures validation and intervals.
type Options struct {
	Metric     caseload.ErrorMetric
	Confidence float64
	// Holdout is the number of test points per fold; 0 picks a fifth of the
	// series capped at one season.
	Holdout int
	// Folds is the number of rolling origins; 1 is a simple holdout split.
	Folds         int
	SeasonLengths map[caseload.Granularity]int
	// AllowNegative disables clipping forecasts and bounds at zero.
	AllowNegative bool
}

// DefaultSeasonLengths: a working week of days, four weeks, twelve months,
// four quarters.
func DefaultSeasonLengths() map[caseload.Granularity]int {
	return map[caseload.Granularity]int{
		caseload.GranularityDay:     5,
		caseload.GranularityWeek:    4,
		caseload.GranularityMonth:   12,
		caseload.GranularityQuarter: 4,
	}
}

// DefaultOptions scores by MAE on a single holdout with 95% intervals.
func DefaultOptions() Options {
	return Options{
		Metric:        caseload.ErrorMAE,
		Confidence:    0.95,
		Folds:         1,
		SeasonLengths: DefaultSeasonLengths(),
	}
}

// SeasonLength returns the season used for series of granularity g; unknown
// granularities are treated as non-seasonal.
func (o Options) SeasonLength(g caseload.Granularity) int {
	if s, ok := o.SeasonLengths[g]; ok && s > 0 {
		return s
	}
	if s, ok := DefaultSeasonLengths()[g]; ok {
		return s
	}
	return 1
}

// Forecaster runs the fit, validate, select, forecast pipeline.
type Forecaster struct {
	cal    *calendar.Calendar
	opts   Options
	logger *internal.Logger
}

// New creates a forecaster. The calendar dates forecast periods; nil uses the
// default calendar.
func New(cal *calendar.Calendar, opts Options, logger *internal.Logger) *Forecaster {
	if cal == nil {
		cal = calendar.MustDefault()
	}
	if logger == nil {
		logger = internal.DefaultLogger
	}
	if opts.Metric == "" {
		opts.Metric = caseload.ErrorMAE
	}
	if opts.Confidence <= 0 || opts.Confidence >= 1 {
		opts.Confidence = 0.95
	}
	if opts.Folds < 1 {
		opts.Folds = 1
	}
	return &Forecaster{cal: cal, opts: opts, logger: logger.With("forecast")}
}

// Options returns the forecaster's settings.
func (f *Forecaster) Options() Options {
	return f.opts
}

type candidate struct {
	model   Model
	report  caseload.CandidateReport
	scores  scores
	enabled bool
}

// Forecast fits candidates (nil means DefaultModels) to series and returns the
// forecast of the best one for the next horizon periods. Candidates are
// listed in priority order, which breaks exact score ties. Fits honor ctx;
// a cancelled call returns ctx.Err() and no result.
func (f *Forecaster) Forecast(ctx context.Context, series caseload.Series, horizon int, candidates []Model) (*caseload.ForecastResult, error) {
	if horizon < 1 {
		return nil, core.NewValidationError("horizon", fmt.Sprintf("must be at least 1, got %d", horizon))
	}
	if candidates == nil {
		candidates = DefaultModels()
	}
	if len(candidates) == 0 {
		return nil, core.NewValidationError("models", "no candidate models")
	}
	y := series.Values
	if !finite(y) {
		return nil, core.NewValidationError("series", "contains NaN or infinite values")
	}

	season := f.opts.SeasonLength(series.Granularity)
	n := len(y)
	minHistory := candidates[0].MinHistory(season)
	for _, m := range candidates[1:] {
		minHistory = min(minHistory, m.MinHistory(season))
	}
	if n < minHistory+season {
		return nil, core.NewInsufficientHistoryError(n, minHistory+season)
	}

	holdout := f.opts.Holdout
	if holdout <= 0 {
		holdout = autoHoldout(n, season)
	}
	folds := f.opts.Folds
	for folds > 1 && n-folds*holdout < minHistory {
		folds--
	}
	if n-folds*holdout < minHistory {
		return nil, core.NewInsufficientHistoryError(n, minHistory+holdout)
	}

	result := &caseload.ForecastResult{
		Metric:     f.opts.Metric,
		Confidence: f.opts.Confidence,
		States:     []caseload.ForecastState{caseload.StateFitCandidates},
	}
	fail := func(err error) (*caseload.ForecastResult, error) {
		result.States = append(result.States, caseload.StateFailed)
		f.logger.Warn("forecast of %q failed after %v: %v", series.Key, result.States, err)
		return nil, err
	}

	// FIT_CANDIDATES: every candidate on every fold, candidates in parallel
	origins := rollingOrigins(n, holdout, folds)
	pool := make([]*candidate, len(candidates))
	predictions := make([][]float64, len(candidates))
	g, gctx := errgroup.WithContext(ctx)
	for i, m := range candidates {
		pool[i] = &candidate{model: m, report: caseload.CandidateReport{ModelName: m.Name()}, enabled: true}
		g.Go(func() error {
			preds, err := backtest(gctx, m, y, season, origins)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				pool[i].enabled = false
				pool[i].report.Status = caseload.CandidateUnavailable
				pool[i].report.Reason = err.Error()
				return nil
			}
			predictions[i] = preds
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// VALIDATE
	result.States = append(result.States, caseload.StateValidate)
	actual := y[origins[0].trainEnd:]
	for i, c := range pool {
		if !c.enabled {
			continue
		}
		c.scores = score(actual, predictions[i])
		c.report.Status = caseload.CandidateValidated
		c.report.MAE, c.report.RMSE, c.report.MAPE = c.scores.mae, c.scores.rmse, c.scores.mape
		c.report.Score = c.scores.get(f.opts.Metric)
	}

	// SELECT
	result.States = append(result.States, caseload.StateSelect)
	ranked := make([]*candidate, 0, len(pool))
	for _, c := range pool {
		if c.enabled {
			ranked = append(ranked, c)
		}
	}
	if len(ranked) == 0 {
		result.Candidates = reports(pool)
		return fail(fmt.Errorf("%w: %d candidates unavailable", core.ErrAllModelsFailed, len(pool)))
	}
	// stable sort keeps priority order among equal scores
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].report.Score < ranked[j].report.Score })

	// PRODUCE_FORECAST: refit the winner on the full series
	result.States = append(result.States, caseload.StateProduceForecast)
	for _, c := range ranked {
		fit, err := c.model.Fit(ctx, y, season)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			c.enabled = false
			c.report.Status = caseload.CandidateUnavailable
			c.report.Reason = "refit: " + err.Error()
			continue
		}
		point := fit.Predict(horizon)
		if len(point) != horizon || !finite(point) {
			c.enabled = false
			c.report.Status = caseload.CandidateUnavailable
			c.report.Reason = "refit produced non-finite forecast"
			continue
		}

		c.report.Status = caseload.CandidateSelected
		result.ModelName = c.model.Name()
		result.ValidationScore = c.report.Score
		result.PointForecast, result.LowerBound, result.UpperBound = f.intervals(point, fit.Residuals(), c.scores.rmse)
		result.PeriodStarts = f.futurePeriods(series, horizon)
		result.FitWindow = f.fitWindow(series)
		result.Candidates = reports(pool)
		result.States = append(result.States, caseload.StateDone)

		f.logger.Info("forecast %q: %s selected (%s %.3f) over %d points, horizon %d",
			series.Key, result.ModelName, f.opts.Metric, result.ValidationScore, n, horizon)
		return result, nil
	}

	result.Candidates = reports(pool)
	return fail(fmt.Errorf("%w: no candidate could be refit on the full series", core.ErrAllModelsFailed))
}

// backtest fits m on each origin's training data and concatenates its
// predictions for the test windows.
func backtest(ctx context.Context, m Model, y []float64, season int, origins []fold) ([]float64, error) {
	var preds []float64
	for _, o := range origins {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		train := y[:o.trainEnd]
		if len(train) < m.MinHistory(season) {
			return nil, core.NewModelFitError(m.Name(), fmt.Sprintf("need %d training points, have %d", m.MinHistory(season), len(train)))
		}
		fit, err := m.Fit(ctx, train, season)
		if err != nil {
			return nil, err
		}
		p := fit.Predict(o.testEnd - o.trainEnd)
		if !finite(p) {
			return nil, core.NewModelFitError(m.Name(), "non-finite prediction")
		}
		preds = append(preds, p...)
	}
	return preds, nil
}

// intervals widens point forecasts by z·σ·√h. σ is the residual standard
// deviation of the final fit, or the validation RMSE when the fit has too few
// residuals to estimate one.
func (f *Forecaster) intervals(point, residuals []float64, rmse float64) (p, lower, upper []float64) {
	sigma := 0.0
	if len(residuals) >= 2 {
		sigma, _ = stats.StandardDeviationSample(residuals)
	}
	if sigma == 0 || math.IsNaN(sigma) {
		sigma = rmse
	}
	z := distuv.UnitNormal.Quantile((1 + f.opts.Confidence) / 2)

	p = make([]float64, len(point))
	lower = make([]float64, len(point))
	upper = make([]float64, len(point))
	for i, v := range point {
		width := z * sigma * math.Sqrt(float64(i+1))
		lo, hi := v-width, v+width
		if !f.opts.AllowNegative {
			v = math.Max(v, 0)
			lo = math.Max(lo, 0)
			hi = math.Max(hi, v)
		}
		p[i], lower[i], upper[i] = v, lo, hi
	}
	return p, lower, upper
}

func (f *Forecaster) futurePeriods(series caseload.Series, horizon int) []time.Time {
	if len(series.PeriodStarts) == 0 || !series.Granularity.Valid() {
		return nil
	}
	out := make([]time.Time, horizon)
	next := series.PeriodStarts[len(series.PeriodStarts)-1]
	for i := range out {
		next = f.cal.NextPeriodStart(next, series.Granularity)
		out[i] = next
	}
	return out
}

func (f *Forecaster) fitWindow(series caseload.Series) caseload.DateRange {
	w := series.Window()
	if w.IsZero() || !series.Granularity.Valid() {
		return w
	}
	w.End = core.AddDays(f.cal.NextPeriodStart(w.End, series.Granularity), -1)
	return w
}

func reports(pool []*candidate) []caseload.CandidateReport {
	out := make([]caseload.CandidateReport, len(pool))
	for i, c := range pool {
		out[i] = c.report
	}
	return out
}
