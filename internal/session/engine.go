package session

import (
	"context"
	"fmt"
	"slices"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal"
	"caseflow/internal/aggregate"
	"caseflow/internal/calendar"
	"caseflow/internal/forecast"
	"caseflow/internal/performance"
	"caseflow/internal/preprocess"
	"caseflow/internal/rank"

	"golang.org/x/sync/errgroup"
)

// Engine runs the pipelines over sessions. It holds no session state of its
// own and is safe for concurrent use.
type Engine struct {
	cal    *calendar.Calendar
	pre    *preprocess.Preprocessor
	agg    *aggregate.Aggregator
	fc     *forecast.Forecaster
	perf   *performance.Analyzer
	models []forecast.Model
	logger *internal.Logger
}

// NewEngine wires the pipeline stages around one calendar. A nil models
// slice uses the default candidate set.
func NewEngine(cal *calendar.Calendar, pre *preprocess.Preprocessor, fc *forecast.Forecaster, models []forecast.Model, logger *internal.Logger) *Engine {
	if logger == nil {
		logger = internal.DefaultLogger
	}
	agg := aggregate.New(cal, logger)
	return &Engine{
		cal:    cal,
		pre:    pre,
		agg:    agg,
		fc:     fc,
		perf:   performance.New(agg, logger),
		models: models,
		logger: logger.With("session"),
	}
}

// Calendar returns the engine's calendar.
func (e *Engine) Calendar() *calendar.Calendar { return e.cal }

// Open preprocesses raw records into a new session. Row defects land in the
// session's reject report; only a dataset with no usable rows fails.
func (e *Engine) Open(source string, raw []caseload.RawRecord, params Params) (*Session, error) {
	params, err := params.normalize()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	table, report, err := e.pre.Preprocess(raw)
	if err != nil {
		return nil, err
	}
	s := newSession(source, table, report, params)
	e.logger.Info("session %s opened from %s: %d cases, %d rejected, coverage %s (%s)",
		s.ID, source, table.Len(), report.Count, table.Coverage(), time.Since(start).Round(time.Millisecond))
	return s, nil
}

// Window resolves the session's analysis window against its coverage. An
// explicit window wins over a preset.
func (e *Engine) Window(s *Session) (caseload.DateRange, error) {
	coverage := s.table.Coverage()
	p := s.params
	if !p.Window.IsZero() {
		return p.Window, nil
	}
	if p.Preset != "" {
		return e.cal.ResolvePreset(coverage, p.Preset)
	}
	return coverage, nil
}

// Aggregates rolls the windowed table up by the session's granularity and grouping.
func (e *Engine) Aggregates(s *Session) ([]caseload.PeriodAggregate, error) {
	window, err := e.Window(s)
	if err != nil {
		return nil, err
	}
	p := s.params
	return e.agg.AggregateWithOptions(s.table.Window(window), p.Granularity, p.GroupBy, aggregate.Options{CompleteOnly: p.CompleteOnly})
}

// Ranking ranks the session's grouping keys over its window.
func (e *Engine) Ranking(s *Session) ([]caseload.RankingEntry, error) {
	aggs, err := e.Aggregates(s)
	if err != nil {
		return nil, err
	}
	return rank.Rank(aggs, s.params.Metric, s.params.TopN)
}

// ForecastSeries is the complete-period case count series of the session's
// forecast key over its window.
func (e *Engine) ForecastSeries(s *Session) (caseload.Series, error) {
	window, err := e.Window(s)
	if err != nil {
		return caseload.Series{}, err
	}
	key := s.params.ForecastKey
	grouping := caseload.GroupDepartment
	if key == "" || key == caseload.AllKey {
		key, grouping = caseload.AllKey, caseload.GroupAll
	} else if !slices.Contains(s.table.Departments(), key) {
		return caseload.Series{}, core.NewValidationError("forecast_key", "no department named "+key)
	}
	aggs, err := e.agg.AggregateWithOptions(s.table.Window(window), s.params.Granularity, grouping, aggregate.Options{CompleteOnly: true})
	if err != nil {
		return caseload.Series{}, err
	}
	series := aggregate.Series(aggs, key, aggregate.CaseCount)
	if series.Len() == 0 {
		return caseload.Series{}, fmt.Errorf("no complete %s in %s for %s: %w", s.params.Granularity, window, key,
			core.NewInsufficientHistoryError(0, 1))
	}
	return series, nil
}

// Forecast forecasts the session's series Horizon periods ahead.
func (e *Engine) Forecast(ctx context.Context, s *Session) (*caseload.ForecastResult, error) {
	series, err := e.ForecastSeries(s)
	if err != nil {
		return nil, err
	}
	return e.fc.Forecast(ctx, series, s.params.Horizon, e.models)
}

// Analysis is the combined result of one Analyze call.
type Analysis struct {
	SessionID     core.SessionID             `json:"session_id"`
	Params        Params                     `json:"params"`
	Window        caseload.DateRange         `json:"window"`
	Aggregates    []caseload.PeriodAggregate `json:"aggregates"`
	Ranking       []caseload.RankingEntry    `json:"ranking"`
	Forecast      *caseload.ForecastResult   `json:"forecast,omitempty"`
	ForecastError string                     `json:"forecast_error,omitempty"`
}

// Analyze computes aggregates, then ranking and forecast in parallel. A
// series too short to forecast is reported in ForecastError rather than
// failing the analysis. Cancelling ctx abandons the forecast.
func (e *Engine) Analyze(ctx context.Context, s *Session) (*Analysis, error) {
	window, err := e.Window(s)
	if err != nil {
		return nil, err
	}
	aggs, err := e.Aggregates(s)
	if err != nil {
		return nil, err
	}
	out := &Analysis{SessionID: s.ID, Params: s.params, Window: window, Aggregates: aggs}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if len(aggs) == 0 {
			return nil
		}
		ranking, err := rank.Rank(aggs, s.params.Metric, s.params.TopN)
		if err != nil {
			return err
		}
		out.Ranking = ranking
		return nil
	})
	if s.params.Horizon > 0 {
		g.Go(func() error {
			result, err := e.Forecast(gctx, s)
			switch {
			case err == nil:
				out.Forecast = result
			case core.IsNoForecastError(err):
				out.ForecastError = err.Error()
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	e.logger.Debug("session %s analyzed: %d aggregates, %d ranked", s.ID, len(aggs), len(out.Ranking))
	return out, nil
}

// PerformanceReport is the target-tracking report of a session.
type PerformanceReport struct {
	SessionID   core.SessionID                      `json:"session_id"`
	KPI         performance.KPISummary              `json:"kpi"`
	Departments []performance.DepartmentPerformance `json:"departments,omitempty"`
	Achievement []performance.Achievement           `json:"achievement,omitempty"`
	Cumulative  []performance.CumulativeWeek        `json:"cumulative,omitempty"`
}

// Performance reports KPIs for the last four complete weeks of the session
// window. When targets are loaded it adds department performance,
// achievement and the fiscal-year cumulative against the hospital target.
func (e *Engine) Performance(s *Session) (*PerformanceReport, error) {
	window, err := e.Window(s)
	if err != nil {
		return nil, err
	}
	kpi, err := e.perf.KPI(s.table.Window(window))
	if err != nil {
		return nil, err
	}
	out := &PerformanceReport{SessionID: s.ID, KPI: kpi}
	if len(s.targets) == 0 {
		return out, nil
	}

	if out.Departments, err = e.perf.DepartmentPerformance(s.table, s.targets); err != nil {
		return nil, err
	}
	if out.Achievement, err = e.perf.AchievementRates(s.table, s.targets); err != nil {
		return nil, err
	}
	if out.Cumulative, err = e.perf.Cumulative(s.table, s.targets.Hospital()); err != nil {
		return nil, err
	}
	return out, nil
}
