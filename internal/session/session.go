// Package session holds the immutable analysis context of one uploaded
// dataset and runs the aggregation, ranking, forecasting and performance
// pipelines against it.
package session

import (
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"caseflow/domain/caseload"
	"caseflow/domain/core"
	"caseflow/internal/calendar"
	"caseflow/internal/errors"
	"caseflow/internal/preprocess"
)

// Params selects what an analysis computes. The zero window means the whole
// dataset unless Preset names another one.
type Params struct {
	Window       caseload.DateRange   `json:"window"`
	Preset       calendar.Preset      `json:"preset,omitempty"`
	Granularity  caseload.Granularity `json:"granularity"`
	GroupBy      caseload.GroupBy     `json:"group_by"`
	Metric       caseload.Metric      `json:"metric"`
	TopN         int                  `json:"top_n"`
	CompleteOnly bool                 `json:"complete_only"`
	// Horizon is the number of periods to forecast; zero skips forecasting.
	Horizon int `json:"horizon"`
	// ForecastKey is the department to forecast, or ALL for the hospital.
	ForecastKey string `json:"forecast_key"`
}

// DefaultParams ranks departments by weekly case count over the whole
// dataset and forecasts the hospital four weeks ahead.
func DefaultParams() Params {
	return Params{
		Granularity: caseload.GranularityWeek,
		GroupBy:     caseload.GroupDepartment,
		Metric:      caseload.MetricCaseCount,
		Horizon:     4,
		ForecastKey: caseload.AllKey,
	}
}

// Validate checks the parameter combination.
func (p Params) Validate() error {
	_, err := p.normalize()
	return err
}

// normalize validates p and resolves aliases and empty names to their canonical values.
func (p Params) normalize() (Params, error) {
	g, err := caseload.ParseGranularity(string(p.Granularity))
	if err != nil {
		return p, err
	}
	grouping, err := caseload.ParseGroupBy(string(p.GroupBy))
	if err != nil {
		return p, err
	}
	metric, err := caseload.ParseMetric(string(p.Metric))
	if err != nil {
		return p, err
	}
	p.Granularity, p.GroupBy, p.Metric = g, grouping, metric

	if p.TopN < 0 {
		return p, core.NewValidationError("top_n", fmt.Sprintf("must not be negative, got %d", p.TopN))
	}
	if p.Horizon < 0 {
		return p, core.NewValidationError("horizon", fmt.Sprintf("must not be negative, got %d", p.Horizon))
	}
	if !p.Window.IsZero() && p.Window.End.Before(p.Window.Start) {
		return p, core.NewValidationError("window", fmt.Sprintf("end %s before start %s", core.FormatDate(p.Window.End), core.FormatDate(p.Window.Start)))
	}
	if p.Preset != "" {
		if p.Preset, err = calendar.ParsePreset(string(p.Preset)); err != nil {
			return p, err
		}
	}
	if p.ForecastKey == "" {
		p.ForecastKey = caseload.AllKey
	}
	return p, nil
}

// Session is the canonical table of one dataset plus the parameters of the
// current view. A Session is never mutated; With* methods return copies that
// share the table.
type Session struct {
	ID        core.SessionID          `json:"id"`
	CreatedAt time.Time               `json:"created_at"`
	Source    string                  `json:"source"`
	Report    preprocess.RejectReport `json:"reject_report"`

	table   *caseload.CanonicalTable
	targets caseload.Targets
	params  Params
}

func newSession(source string, table *caseload.CanonicalTable, report preprocess.RejectReport, params Params) *Session {
	return &Session{
		ID:        core.NewSessionID(),
		CreatedAt: time.Now(),
		Source:    source,
		Report:    report,
		table:     table,
		params:    params,
	}
}

// Table returns the canonical table.
func (s *Session) Table() *caseload.CanonicalTable { return s.table }

// Params returns the current view parameters.
func (s *Session) Params() Params { return s.params }

// Targets returns a copy of the weekly department targets, nil when none were loaded.
func (s *Session) Targets() caseload.Targets {
	if s.targets == nil {
		return nil
	}
	return maps.Clone(s.targets)
}

// WithParams returns a copy of s viewing the same table through p.
func (s *Session) WithParams(p Params) (*Session, error) {
	p, err := p.normalize()
	if err != nil {
		return nil, err
	}
	next := *s
	next.params = p
	return &next, nil
}

// WithTargets returns a copy of s carrying targets.
func (s *Session) WithTargets(targets caseload.Targets) *Session {
	next := *s
	next.targets = maps.Clone(targets)
	return &next
}

// Holder publishes the active session. Readers always see a whole session;
// a new dataset replaces the previous one rather than patching it.
type Holder struct {
	current atomic.Pointer[Session]
}

// Load returns the active session or nil.
func (h *Holder) Load() *Session {
	return h.current.Load()
}

// Swap publishes s and returns the session it replaced.
func (h *Holder) Swap(s *Session) *Session {
	return h.current.Swap(s)
}

// Update publishes fn(current), retrying fn when another writer swapped the
// session in between.
func (h *Holder) Update(fn func(*Session) (*Session, error)) (*Session, error) {
	for {
		cur := h.current.Load()
		if cur == nil {
			return nil, errors.NotFound("active session")
		}
		next, err := fn(cur)
		if err != nil {
			return nil, err
		}
		if h.current.CompareAndSwap(cur, next) {
			return next, nil
		}
	}
}
