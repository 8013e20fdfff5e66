package caseload

import (
	"time"
)

// PeriodAggregate is one (period, grouping key) rollup row.
type PeriodAggregate struct {
	PeriodStart          time.Time   `json:"period_start"`
	PeriodEnd            time.Time   `json:"period_end"`
	Granularity          Granularity `json:"granularity"`
	Label                string      `json:"label"`
	GroupingKey          string      `json:"grouping_key"`
	CaseCount            int         `json:"case_count"`
	TotalDuration        float64     `json:"total_duration"`
	BusinessDayCount     int         `json:"business_day_count"`
	BusinessDayCases     int         `json:"business_day_cases"`
	ObservedBusinessDays int         `json:"observed_business_days"`
	IsComplete           bool        `json:"is_complete"`
}

// Span returns the period as a date range.
func (a PeriodAggregate) Span() DateRange {
	return DateRange{Start: a.PeriodStart, End: a.PeriodEnd}
}

// PerBusinessDay is the business-day-normalized case count. Periods without
// business days normalize to zero.
func (a PeriodAggregate) PerBusinessDay() float64 {
	if a.BusinessDayCount == 0 {
		return 0
	}
	return float64(a.CaseCount) / float64(a.BusinessDayCount)
}

// Value reads the aggregate's value for a ranking metric.
func (a PeriodAggregate) Value(m Metric) float64 {
	if m == MetricTotalDuration {
		return a.TotalDuration
	}
	return float64(a.CaseCount)
}

// RankingEntry is one row of a ranking result.
type RankingEntry struct {
	Rank        int       `json:"rank"`
	GroupingKey string    `json:"grouping_key"`
	MetricValue float64   `json:"metric_value"`
	Metric      Metric    `json:"metric"`
	Period      DateRange `json:"period"`
}

// Series is an ordered, evenly spaced sequence of period values.
type Series struct {
	Key          string      `json:"key"`
	Granularity  Granularity `json:"granularity"`
	PeriodStarts []time.Time `json:"period_starts"`
	Values       []float64   `json:"values"`
}

// Len returns the number of points.
func (s Series) Len() int {
	return len(s.Values)
}

// Window returns the span from the first to the last period start.
func (s Series) Window() DateRange {
	if len(s.PeriodStarts) == 0 {
		return DateRange{}
	}
	return DateRange{Start: s.PeriodStarts[0], End: s.PeriodStarts[len(s.PeriodStarts)-1]}
}

// ForecastState is a step of the forecasting state machine.
type ForecastState string

const (
	StateFitCandidates   ForecastState = "FIT_CANDIDATES"
	StateValidate        ForecastState = "VALIDATE"
	StateSelect          ForecastState = "SELECT"
	StateProduceForecast ForecastState = "PRODUCE_FORECAST"
	StateDone            ForecastState = "DONE"
	StateFailed          ForecastState = "FAILED"
)

// CandidateStatus tells whether a candidate took part in selection.
type CandidateStatus string

const (
	CandidateValidated   CandidateStatus = "validated"
	CandidateUnavailable CandidateStatus = "unavailable"
	CandidateSelected    CandidateStatus = "selected"
)

// CandidateReport records how one candidate model fared during validation.
type CandidateReport struct {
	ModelName string          `json:"model_name"`
	Status    CandidateStatus `json:"status"`
	Score     float64         `json:"score,omitempty"`
	MAE       float64         `json:"mae,omitempty"`
	RMSE      float64         `json:"rmse,omitempty"`
	MAPE      float64         `json:"mape,omitempty"`
	Reason    string          `json:"reason,omitempty"`
}

// ForecastResult is the output of one forecasting request.
type ForecastResult struct {
	ModelName       string            `json:"model_name"`
	Metric          ErrorMetric       `json:"metric"`
	ValidationScore float64           `json:"validation_score"`
	PointForecast   []float64         `json:"point_forecast"`
	LowerBound      []float64         `json:"lower_bound"`
	UpperBound      []float64         `json:"upper_bound"`
	PeriodStarts    []time.Time       `json:"period_starts"`
	Confidence      float64           `json:"confidence"`
	FitWindow       DateRange         `json:"fit_window"`
	Candidates      []CandidateReport `json:"candidates"`
	States          []ForecastState   `json:"states"`
}

// Horizon returns the number of forecast periods.
func (r ForecastResult) Horizon() int {
	return len(r.PointForecast)
}
