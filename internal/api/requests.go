package api

import (
	"net/url"
	"strconv"

	"caseflow/domain/caseload"
	"caseflow/internal/calendar"
	"caseflow/internal/errors"
	"caseflow/internal/session"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// paramsRequest overrides session parameters. Empty and nil fields keep the
// session's current value.
type paramsRequest struct {
	Granularity  string `json:"granularity" validate:"omitempty,oneof=day week month quarter"`
	GroupBy      string `json:"group_by" validate:"omitempty,oneof=all department surgeon"`
	Metric       string `json:"metric" validate:"omitempty,oneof=case_count total_duration"`
	TopN         *int   `json:"top_n" validate:"omitempty,min=0"`
	Horizon      *int   `json:"horizon" validate:"omitempty,min=0,max=520"`
	From         string `json:"from" validate:"omitempty,datetime=2006-01-02"`
	To           string `json:"to" validate:"omitempty,datetime=2006-01-02"`
	Preset       string `json:"preset" validate:"omitempty,oneof=all last_30_days last_90_days this_fiscal_year last_fiscal_year last_4_complete_weeks"`
	CompleteOnly *bool  `json:"complete_only"`
	ForecastKey  string `json:"forecast_key" validate:"omitempty,max=128"`
}

// paramsFromQuery reads overrides from URL query parameters.
func paramsFromQuery(q url.Values) (paramsRequest, error) {
	req := paramsRequest{
		Granularity: q.Get("granularity"),
		GroupBy:     q.Get("group_by"),
		Metric:      q.Get("metric"),
		From:        q.Get("from"),
		To:          q.Get("to"),
		Preset:      q.Get("preset"),
		ForecastKey: q.Get("forecast_key"),
	}
	var err error
	if req.TopN, err = queryInt(q, "top_n"); err != nil {
		return req, err
	}
	if req.Horizon, err = queryInt(q, "horizon"); err != nil {
		return req, err
	}
	if v := q.Get("complete_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, errors.InvalidInput("complete_only must be true or false")
		}
		req.CompleteOnly = &b
	}
	return req, nil
}

func queryInt(q url.Values, key string) (*int, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, errors.InvalidInput(key + " must be an integer")
	}
	return &n, nil
}

// apply overlays the request on p. A lone from or to is completed with the
// matching end of coverage.
func (req paramsRequest) apply(p session.Params, coverage caseload.DateRange) (session.Params, error) {
	if err := validate.Struct(req); err != nil {
		return p, err
	}
	if req.Granularity != "" {
		p.Granularity = caseload.Granularity(req.Granularity)
	}
	if req.GroupBy != "" {
		p.GroupBy = caseload.GroupBy(req.GroupBy)
	}
	if req.Metric != "" {
		p.Metric = caseload.Metric(req.Metric)
	}
	if req.TopN != nil {
		p.TopN = *req.TopN
	}
	if req.Horizon != nil {
		p.Horizon = *req.Horizon
	}
	if req.CompleteOnly != nil {
		p.CompleteOnly = *req.CompleteOnly
	}
	if req.ForecastKey != "" {
		p.ForecastKey = req.ForecastKey
	}
	if req.Preset != "" {
		p.Preset = calendar.Preset(req.Preset)
		p.Window = caseload.DateRange{}
	}
	if req.From != "" || req.To != "" {
		window := coverage
		if req.From != "" {
			window.Start, _ = calendar.ParseDate(req.From)
		}
		if req.To != "" {
			window.End, _ = calendar.ParseDate(req.To)
		}
		p.Window = window
	}
	return p, nil
}

// createSessionRequest uploads records as JSON.
type createSessionRequest struct {
	Source  string               `json:"source" validate:"max=256"`
	Records []caseload.RawRecord `json:"records" validate:"required,min=1"`
	Targets caseload.Targets     `json:"targets" validate:"omitempty,dive,keys,required,endkeys,min=0"`
	Params  *paramsRequest       `json:"params"`
}

// targetsRequest replaces the weekly targets of the active session.
type targetsRequest struct {
	Targets caseload.Targets `json:"targets" validate:"required,min=1,dive,keys,required,endkeys,min=0"`
}
