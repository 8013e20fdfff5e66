// Package forecast fits a closed set of candidate models to a period series,
// validates them on rolling origins, selects the best and produces interval
// forecasts from a refit on the full series.
package forecast

import (
	"context"
	"fmt"
	"strings"

	"caseflow/domain/core"
)

// Model names, in default priority order.
const (
	NameSeasonalNaive        = "seasonal_naive"
	NameExponentialSmoothing = "exponential_smoothing"
	NameLinearTrendSeasonal  = "linear_trend_seasonal"
	NameMovingAverage        = "moving_average"
)

// DefaultMovingAverageWindow is the number of trailing periods averaged.
const DefaultMovingAverageWindow = 6

// Model is a forecasting method that can be fit to a series.
type Model interface {
	Name() string
	// MinHistory is the shortest training series Fit accepts.
	MinHistory(season int) int
	Fit(ctx context.Context, series []float64, season int) (Fitted, error)
}

// Fitted is a model fit to one training series.
type Fitted interface {
	// Predict returns the next h values after the training series.
	Predict(h int) []float64
	// Residuals are the in-sample one-step errors (actual minus fitted).
	Residuals() []float64
}

// ModelOptions parameterizes the registry.
type ModelOptions struct {
	MovingAverageWindow int
}

// Registry returns every model in default priority order.
func Registry(opts ModelOptions) []Model {
	window := opts.MovingAverageWindow
	if window <= 0 {
		window = DefaultMovingAverageWindow
	}
	return []Model{
		SeasonalNaive(),
		ExponentialSmoothing(),
		LinearTrendSeasonal(),
		MovingAverage(window),
	}
}

// DefaultModels is Registry with default options.
func DefaultModels() []Model {
	return Registry(ModelOptions{})
}

// Names lists model names in order.
func Names(models []Model) []string {
	out := make([]string, len(models))
	for i, m := range models {
		out[i] = m.Name()
	}
	return out
}

// ModelsByName resolves names against the registry. The returned order is
// the order of names, which becomes the tie-break priority.
func ModelsByName(names []string, opts ModelOptions) ([]Model, error) {
	if len(names) == 0 {
		return nil, core.NewValidationError("models", "no candidate models")
	}
	known := make(map[string]Model)
	for _, m := range Registry(opts) {
		known[m.Name()] = m
	}

	out := make([]Model, 0, len(names))
	seen := make(map[string]bool)
	for _, raw := range names {
		name := strings.ToLower(strings.TrimSpace(raw))
		m, ok := known[name]
		if !ok {
			return nil, core.NewValidationError("models", fmt.Sprintf("unknown model %q", raw))
		}
		if seen[name] {
			return nil, core.NewValidationError("models", fmt.Sprintf("model %q listed twice", raw))
		}
		seen[name] = true
		out = append(out, m)
	}
	return out, nil
}
