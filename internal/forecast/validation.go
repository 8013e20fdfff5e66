package forecast

import (
	"math"

	"caseflow/domain/caseload"

	"github.com/montanaflynn/stats"
)

// fold is one rolling origin: train on y[:trainEnd], score on y[trainEnd:testEnd].
type fold struct {
	trainEnd, testEnd int
}

// rollingOrigins lays out folds back from the end of a series of length n.
// Test windows never overlap and always lie strictly after their training data.
func rollingOrigins(n, holdout, folds int) []fold {
	out := make([]fold, 0, folds)
	for k := folds; k >= 1; k-- {
		trainEnd := n - k*holdout
		out = append(out, fold{trainEnd: trainEnd, testEnd: trainEnd + holdout})
	}
	return out
}

// autoHoldout is a fifth of the series, at least one point and at most one season.
func autoHoldout(n, season int) int {
	h := max(1, n/5)
	if season >= 1 && h > season {
		h = season
	}
	return h
}

// scores holds the validation errors of one candidate.
type scores struct {
	mae, rmse, mape float64
}

func (s scores) get(m caseload.ErrorMetric) float64 {
	switch m {
	case caseload.ErrorRMSE:
		return s.rmse
	case caseload.ErrorMAPE:
		return s.mape
	default:
		return s.mae
	}
}

// score compares held-out actuals with predictions. Percentage errors divide
// by max(|actual|, 1) so empty periods do not blow up MAPE.
func score(actual, predicted []float64) scores {
	abs := make([]float64, len(actual))
	sq := make([]float64, len(actual))
	pct := make([]float64, len(actual))
	for i := range actual {
		e := actual[i] - predicted[i]
		abs[i] = math.Abs(e)
		sq[i] = e * e
		pct[i] = 100 * math.Abs(e) / math.Max(math.Abs(actual[i]), 1)
	}
	mae, _ := stats.Mean(abs)
	mse, _ := stats.Mean(sq)
	mape, _ := stats.Mean(pct)
	return scores{mae: mae, rmse: math.Sqrt(mse), mape: mape}
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
