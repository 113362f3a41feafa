package training

import (
	"math"

	"VelocityForecast/internal/domain"
)

// Metrics summarizes regression error. Undefined values mean there was
// nothing finite to compare.
type Metrics struct {
	MAE  domain.Float `json:"mae"`
	RMSE domain.Float `json:"rmse"`
	MAPE domain.Float `json:"mape"`
}

// RegressionMetrics compares paired values, skipping pairs where either side
// is not finite. MAPE (percent) skips zero truths.
func RegressionMetrics(truth, pred []float64) Metrics {
	var absSum, sqSum, pctSum float64
	var n, pctN int
	for i := 0; i < len(truth) && i < len(pred); i++ {
		t, p := truth[i], pred[i]
		if !finite(t) || !finite(p) {
			continue
		}
		diff := t - p
		absSum += math.Abs(diff)
		sqSum += diff * diff
		n++
		if t != 0 {
			pctSum += math.Abs(diff / t)
			pctN++
		}
	}

	if n == 0 {
		return Metrics{}
	}
	m := Metrics{
		MAE:  domain.Some(absSum / float64(n)),
		RMSE: domain.Some(math.Sqrt(sqSum / float64(n))),
	}
	if pctN > 0 {
		m.MAPE = domain.Some(pctSum / float64(pctN) * 100)
	}
	return m
}

// MeanDefined averages the defined values; none defined yields undefined.
func MeanDefined(values []domain.Float) domain.Float {
	var sum float64
	var n int
	for _, v := range values {
		if v.Valid {
			sum += v.Value
			n++
		}
	}
	if n == 0 {
		return domain.None()
	}
	return domain.Some(sum / float64(n))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
