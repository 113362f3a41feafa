package regression

import "fmt"

const KindMean = "mean"

// Mean predicts the training-target average. Useful as a baseline.
type Mean struct {
	Value  float64 `json:"value"`
	Width  int     `json:"width"`
	Fitted bool    `json:"fitted"`
}

// Kind identifies the learner.
func (m *Mean) Kind() string { return KindMean }

// Fit records the target mean.
func (m *Mean) Fit(features [][]float64, targets []float64) error {
	if len(targets) == 0 || len(features) != len(targets) {
		return fmt.Errorf("fit needs matching non-empty inputs, got %d rows and %d targets", len(features), len(targets))
	}
	var sum float64
	for _, t := range targets {
		sum += t
	}
	m.Value = sum / float64(len(targets))
	m.Width = len(features[0])
	m.Fitted = true
	return nil
}

// InputWidth reports the feature count seen at Fit.
func (m *Mean) InputWidth() int { return m.Width }

// Predict returns the recorded mean for every row.
func (m *Mean) Predict(features [][]float64) ([]float64, error) {
	if !m.Fitted {
		return nil, ErrNotFitted
	}
	if err := checkShape(features, m.Width); err != nil {
		return nil, err
	}
	out := make([]float64, len(features))
	for i := range out {
		out[i] = m.Value
	}
	return out, nil
}
