package regression

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

const (
	KindRidge         = "ridge"
	defaultRidgeAlpha = 1.0
)

// Ridge is an L2-regularized linear regression solved with gonum.
type Ridge struct {
	alpha     float64
	coef      []float64
	intercept float64
	fitted    bool
}

// NewRidge returns an unfitted ridge regressor.
func NewRidge(alpha float64) *Ridge {
	return &Ridge{alpha: alpha}
}

// NewRidgeFromParams reads the optional "alpha" hyperparameter.
func NewRidgeFromParams(params map[string]any) (Regressor, error) {
	alpha := defaultRidgeAlpha
	if raw, ok := params["alpha"]; ok {
		switch v := raw.(type) {
		case float64:
			alpha = v
		case int:
			alpha = float64(v)
		default:
			return nil, fmt.Errorf("ridge alpha must be numeric, got %T", raw)
		}
	}
	if alpha < 0 {
		return nil, fmt.Errorf("ridge alpha must be non-negative, got %v", alpha)
	}
	return NewRidge(alpha), nil
}

// Kind identifies the learner.
func (r *Ridge) Kind() string { return KindRidge }

// Fit solves (XcᵀXc + αI)β = Xcᵀyc on centered data; the intercept is not penalized.
func (r *Ridge) Fit(features [][]float64, targets []float64) error {
	n := len(features)
	if n == 0 || n != len(targets) {
		return fmt.Errorf("fit needs matching non-empty inputs, got %d rows and %d targets", n, len(targets))
	}
	p := len(features[0])
	if err := checkShape(features, p); err != nil {
		return err
	}

	xMean := make([]float64, p)
	var yMean float64
	for i, row := range features {
		for j, v := range row {
			xMean[j] += v
		}
		yMean += targets[i]
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	yMean /= float64(n)

	coef := make([]float64, p)
	if p > 0 {
		x := mat.NewDense(n, p, nil)
		y := mat.NewVecDense(n, nil)
		for i, row := range features {
			for j, v := range row {
				x.Set(i, j, v-xMean[j])
			}
			y.SetVec(i, targets[i]-yMean)
		}

		var gram mat.Dense
		gram.Mul(x.T(), x)
		for j := 0; j < p; j++ {
			gram.Set(j, j, gram.At(j, j)+r.alpha)
		}
		var moment mat.VecDense
		moment.MulVec(x.T(), y)

		var beta mat.VecDense
		if err := beta.SolveVec(&gram, &moment); err != nil {
			// A finite condition number is only a precision warning.
			var cond mat.Condition
			if !errors.As(err, &cond) || math.IsInf(float64(cond), 0) {
				return fmt.Errorf("solve ridge system: %w", err)
			}
		}
		for j := range coef {
			coef[j] = beta.AtVec(j)
		}
	}

	intercept := yMean
	for j, c := range coef {
		intercept -= c * xMean[j]
	}

	r.coef = coef
	r.intercept = intercept
	r.fitted = true
	return nil
}

// InputWidth reports the number of fitted coefficients.
func (r *Ridge) InputWidth() int { return len(r.coef) }

// Predict applies the fitted coefficients.
func (r *Ridge) Predict(features [][]float64) ([]float64, error) {
	if !r.fitted {
		return nil, ErrNotFitted
	}
	if err := checkShape(features, len(r.coef)); err != nil {
		return nil, err
	}
	out := make([]float64, len(features))
	for i, row := range features {
		v := r.intercept
		for j, x := range row {
			v += r.coef[j] * x
		}
		out[i] = v
	}
	return out, nil
}

type ridgeState struct {
	Alpha     float64   `json:"alpha"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	Fitted    bool      `json:"fitted"`
}

// MarshalJSON persists the fitted coefficients.
func (r *Ridge) MarshalJSON() ([]byte, error) {
	return json.Marshal(ridgeState{Alpha: r.alpha, Coef: r.coef, Intercept: r.intercept, Fitted: r.fitted})
}

// UnmarshalJSON restores the fitted coefficients.
func (r *Ridge) UnmarshalJSON(data []byte) error {
	var s ridgeState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	r.alpha, r.coef, r.intercept, r.fitted = s.Alpha, s.Coef, s.Intercept, s.Fitted
	return nil
}
