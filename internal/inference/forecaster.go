package inference

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/regression"
)

// Observer is notified of every prediction outcome.
type Observer interface {
	ObservePrediction(err error)
}

// Forecaster predicts velocity for a future sprint from cached artifacts.
type Forecaster struct {
	cache    *Cache
	observer Observer
	logger   *slog.Logger
}

// NewForecaster wires the caller-owned cache.
func NewForecaster(cache *Cache, observer Observer, logger *slog.Logger) *Forecaster {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Forecaster{cache: cache, observer: observer, logger: logger}
}

// Predict reconstructs the feature row, checks column parity with the model
// and returns the predicted velocity.
func (f *Forecaster) Predict(ctx context.Context, req Request) (float64, error) {
	v, err := f.predict(ctx, req)
	if f.observer != nil {
		f.observer.ObservePrediction(err)
	}
	return v, err
}

func (f *Forecaster) predict(ctx context.Context, req Request) (float64, error) {
	f.logger.Info("prediction requested", "start_date", req.StartDate)

	entry, err := f.cache.Get(ctx)
	if err != nil {
		return 0, err
	}

	vec, err := Prepare(req, entry.History, entry.FeatureNames)
	if err != nil {
		return 0, fmt.Errorf("prepare features: %w", err)
	}
	if err := vec.CheckParity(entry.FeatureNames); err != nil {
		return 0, err
	}
	if width := entry.Model.InputWidth(); width != len(vec.Values) {
		return 0, fmt.Errorf("%w: model expects %d features, prepared %d", domain.ErrContractViolation, width, len(vec.Values))
	}
	f.logger.Debug("inference features prepared", "names", vec.Names, "values", vec.Values)

	pred, err := regression.Predict(ctx, entry.Model, [][]float64{vec.Values})
	if err != nil {
		return 0, fmt.Errorf("model predict: %w", err)
	}
	if len(pred) != 1 || math.IsNaN(pred[0]) || math.IsInf(pred[0], 0) {
		return 0, fmt.Errorf("model returned unusable prediction %v", pred)
	}

	f.logger.Info("predicted velocity", "velocity", pred[0])
	return pred[0], nil
}
