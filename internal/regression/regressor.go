// Package regression defines the pluggable learner used by training and
// inference, plus the in-process implementations.
package regression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// ErrNotFitted is returned by Predict before a successful Fit.
var ErrNotFitted = errors.New("regressor is not fitted")

// Regressor is a fit/predict capability. Implementations must be
// JSON-serializable so a fitted model can be persisted and restored.
// InputWidth is the number of features the fitted model expects, 0 before Fit.
type Regressor interface {
	Kind() string
	Fit(features [][]float64, targets []float64) error
	Predict(features [][]float64) ([]float64, error)
	InputWidth() int
}

// ContextRegressor is implemented by learners that do I/O and can stop when
// the caller's context is cancelled.
type ContextRegressor interface {
	Regressor
	FitContext(ctx context.Context, features [][]float64, targets []float64) error
	PredictContext(ctx context.Context, features [][]float64) ([]float64, error)
}

// Fit fits model, passing ctx through when the learner accepts one.
func Fit(ctx context.Context, model Regressor, features [][]float64, targets []float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cm, ok := model.(ContextRegressor); ok {
		return cm.FitContext(ctx, features, targets)
	}
	return model.Fit(features, targets)
}

// Predict scores rows with model, passing ctx through when the learner accepts one.
func Predict(ctx context.Context, model Regressor, features [][]float64) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if cm, ok := model.(ContextRegressor); ok {
		return cm.PredictContext(ctx, features)
	}
	return model.Predict(features)
}

// Factory builds an unfitted regressor from hyperparameters.
type Factory func(params map[string]any) (Regressor, error)

// Snapshot is the persisted form of a fitted regressor.
type Snapshot struct {
	Kind  string          `json:"kind"`
	State json.RawMessage `json:"state"`
}

// Registry maps learner kinds to factories.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry returns a registry with the in-process learners registered.
func NewRegistry() *Registry {
	r := &Registry{factories: map[string]Factory{}}
	r.Register(KindRidge, NewRidgeFromParams)
	r.Register(KindMean, func(map[string]any) (Regressor, error) { return &Mean{}, nil })
	return r
}

// Register adds or replaces a learner kind.
func (r *Registry) Register(kind string, factory Factory) {
	if r.factories == nil {
		r.factories = map[string]Factory{}
	}
	r.factories[kind] = factory
}

// Kinds lists registered learner kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// New builds an unfitted regressor of the given kind.
func (r *Registry) New(kind string, params map[string]any) (Regressor, error) {
	factory, ok := r.factories[kind]
	if !ok {
		return nil, fmt.Errorf("learner %s is not registered", kind)
	}
	return factory(params)
}

// Constructor binds a kind and its hyperparameters into a zero-argument
// constructor, one fresh instance per call.
func (r *Registry) Constructor(kind string, params map[string]any) (func() (Regressor, error), error) {
	if _, ok := r.factories[kind]; !ok {
		return nil, fmt.Errorf("learner %s is not registered", kind)
	}
	return func() (Regressor, error) { return r.New(kind, params) }, nil
}

// Snap serializes a fitted regressor.
func Snap(model Regressor) (Snapshot, error) {
	state, err := json.Marshal(model)
	if err != nil {
		return Snapshot{}, fmt.Errorf("marshal %s state: %w", model.Kind(), err)
	}
	return Snapshot{Kind: model.Kind(), State: state}, nil
}

// Restore rebuilds a fitted regressor from its snapshot.
func (r *Registry) Restore(snap Snapshot) (Regressor, error) {
	model, err := r.New(snap.Kind, nil)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(snap.State, model); err != nil {
		return nil, fmt.Errorf("unmarshal %s state: %w", snap.Kind, err)
	}
	return model, nil
}

func checkShape(features [][]float64, width int) error {
	for i, row := range features {
		if len(row) != width {
			return fmt.Errorf("row %d has %d features, want %d", i, len(row), width)
		}
	}
	return nil
}
