// Package inference rebuilds the training-time feature row for a single
// future sprint and runs the trained model on it.
package inference

import (
	"fmt"
	"slices"
	"sort"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/features"
	"VelocityForecast/internal/preprocess"
)

// DefaultFill replaces undefined historical features, e.g. for the very first sprint.
const DefaultFill = 0.0

// Vector is one feature row in model column order.
type Vector struct {
	Names  []string
	Values []float64
}

// CheckParity fails unless the vector's columns equal names in name and order.
func (v Vector) CheckParity(names []string) error {
	if len(v.Names) != len(v.Values) {
		return fmt.Errorf("%w: %d names for %d values", domain.ErrContractViolation, len(v.Names), len(v.Values))
	}
	if !slices.Equal(v.Names, names) {
		return fmt.Errorf("%w: columns %v do not match model features %v", domain.ErrContractViolation, v.Names, names)
	}
	return nil
}

// Prepare computes the feature row for the requested sprint using only
// history that started strictly before it. It never mutates history.
func Prepare(req Request, history []domain.VelocityPoint, featureNames []string) (Vector, error) {
	if err := req.Validate(); err != nil {
		return Vector{}, err
	}
	target := preprocess.ParseDate(req.StartDate)
	if target == nil {
		return Vector{}, fmt.Errorf("%w: unparsable start_date %q", domain.ErrInvalidInput, req.StartDate)
	}
	if len(featureNames) == 0 {
		return Vector{}, fmt.Errorf("%w: empty feature list", domain.ErrContractViolation)
	}

	prior := make([]domain.VelocityPoint, 0, len(history))
	for _, p := range history {
		if p.StartDate.Before(*target) {
			prior = append(prior, p)
		}
	}
	sort.SliceStable(prior, func(i, j int) bool {
		return prior[i].StartDate.Before(prior[j].StartDate)
	})
	velocities := make([]float64, len(prior))
	for i, p := range prior {
		velocities[i] = p.ActualVelocity
	}

	vec := Vector{
		Names:  append([]string(nil), featureNames...),
		Values: make([]float64, len(featureNames)),
	}
	seen := make(map[string]bool, len(featureNames))
	for i, name := range featureNames {
		if seen[name] {
			return Vector{}, fmt.Errorf("%w: duplicate feature %s", domain.ErrContractViolation, name)
		}
		seen[name] = true

		switch name {
		case domain.ColumnPlannedStoryPoints:
			vec.Values[i] = req.PlannedStoryPoints
		case domain.ColumnPlannedIssueCount:
			vec.Values[i] = float64(req.PlannedIssueCount)
		default:
			w, ok := features.ParseWindowColumn(name)
			if !ok {
				return Vector{}, fmt.Errorf("%w: cannot reconstruct feature %s", domain.ErrContractViolation, name)
			}
			vec.Values[i] = features.TrailingMean(velocities, w).Or(DefaultFill)
		}
	}

	if err := vec.CheckParity(featureNames); err != nil {
		return Vector{}, err
	}
	return vec, nil
}
