package usecase

import (
	"context"
	"fmt"

	"VelocityForecast/internal/artifact"
	"VelocityForecast/internal/inference"
	"VelocityForecast/internal/ports"
	"VelocityForecast/internal/preprocess"
)

// InferenceLoader reads the artifact and the stored velocity history into a
// cache entry. Both come from one load so they are published together.
func InferenceLoader(artifacts *artifact.Store, tables ports.TableRepository) inference.Loader {
	return func(ctx context.Context) (*inference.Entry, error) {
		art, err := artifacts.Load()
		if err != nil {
			return nil, fmt.Errorf("load artifact: %w", err)
		}
		velocity, err := tables.LoadVelocity(ctx)
		if err != nil {
			return nil, fmt.Errorf("load velocity history: %w", err)
		}
		return &inference.Entry{
			Model:        art.Model,
			FeatureNames: art.FeatureNames,
			History:      preprocess.VelocityTable{Sprints: velocity}.Series(),
		}, nil
	}
}
