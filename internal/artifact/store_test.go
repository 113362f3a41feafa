package artifact

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/regression"
	"VelocityForecast/internal/training"
)

func fitted(t *testing.T) regression.Regressor {
	t.Helper()
	m := regression.NewRidge(0.5)
	require.NoError(t, m.Fit([][]float64{{1, 2}, {2, 3}, {3, 5}}, []float64{4, 6, 9}))
	return m
}

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir(), "velocity", regression.NewRegistry())
	model := fitted(t)
	in := Artifact{
		Model:         model,
		FeatureNames:  []string{"planned_story_points", "avg_velocity_last_1_sprints"},
		RunID:         "run-1",
		TrainedAt:     time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		ValidationMAE: domain.Some(2.5),
		Folds:         []training.FoldReport{{Index: 1, TrainSize: 3, ValidationSize: 2}},
		Rows:          5,
	}
	require.NoError(t, store.Save(in))

	out, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, in.FeatureNames, out.FeatureNames)
	require.Equal(t, in.RunID, out.RunID)
	require.True(t, in.TrainedAt.Equal(out.TrainedAt))
	require.Equal(t, in.ValidationMAE, out.ValidationMAE)
	require.Equal(t, in.Folds, out.Folds)

	x := [][]float64{{7, 1}}
	want, _ := model.Predict(x)
	got, err := out.Model.Predict(x)
	require.NoError(t, err)
	require.InDeltaSlice(t, want, got, 1e-12)
}

func TestLoadMissingBlob(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir(), "velocity", regression.NewRegistry())
	_, err := store.Load()
	require.True(t, errors.Is(err, domain.ErrArtifactMissing))

	require.NoError(t, store.Save(Artifact{Model: fitted(t), FeatureNames: []string{"a", "b"}, RunID: "r"}))
	require.NoError(t, os.Remove(store.FeaturesPath()))
	_, err = store.Load()
	require.True(t, errors.Is(err, domain.ErrArtifactMissing))
}

func TestLoadRejectsMismatchedBlobs(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	first := NewStore(dir, "velocity", regression.NewRegistry())
	require.NoError(t, first.Save(Artifact{Model: fitted(t), FeatureNames: []string{"a", "b"}, RunID: "old"}))

	other := NewStore(dir, "other", regression.NewRegistry())
	require.NoError(t, other.Save(Artifact{Model: fitted(t), FeatureNames: []string{"b", "a"}, RunID: "new"}))
	require.NoError(t, os.Rename(other.FeaturesPath(), first.FeaturesPath()))

	_, err := first.Load()
	require.True(t, errors.Is(err, domain.ErrContractViolation))
}

func TestLoadRejectsModelWidthMismatch(t *testing.T) {
	t.Parallel()

	mean := &regression.Mean{}
	require.NoError(t, mean.Fit([][]float64{{1, 2}, {3, 4}}, []float64{10, 20}))

	store := NewStore(t.TempDir(), "velocity", regression.NewRegistry())
	require.NoError(t, store.Save(Artifact{
		Model:        mean,
		FeatureNames: []string{"planned_story_points", "planned_issue_count", "avg_velocity_last_1_sprints"},
		RunID:        "run-1",
	}))

	_, err := store.Load()
	require.ErrorIs(t, err, domain.ErrContractViolation)
	require.Contains(t, err.Error(), "expects 2 features")
}

func TestSaveRejectsIncompleteArtifact(t *testing.T) {
	t.Parallel()

	store := NewStore(t.TempDir(), "velocity", regression.NewRegistry())
	require.Error(t, store.Save(Artifact{FeatureNames: []string{"a"}}))
	require.Error(t, store.Save(Artifact{Model: fitted(t)}))
}
