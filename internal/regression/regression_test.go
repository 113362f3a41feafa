package regression

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func linearData() ([][]float64, []float64) {
	x := [][]float64{{1, 2}, {2, 1}, {3, 5}, {4, 3}, {5, 8}, {6, 2}}
	y := make([]float64, len(x))
	for i, row := range x {
		y[i] = 3 + 2*row[0] - 0.5*row[1]
	}
	return x, y
}

func TestRidgeRecoversLinearRelation(t *testing.T) {
	t.Parallel()

	x, y := linearData()
	model := NewRidge(1e-9)
	require.NoError(t, model.Fit(x, y))

	pred, err := model.Predict([][]float64{{10, 4}})
	require.NoError(t, err)
	require.InDelta(t, 3+20-2, pred[0], 1e-4)
}

func TestRidgeShrinksWithAlpha(t *testing.T) {
	t.Parallel()

	x, y := linearData()
	loose, strict := NewRidge(0.001), NewRidge(1000)
	require.NoError(t, loose.Fit(x, y))
	require.NoError(t, strict.Fit(x, y))

	require.Less(t, abs(strict.coef[0]), abs(loose.coef[0]))
}

func TestRidgeRejectsShapeMismatch(t *testing.T) {
	t.Parallel()

	x, y := linearData()
	model := NewRidge(1)
	_, err := model.Predict(x)
	require.True(t, errors.Is(err, ErrNotFitted))

	require.NoError(t, model.Fit(x, y))
	_, err = model.Predict([][]float64{{1, 2, 3}})
	require.Error(t, err)

	require.Error(t, model.Fit([][]float64{{1}, {1, 2}}, []float64{1, 2}))
	require.Error(t, model.Fit(nil, nil))
}

func TestRegistrySnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	newModel, err := reg.Constructor(KindRidge, map[string]any{"alpha": 2})
	require.NoError(t, err)

	model, err := newModel()
	require.NoError(t, err)
	x, y := linearData()
	require.NoError(t, model.Fit(x, y))

	snap, err := Snap(model)
	require.NoError(t, err)
	require.Equal(t, KindRidge, snap.Kind)

	restored, err := reg.Restore(snap)
	require.NoError(t, err)

	want, err := model.Predict(x)
	require.NoError(t, err)
	got, err := restored.Predict(x)
	require.NoError(t, err)
	require.InDeltaSlice(t, want, got, 1e-12)
}

func TestRegistryUnknownKind(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	_, err := reg.Constructor("gbr", nil)
	require.Error(t, err)
	require.Equal(t, []string{KindMean, KindRidge}, reg.Kinds())

	_, err = reg.New(KindRidge, map[string]any{"alpha": "high"})
	require.Error(t, err)
}

func TestMeanBaseline(t *testing.T) {
	t.Parallel()

	m := &Mean{}
	require.NoError(t, m.Fit([][]float64{{1}, {2}}, []float64{10, 20}))
	pred, err := m.Predict([][]float64{{7}})
	require.NoError(t, err)
	require.Equal(t, []float64{15}, pred)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func TestInputWidthFollowsFit(t *testing.T) {
	t.Parallel()

	x, y := linearData()
	ridge, mean := NewRidge(1), &Mean{}
	require.Zero(t, ridge.InputWidth())
	require.Zero(t, mean.InputWidth())

	require.NoError(t, ridge.Fit(x, y))
	require.NoError(t, mean.Fit(x, y))
	require.Equal(t, 2, ridge.InputWidth())
	require.Equal(t, 2, mean.InputWidth())
}

func TestFitAndPredictStopOnCancelledContext(t *testing.T) {
	t.Parallel()

	x, y := linearData()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	model := NewRidge(1)
	require.ErrorIs(t, Fit(ctx, model, x, y), context.Canceled)
	require.Zero(t, model.InputWidth())

	require.NoError(t, Fit(context.Background(), model, x, y))
	_, err := Predict(ctx, model, x)
	require.ErrorIs(t, err, context.Canceled)

	pred, err := Predict(context.Background(), model, x)
	require.NoError(t, err)
	require.Len(t, pred, len(x))
}
