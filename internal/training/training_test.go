package training

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/features"
	"VelocityForecast/internal/regression"
)

// recorder wraps a mean model and records every fit size.
type recorder struct {
	mu   *sync.Mutex
	fits *[]int
	regression.Mean
}

func (r *recorder) Fit(x [][]float64, y []float64) error {
	r.mu.Lock()
	*r.fits = append(*r.fits, len(y))
	r.mu.Unlock()
	return r.Mean.Fit(x, y)
}

func recordingFactory() (func() (regression.Regressor, error), *[]int) {
	fits := &[]int{}
	mu := &sync.Mutex{}
	return func() (regression.Regressor, error) {
		return &recorder{mu: mu, fits: fits}, nil
	}, fits
}

func buildTable(velocities ...float64) domain.FeatureTable {
	base := time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC)
	var sprints []domain.Sprint
	var closed []domain.SprintVelocity
	var issues []domain.Issue
	for i, v := range velocities {
		start := base.AddDate(0, 0, 14*i)
		s := domain.Sprint{ID: int64(i + 1), StartDate: &start, State: domain.SprintClosed}
		sprints = append(sprints, s)
		closed = append(closed, domain.SprintVelocity{Sprint: s, ActualVelocity: v})
		id := s.ID
		issues = append(issues, domain.Issue{ID: id, StoryPoints: v + 2, SprintID: &id})
	}
	future := base.AddDate(0, 0, 14*len(velocities))
	sprints = append(sprints, domain.Sprint{ID: 999, StartDate: &future, State: domain.SprintFuture})
	return features.NewBuilder([]int{1, 3}, nil).Build(sprints, issues, closed)
}

var cols = []string{"avg_velocity_last_1_sprints", "avg_velocity_last_3_sprints", "planned_story_points", "planned_issue_count"}

func TestTrainExcludesUndefinedRowsAndFitsFinalOnAll(t *testing.T) {
	t.Parallel()

	newModel, fits := recordingFactory()
	trainer := NewTrainer(Config{FeatureColumns: cols, NSplits: 3}, newModel, nil)

	result, err := trainer.Train(context.Background(), buildTable(20, 22, 19, 25, 24, 30, 28, 27, 31))
	require.NoError(t, err)

	// First sprint has no history, future sprint has no target.
	require.Equal(t, 8, result.Rows)
	require.Equal(t, cols, result.FeatureNames)
	require.Len(t, result.Folds, 3)
	require.True(t, result.ValidationMAE.Valid)

	require.Len(t, *fits, 4)
	require.Equal(t, 8, (*fits)[len(*fits)-1], "final model trains on every eligible row")

	var sum float64
	for _, f := range result.Folds {
		sum += f.Metrics.MAE.Value
		require.Positive(t, f.TrainSize)
		require.Positive(t, f.ValidationSize)
	}
	require.InDelta(t, sum/3, result.ValidationMAE.Value, 1e-9)
}

func TestTrainParallelMatchesSequential(t *testing.T) {
	t.Parallel()

	table := buildTable(20, 22, 19, 25, 24, 30, 28, 27, 31, 26, 29)
	reg := regression.NewRegistry()
	newModel, err := reg.Constructor(regression.KindRidge, nil)
	require.NoError(t, err)

	seq, err := NewTrainer(Config{FeatureColumns: cols, NSplits: 4}, newModel, nil).Train(context.Background(), table)
	require.NoError(t, err)
	par, err := NewTrainer(Config{FeatureColumns: cols, NSplits: 4, ParallelFolds: true}, newModel, nil).Train(context.Background(), table)
	require.NoError(t, err)

	require.Equal(t, seq.Folds, par.Folds)
	require.Equal(t, seq.ValidationMAE, par.ValidationMAE)
}

func TestTrainInsufficientData(t *testing.T) {
	t.Parallel()

	newModel, _ := recordingFactory()
	trainer := NewTrainer(Config{FeatureColumns: cols, NSplits: 3}, newModel, nil)

	_, err := trainer.Train(context.Background(), buildTable(20))
	require.True(t, errors.Is(err, domain.ErrInsufficientData))
}

func TestTrainWithoutValidFoldsReportsUndefinedMAE(t *testing.T) {
	t.Parallel()

	newModel, fits := recordingFactory()
	trainer := NewTrainer(Config{FeatureColumns: cols, NSplits: 3}, newModel, nil)

	result, err := trainer.Train(context.Background(), buildTable(20, 30))
	require.NoError(t, err)
	require.Equal(t, 1, result.Rows)
	require.Empty(t, result.Folds)
	require.False(t, result.ValidationMAE.Valid)
	require.Equal(t, []int{1}, *fits)
	require.NotNil(t, result.Model)
}

func TestTrainUnknownColumnIsInvalidInput(t *testing.T) {
	t.Parallel()

	newModel, _ := recordingFactory()
	trainer := NewTrainer(Config{FeatureColumns: []string{"team_mood"}, NSplits: 3}, newModel, nil)
	_, err := trainer.Train(context.Background(), buildTable(20, 22, 19))
	require.True(t, errors.Is(err, domain.ErrContractViolation))
}

func TestRegressionMetrics(t *testing.T) {
	t.Parallel()

	m := RegressionMetrics([]float64{10, 20, 30, 40, 50}, []float64{12, 18, 33, 38, 55})
	require.InDelta(t, 2.8, m.MAE.Value, 1e-9)
	require.InDelta(t, math.Sqrt(46.0/5), m.RMSE.Value, 1e-9)
	require.InDelta(t, (0.2+0.1+0.1+0.05+0.1)/5*100, m.MAPE.Value, 1e-9)

	zero := RegressionMetrics([]float64{0, 10, 20}, []float64{1, 11, 19})
	require.InDelta(t, 1.0, zero.MAE.Value, 1e-9)
	require.InDelta(t, 7.5, zero.MAPE.Value, 1e-9)

	none := RegressionMetrics([]float64{math.NaN()}, []float64{1})
	require.False(t, none.MAE.Valid)
	require.False(t, none.RMSE.Valid)
	require.False(t, none.MAPE.Valid)

	allZero := RegressionMetrics([]float64{0, 0}, []float64{1, 1})
	require.True(t, allZero.MAE.Valid)
	require.False(t, allZero.MAPE.Valid)
}

// smallSampleLearner refuses to fit on fewer than minRows rows.
type smallSampleLearner struct {
	minRows int
	regression.Mean
}

func (l *smallSampleLearner) Fit(x [][]float64, y []float64) error {
	if len(y) < l.minRows {
		return errors.New("too few rows to fit")
	}
	return l.Mean.Fit(x, y)
}

func smallSampleFactory(minRows int) func() (regression.Regressor, error) {
	return func() (regression.Regressor, error) {
		return &smallSampleLearner{minRows: minRows}, nil
	}
}

func TestTrainKeepsFinalModelWhenFoldsFail(t *testing.T) {
	t.Parallel()

	table := buildTable(20, 22, 19, 25, 24, 30, 28, 27, 31)

	// Folds train on 2, 4 and 6 rows; only the last reaches the minimum.
	result, err := NewTrainer(Config{FeatureColumns: cols, NSplits: 3}, smallSampleFactory(5), nil).
		Train(context.Background(), table)
	require.NoError(t, err)
	require.NotNil(t, result.Model)
	require.Equal(t, 8, result.Rows)
	require.Equal(t, len(cols), result.Model.InputWidth())
	require.Len(t, result.Folds, 3)
	require.False(t, result.Folds[0].Metrics.MAE.Valid)
	require.False(t, result.Folds[1].Metrics.MAE.Valid)
	require.True(t, result.Folds[2].Metrics.MAE.Valid)
	require.Equal(t, result.Folds[2].Metrics.MAE, result.ValidationMAE)

	result, err = NewTrainer(Config{FeatureColumns: cols, NSplits: 3, ParallelFolds: true}, smallSampleFactory(7), nil).
		Train(context.Background(), table)
	require.NoError(t, err)
	require.NotNil(t, result.Model)
	require.Len(t, result.Folds, 3)
	require.False(t, result.ValidationMAE.Valid)
}

func TestTrainStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	newModel, fits := recordingFactory()
	_, err := NewTrainer(Config{FeatureColumns: cols, NSplits: 3}, newModel, nil).
		Train(ctx, buildTable(20, 22, 19, 25, 24, 30, 28, 27, 31))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, *fits)
}
