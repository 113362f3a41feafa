package inference

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/features"
	"VelocityForecast/internal/regression"
)

var names = []string{"planned_story_points", "avg_velocity_last_1_sprints", "avg_velocity_last_3_sprints", "planned_issue_count"}

func history(velocities ...float64) []domain.VelocityPoint {
	base := time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC)
	out := make([]domain.VelocityPoint, len(velocities))
	for i, v := range velocities {
		out[i] = domain.VelocityPoint{SprintID: int64(i + 1), StartDate: base.AddDate(0, 0, 14*i), ActualVelocity: v}
	}
	return out
}

func TestPrepareUsesOnlyPriorHistory(t *testing.T) {
	t.Parallel()

	hist := history(10, 20, 30, 40)
	// Third sprint starts 2023-02-06; only 10 and 20 are strictly before it.
	vec, err := Prepare(Request{StartDate: "2023-02-06", PlannedStoryPoints: 42, PlannedIssueCount: 9}, hist, names)
	require.NoError(t, err)

	require.Equal(t, names, vec.Names)
	require.Equal(t, []float64{42, 20, 15, 9}, vec.Values)
}

func TestPrepareMatchesTrainingFeatures(t *testing.T) {
	t.Parallel()

	velocities := []float64{12, 7, 19, 4, 23, 11}
	hist := history(velocities...)
	closed := make([]domain.SprintVelocity, len(hist))
	for i, p := range hist {
		start := p.StartDate
		closed[i] = domain.SprintVelocity{Sprint: domain.Sprint{ID: p.SprintID, StartDate: &start, State: domain.SprintClosed}, ActualVelocity: p.ActualVelocity}
	}
	training := features.Historical(closed, []int{1, 3})

	for k := 1; k < len(hist); k++ {
		req := Request{StartDate: hist[k].StartDate.Format(time.RFC3339)}
		vec, err := Prepare(req, hist, names)
		require.NoError(t, err)
		require.Equal(t, training[hist[k].SprintID]["avg_velocity_last_1_sprints"].Value, vec.Values[1])
		require.InDelta(t, training[hist[k].SprintID]["avg_velocity_last_3_sprints"].Value, vec.Values[2], 1e-12)
	}
}

func TestPrepareWithoutHistoryDefaultFills(t *testing.T) {
	t.Parallel()

	vec, err := Prepare(Request{StartDate: "2020-01-01", PlannedStoryPoints: 5, PlannedIssueCount: 2}, history(10, 20), names)
	require.NoError(t, err)
	require.Equal(t, []float64{5, DefaultFill, DefaultFill, 2}, vec.Values)
}

func TestPrepareIsIdempotentAndPure(t *testing.T) {
	t.Parallel()

	hist := history(30, 10, 20)
	hist[0], hist[2] = hist[2], hist[0]
	snapshot := append([]domain.VelocityPoint(nil), hist...)
	req := Request{StartDate: "2024-01-01", PlannedStoryPoints: 40, PlannedIssueCount: 10}

	first, err := Prepare(req, hist, names)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Prepare(req, hist, names)
		require.NoError(t, err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Fatalf("prepare not idempotent:\n%s", diff)
		}
	}
	require.Equal(t, snapshot, hist)
}

func TestPrepareColumnParityForAnyFeatureList(t *testing.T) {
	t.Parallel()

	lists := [][]string{
		{"planned_issue_count"},
		{"avg_velocity_last_5_sprints", "planned_story_points"},
		{"avg_velocity_last_2_sprints", "avg_velocity_last_1_sprints", "planned_issue_count", "planned_story_points"},
	}
	for _, list := range lists {
		vec, err := Prepare(Request{StartDate: "2023-06-01", PlannedStoryPoints: 1}, history(1, 2, 3), list)
		require.NoError(t, err)
		require.Equal(t, list, vec.Names)
		require.Len(t, vec.Values, len(list))
	}
}

func TestPrepareFailures(t *testing.T) {
	t.Parallel()

	hist := history(10)
	cases := []struct {
		name  string
		req   Request
		names []string
		want  error
	}{
		{"missing start date", Request{}, names, domain.ErrInvalidInput},
		{"unparsable start date", Request{StartDate: "next tuesday"}, names, domain.ErrInvalidInput},
		{"negative points", Request{StartDate: "2024-01-01", PlannedStoryPoints: -1}, names, domain.ErrInvalidInput},
		{"negative count", Request{StartDate: "2024-01-01", PlannedIssueCount: -3}, names, domain.ErrInvalidInput},
		{"unknown feature", Request{StartDate: "2024-01-01"}, []string{"team_mood"}, domain.ErrContractViolation},
		{"duplicate feature", Request{StartDate: "2024-01-01"}, []string{"planned_issue_count", "planned_issue_count"}, domain.ErrContractViolation},
		{"empty features", Request{StartDate: "2024-01-01"}, nil, domain.ErrContractViolation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Prepare(tc.req, hist, tc.names)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}
}

func TestVectorCheckParity(t *testing.T) {
	t.Parallel()

	v := Vector{Names: []string{"a", "b"}, Values: []float64{1, 2}}
	require.NoError(t, v.CheckParity([]string{"a", "b"}))
	require.True(t, errors.Is(v.CheckParity([]string{"b", "a"}), domain.ErrContractViolation))
	require.True(t, errors.Is(v.CheckParity([]string{"a"}), domain.ErrContractViolation))
}

func fittedMean(t *testing.T, width int, value float64) regression.Regressor {
	t.Helper()
	m := &regression.Mean{}
	row := make([]float64, width)
	require.NoError(t, m.Fit([][]float64{row}, []float64{value}))
	return m
}

func TestCachePopulatesOnceForConcurrentReaders(t *testing.T) {
	t.Parallel()

	var loads atomic.Int32
	release := make(chan struct{})
	cache := NewCache(func(ctx context.Context) (*Entry, error) {
		loads.Add(1)
		<-release
		return &Entry{Model: fittedMean(t, len(names), 25), FeatureNames: names, History: history(20, 30)}, nil
	})

	var wg sync.WaitGroup
	entries := make([]*Entry, 8)
	for i := range entries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e, err := cache.Get(context.Background())
			if err == nil {
				entries[i] = e
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), loads.Load())
	for _, e := range entries {
		require.NotNil(t, e)
		require.Same(t, entries[0], e)
	}
}

func TestCacheInvalidateAndReload(t *testing.T) {
	t.Parallel()

	var loads atomic.Int32
	fail := atomic.Bool{}
	cache := NewCache(func(ctx context.Context) (*Entry, error) {
		if fail.Load() {
			return nil, domain.ErrArtifactMissing
		}
		n := loads.Add(1)
		return &Entry{Model: fittedMean(t, 1, float64(n)), FeatureNames: []string{"planned_issue_count"}}, nil
	})

	first, err := cache.Get(context.Background())
	require.NoError(t, err)

	second, err := cache.Reload(context.Background())
	require.NoError(t, err)
	require.NotSame(t, first, second)

	fail.Store(true)
	_, err = cache.Reload(context.Background())
	require.True(t, errors.Is(err, domain.ErrArtifactMissing))
	kept, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.Same(t, second, kept)

	cache.Invalidate()
	_, err = cache.Get(context.Background())
	require.True(t, errors.Is(err, domain.ErrArtifactMissing))
}

type countingObserver struct{ ok, failed int }

func (c *countingObserver) ObservePrediction(err error) {
	if err != nil {
		c.failed++
		return
	}
	c.ok++
}

func TestForecasterPredict(t *testing.T) {
	t.Parallel()

	obs := &countingObserver{}
	cache := NewCache(func(ctx context.Context) (*Entry, error) {
		return &Entry{Model: fittedMean(t, len(names), 27.5), FeatureNames: names, History: history(20, 30)}, nil
	})
	f := NewForecaster(cache, obs, nil)

	v, err := f.Predict(context.Background(), Request{StartDate: "2023-03-01", PlannedStoryPoints: 30, PlannedIssueCount: 8})
	require.NoError(t, err)
	require.Equal(t, 27.5, v)

	_, err = f.Predict(context.Background(), Request{StartDate: "soon"})
	require.True(t, errors.Is(err, domain.ErrInvalidInput))
	require.Equal(t, 1, obs.ok)
	require.Equal(t, 1, obs.failed)
}

func TestForecasterRejectsModelWidthMismatch(t *testing.T) {
	t.Parallel()

	cache := NewCache(func(ctx context.Context) (*Entry, error) {
		return &Entry{Model: fittedMean(t, 2, 10), FeatureNames: names}, nil
	})
	obs := &countingObserver{}
	_, err := NewForecaster(cache, obs, nil).Predict(context.Background(), Request{StartDate: "2023-03-01"})
	require.True(t, errors.Is(err, domain.ErrContractViolation), "got %v", err)
	require.Equal(t, 1, obs.failed)
}
