package features

import (
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"VelocityForecast/internal/domain"
)

func day(offset int) *time.Time {
	d := time.Date(2023, 1, 9, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 14*offset)
	return &d
}

func closedSeries(velocities ...float64) []domain.SprintVelocity {
	out := make([]domain.SprintVelocity, len(velocities))
	for i, v := range velocities {
		out[i] = domain.SprintVelocity{
			Sprint:         domain.Sprint{ID: int64(i + 1), StartDate: day(i), State: domain.SprintClosed},
			ActualVelocity: v,
		}
	}
	return out
}

func sid(v int64) *int64 { return &v }

func TestHistoricalWindowOne(t *testing.T) {
	t.Parallel()

	got := Historical(closedSeries(10, 20, 30), []int{1})
	col := WindowColumn(1)

	require.False(t, got[1][col].Valid)
	require.Equal(t, domain.Some(10), got[2][col])
	require.Equal(t, domain.Some(20), got[3][col])
}

func TestHistoricalRollingMeanWithPartialWindow(t *testing.T) {
	t.Parallel()

	got := Historical(closedSeries(10, 20, 30, 40), []int{3})
	col := WindowColumn(3)

	want := []domain.Float{domain.None(), domain.Some(10), domain.Some(15), domain.Some(20)}
	for i, w := range want {
		if diff := cmp.Diff(w, got[int64(i+1)][col]); diff != "" {
			t.Fatalf("sprint %d mismatch (-want +got):\n%s", i+1, diff)
		}
	}
}

func TestHistoricalSortsByStartDate(t *testing.T) {
	t.Parallel()

	series := closedSeries(10, 20, 30)
	shuffled := []domain.SprintVelocity{series[2], series[0], series[1]}
	got := Historical(shuffled, []int{1})

	require.Equal(t, domain.Some(20), got[3][WindowColumn(1)])
	require.Equal(t, int64(3), shuffled[0].Sprint.ID, "input must not be reordered")
}

func TestHistoricalIgnoresCurrentAndFutureSprints(t *testing.T) {
	t.Parallel()

	windows := []int{1, 3, 5}
	base := closedSeries(12, 7, 19, 4, 23, 11, 8)
	reference := Historical(base, windows)

	for k := range base {
		mutated := make([]domain.SprintVelocity, len(base))
		copy(mutated, base)
		for j := k; j < len(mutated); j++ {
			mutated[j].ActualVelocity = 1000 + float64(j)
		}
		got := Historical(mutated, windows)

		sprintID := base[k].Sprint.ID
		if diff := cmp.Diff(reference[sprintID], got[sprintID]); diff != "" {
			t.Fatalf("sprint %d features changed after mutating sprint %d onwards:\n%s", sprintID, k+1, diff)
		}
	}
}

func TestHistoricalWindowOneEqualsPreviousVelocity(t *testing.T) {
	t.Parallel()

	series := closedSeries(3, 9, 27, 81, 0, 5)
	got := Historical(series, []int{1})
	for k := 1; k < len(series); k++ {
		require.Equal(t, series[k-1].ActualVelocity, got[series[k].Sprint.ID][WindowColumn(1)].Value)
	}
}

func TestPlannedZeroForEmptySprint(t *testing.T) {
	t.Parallel()

	sprints := []domain.Sprint{{ID: 1}, {ID: 2}, {ID: 3, State: domain.SprintFuture}}
	issues := []domain.Issue{
		{ID: 1, StoryPoints: 3, SprintID: sid(1)},
		{ID: 2, StoryPoints: 5, SprintID: sid(1)},
		{ID: 3, StoryPoints: 8, SprintID: sid(3)},
		{ID: 4, StoryPoints: 2},
	}

	got := Planned(sprints, issues)
	require.Equal(t, PlannedAggregate{StoryPoints: 8, IssueCount: 2}, got[1])
	require.Equal(t, PlannedAggregate{}, got[2])
	require.Equal(t, PlannedAggregate{StoryPoints: 8, IssueCount: 1}, got[3])
}

func TestBuildCombinesFamilies(t *testing.T) {
	t.Parallel()

	velocity := closedSeries(10, 20)
	sprints := []domain.Sprint{velocity[0].Sprint, velocity[1].Sprint, {ID: 3, StartDate: day(2), State: domain.SprintActive}}
	issues := []domain.Issue{{ID: 1, StoryPoints: 5, SprintID: sid(3)}}

	table := NewBuilder([]int{1, 3}, nil).Build(sprints, issues, velocity)

	require.Equal(t, []string{
		domain.ColumnPlannedStoryPoints,
		domain.ColumnPlannedIssueCount,
		"avg_velocity_last_1_sprints",
		"avg_velocity_last_3_sprints",
	}, table.Columns)
	require.Len(t, table.Rows, 3)

	first, _ := table.Row(1)
	require.Equal(t, domain.Some(10), first.ActualVelocity)
	require.False(t, first.Values[WindowColumn(1)].Valid)
	require.Equal(t, domain.Some(0), first.Values[domain.ColumnPlannedIssueCount])

	second, _ := table.Row(2)
	require.Equal(t, domain.Some(10), second.Values[WindowColumn(1)])

	active, _ := table.Row(3)
	require.False(t, active.ActualVelocity.Valid)
	require.False(t, active.Values[WindowColumn(1)].Valid)
	require.Equal(t, domain.Some(1), active.Values[domain.ColumnPlannedIssueCount])
}

func TestValidateColumns(t *testing.T) {
	t.Parallel()

	require.NoError(t, ValidateColumns([]string{"avg_velocity_last_3_sprints", "planned_story_points"}, []int{1, 3}))

	err := ValidateColumns([]string{"avg_velocity_last_5_sprints"}, []int{1, 3})
	require.True(t, errors.Is(err, domain.ErrInvalidInput))

	err = ValidateColumns([]string{"planned_issue_count", "planned_issue_count"}, []int{1})
	require.True(t, errors.Is(err, domain.ErrInvalidInput))

	require.Error(t, ValidateColumns(nil, []int{1}))
}

func TestParseWindowColumn(t *testing.T) {
	t.Parallel()

	w, ok := ParseWindowColumn("avg_velocity_last_12_sprints")
	require.True(t, ok)
	require.Equal(t, 12, w)

	_, ok = ParseWindowColumn("avg_velocity_last_0_sprints")
	require.False(t, ok)
	_, ok = ParseWindowColumn("planned_story_points")
	require.False(t, ok)
}
