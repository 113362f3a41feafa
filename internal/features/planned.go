package features

import "VelocityForecast/internal/domain"

// PlannedAggregate sums the work assigned to a sprint before it starts.
type PlannedAggregate struct {
	StoryPoints float64
	IssueCount  int
}

// Planned aggregates assigned issues for every sprint, whatever its state.
// Sprints without issues get zeros.
func Planned(sprints []domain.Sprint, issues []domain.Issue) map[int64]PlannedAggregate {
	bySprint := make(map[int64]PlannedAggregate)
	for _, issue := range issues {
		if issue.SprintID == nil {
			continue
		}
		agg := bySprint[*issue.SprintID]
		agg.StoryPoints += issue.StoryPoints
		agg.IssueCount++
		bySprint[*issue.SprintID] = agg
	}

	out := make(map[int64]PlannedAggregate, len(sprints))
	for _, sprint := range sprints {
		out[sprint.ID] = bySprint[sprint.ID]
	}
	return out
}
