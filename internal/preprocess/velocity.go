package preprocess

import "VelocityForecast/internal/domain"

// VelocityTable holds the actual velocity of every closed sprint.
type VelocityTable struct {
	Sprints []domain.SprintVelocity
}

// ActualVelocity sums the story points of done issues per closed sprint. A
// closed sprint without done issues gets 0, not an undefined value.
func ActualVelocity(issues []domain.Issue, closed []domain.Sprint) VelocityTable {
	done := make(map[int64]float64)
	for _, issue := range issues {
		if issue.StatusCategory != domain.CategoryDone || issue.SprintID == nil {
			continue
		}
		done[*issue.SprintID] += issue.StoryPoints
	}

	table := VelocityTable{Sprints: make([]domain.SprintVelocity, 0, len(closed))}
	for _, sprint := range closed {
		if !sprint.Closed() {
			continue
		}
		table.Sprints = append(table.Sprints, domain.SprintVelocity{
			Sprint:         sprint,
			ActualVelocity: done[sprint.ID],
		})
	}
	return table
}

// Series returns the dated velocity history ordered as stored. Sprints
// without a start date cannot be placed in time and are skipped.
func (t VelocityTable) Series() []domain.VelocityPoint {
	points := make([]domain.VelocityPoint, 0, len(t.Sprints))
	for _, sv := range t.Sprints {
		if sv.Sprint.StartDate == nil {
			continue
		}
		points = append(points, domain.VelocityPoint{
			SprintID:       sv.Sprint.ID,
			StartDate:      *sv.Sprint.StartDate,
			ActualVelocity: sv.ActualVelocity,
		})
	}
	return points
}
