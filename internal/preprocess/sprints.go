package preprocess

import (
	"strings"
	"time"

	"VelocityForecast/internal/domain"
)

// SprintTable is the normalized sprint batch.
type SprintTable struct {
	Sprints []domain.Sprint
	// Unparsable counts sprints with at least one date that failed to parse.
	Unparsable int
	// InvalidRange counts sprints ending or completing before they start.
	InvalidRange int
}

// NormalizeSprints parses dates and derives the inclusive duration in days.
func NormalizeSprints(raw []domain.RawSprint) SprintTable {
	table := SprintTable{Sprints: make([]domain.Sprint, 0, len(raw))}
	for _, r := range raw {
		sprint := domain.Sprint{
			ID:            r.ID,
			Name:          r.Name,
			StartDate:     ParseDate(r.StartDate),
			EndDate:       ParseDate(r.EndDate),
			CompletedDate: ParseDate(r.CompletedDate),
			State:         parseState(r.State),
			Goal:          r.Goal,
		}
		if failed(r.StartDate, sprint.StartDate) || failed(r.EndDate, sprint.EndDate) || failed(r.CompletedDate, sprint.CompletedDate) {
			table.Unparsable++
		}

		if invalidRange(sprint) {
			table.InvalidRange++
		} else if sprint.StartDate != nil && sprint.EndDate != nil {
			days := int(sprint.EndDate.Sub(*sprint.StartDate).Hours()/24) + 1
			sprint.DurationDays = &days
		}
		table.Sprints = append(table.Sprints, sprint)
	}
	return table
}

// Closed returns the closed sprints in input order.
func (t SprintTable) Closed() []domain.Sprint {
	closed := make([]domain.Sprint, 0, len(t.Sprints))
	for _, s := range t.Sprints {
		if s.Closed() {
			closed = append(closed, s)
		}
	}
	return closed
}

func parseState(value string) domain.SprintState {
	switch domain.SprintState(strings.ToLower(strings.TrimSpace(value))) {
	case domain.SprintClosed:
		return domain.SprintClosed
	case domain.SprintActive:
		return domain.SprintActive
	default:
		return domain.SprintFuture
	}
}

// invalidRange reports an end or completion date before the start date.
func invalidRange(s domain.Sprint) bool {
	if s.StartDate == nil {
		return false
	}
	if s.EndDate != nil && s.EndDate.Before(*s.StartDate) {
		return true
	}
	return s.CompletedDate != nil && s.CompletedDate.Before(*s.StartDate)
}

func failed(raw string, parsed *time.Time) bool {
	return strings.TrimSpace(raw) != "" && parsed == nil
}
