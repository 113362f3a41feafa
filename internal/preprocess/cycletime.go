package preprocess

import (
	"sort"
	"strings"

	"VelocityForecast/internal/domain"
)

const statusField = "status"

// GroupTransitions parses timestamps and groups status transitions per issue,
// ordered by timestamp. Entries with unparsable timestamps or for other fields
// are dropped.
func GroupTransitions(raw []domain.RawTransition) map[int64][]domain.StatusTransition {
	grouped := make(map[int64][]domain.StatusTransition)
	for _, r := range raw {
		field := strings.ToLower(strings.TrimSpace(r.Field))
		if field != "" && field != statusField {
			continue
		}
		ts := ParseDate(r.Timestamp)
		if ts == nil {
			continue
		}
		grouped[r.IssueID] = append(grouped[r.IssueID], domain.StatusTransition{
			IssueID:    r.IssueID,
			Field:      statusField,
			FromStatus: r.FromStatus,
			ToStatus:   r.ToStatus,
			Timestamp:  *ts,
		})
	}
	for id := range grouped {
		history := grouped[id]
		sort.SliceStable(history, func(i, j int) bool {
			return history[i].Timestamp.Before(history[j].Timestamp)
		})
	}
	return grouped
}

// CycleTime returns the days between the first move into an in-progress status
// and the first move into a done status at or after it. Re-entering progress
// does not start a new cycle.
func CycleTime(history []domain.StatusTransition, mapping StatusMapping) domain.Float {
	start := -1
	for i, t := range history {
		if mapping.Is(t.ToStatus, domain.CategoryInProgress) {
			start = i
			break
		}
	}
	if start < 0 {
		return domain.None()
	}

	began := history[start].Timestamp
	for _, t := range history {
		if t.Timestamp.Before(began) {
			continue
		}
		if mapping.Is(t.ToStatus, domain.CategoryDone) {
			return domain.Some(t.Timestamp.Sub(began).Hours() / 24)
		}
	}
	return domain.None()
}
