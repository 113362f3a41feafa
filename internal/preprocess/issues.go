package preprocess

import (
	"math"
	"strconv"
	"strings"

	"VelocityForecast/internal/domain"
)

// IssueTable is the normalized issue batch.
type IssueTable struct {
	Issues []domain.Issue
	// ImputedMean is the batch mean used for missing story points. It changes
	// with the batch, so features computed from a different batch may drift.
	ImputedMean float64
	Imputed     int
	// CycleTimes counts issues with a defined cycle time.
	CycleTimes int
}

// NormalizeIssues parses story points, imputes missing ones with the batch
// mean, maps status categories and derives cycle times from the transitions.
func NormalizeIssues(raw []domain.RawIssue, transitions []domain.RawTransition, mapping StatusMapping) IssueTable {
	history := GroupTransitions(transitions)

	points := make([]domain.Float, len(raw))
	var sum float64
	var known int
	for i, r := range raw {
		points[i] = parsePoints(r.StoryPoints)
		if points[i].Valid {
			sum += points[i].Value
			known++
		}
	}

	table := IssueTable{Issues: make([]domain.Issue, 0, len(raw))}
	if known > 0 {
		table.ImputedMean = sum / float64(known)
	}

	for i, r := range raw {
		issue := domain.Issue{
			ID:             r.ID,
			Key:            r.Key,
			ProjectKey:     r.ProjectKey,
			Type:           r.Type,
			Status:         r.Status,
			StatusCategory: mapping.Category(r.Status),
			StoryPoints:    points[i].Or(table.ImputedMean),
			Created:        ParseDate(r.Created),
			Resolved:       ParseDate(r.Resolved),
			SprintID:       r.SprintID,
			CycleTimeDays:  CycleTime(history[r.ID], mapping),
		}
		if !points[i].Valid {
			issue.StoryPointsImputed = true
			table.Imputed++
		}
		if issue.CycleTimeDays.Valid {
			table.CycleTimes++
		}
		table.Issues = append(table.Issues, issue)
	}

	return table
}

// CategoryCounts tallies issues per status category.
func (t IssueTable) CategoryCounts() map[domain.StatusCategory]int {
	counts := make(map[domain.StatusCategory]int)
	for _, issue := range t.Issues {
		counts[issue.StatusCategory]++
	}
	return counts
}

func parsePoints(value string) domain.Float {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.None()
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return domain.None()
	}
	return domain.Some(v)
}
