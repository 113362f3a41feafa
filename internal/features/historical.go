package features

import (
	"sort"

	"VelocityForecast/internal/domain"
)

// TrailingMean averages the last w values of a series of strictly prior
// velocities. Fewer than w values are averaged as available; an empty series
// is undefined. Training and inference both go through here.
func TrailingMean(prior []float64, w int) domain.Float {
	if w < 1 || len(prior) == 0 {
		return domain.None()
	}
	from := len(prior) - w
	if from < 0 {
		from = 0
	}
	var sum float64
	for _, v := range prior[from:] {
		sum += v
	}
	return domain.Some(sum / float64(len(prior)-from))
}

// SortByStart returns a copy of closed sprints ordered by start date. Sprints
// without a start date are dropped and counted.
func SortByStart(closed []domain.SprintVelocity) ([]domain.SprintVelocity, int) {
	sorted := make([]domain.SprintVelocity, 0, len(closed))
	var dropped int
	for _, sv := range closed {
		if sv.Sprint.StartDate == nil {
			dropped++
			continue
		}
		sorted = append(sorted, sv)
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Sprint.StartDate.Before(*sorted[j].Sprint.StartDate)
	})
	return sorted, dropped
}

// Historical computes, for every closed sprint, the trailing mean of actual
// velocity over the w sprints strictly before it, for each window. The first
// sprint has every historical feature undefined.
func Historical(closed []domain.SprintVelocity, windows []int) map[int64]map[string]domain.Float {
	sorted, _ := SortByStart(closed)

	out := make(map[int64]map[string]domain.Float, len(sorted))
	prior := make([]float64, 0, len(sorted))
	for _, sv := range sorted {
		values := make(map[string]domain.Float, len(windows))
		for _, w := range windows {
			values[WindowColumn(w)] = TrailingMean(prior, w)
		}
		out[sv.Sprint.ID] = values
		prior = append(prior, sv.ActualVelocity)
	}
	return out
}
