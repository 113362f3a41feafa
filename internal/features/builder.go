package features

import (
	"log/slog"

	"VelocityForecast/internal/domain"
)

// Combine joins planned features (one row per sprint) with historical
// features, which only closed sprints carry. The actual_velocity target is
// kept for closed sprints.
func Combine(
	sprints []domain.Sprint,
	planned map[int64]PlannedAggregate,
	historical map[int64]map[string]domain.Float,
	velocity []domain.SprintVelocity,
	windows []int,
) domain.FeatureTable {
	target := make(map[int64]float64, len(velocity))
	for _, sv := range velocity {
		target[sv.Sprint.ID] = sv.ActualVelocity
	}

	table := domain.FeatureTable{
		Columns: Columns(windows),
		Rows:    make([]domain.FeatureRow, 0, len(sprints)),
	}
	for _, sprint := range sprints {
		agg := planned[sprint.ID]
		row := domain.FeatureRow{
			SprintID:  sprint.ID,
			State:     sprint.State,
			StartDate: sprint.StartDate,
			Values: map[string]domain.Float{
				domain.ColumnPlannedStoryPoints: domain.Some(agg.StoryPoints),
				domain.ColumnPlannedIssueCount:  domain.Some(float64(agg.IssueCount)),
			},
		}

		hist := historical[sprint.ID]
		for _, w := range windows {
			col := WindowColumn(w)
			row.Values[col] = hist[col]
		}

		if v, ok := target[sprint.ID]; ok && sprint.Closed() {
			row.ActualVelocity = domain.Some(v)
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// Builder derives the feature table from preprocessed tables.
type Builder struct {
	windows []int
	logger  *slog.Logger
}

// NewBuilder configures the rolling windows.
func NewBuilder(windows []int, logger *slog.Logger) *Builder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Builder{windows: append([]int(nil), windows...), logger: logger}
}

// Build runs the historical and planned families and combines them.
func (b *Builder) Build(sprints []domain.Sprint, issues []domain.Issue, velocity []domain.SprintVelocity) domain.FeatureTable {
	if _, dropped := SortByStart(velocity); dropped > 0 {
		b.logger.Warn("closed sprints without start date excluded from history", "count", dropped)
	}
	b.logger.Info("generating historical velocity features", "windows", b.windows, "closed_sprints", len(velocity))
	historical := Historical(velocity, b.windows)

	b.logger.Info("generating planned features", "sprints", len(sprints), "issues", len(issues))
	planned := Planned(sprints, issues)

	table := Combine(sprints, planned, historical, velocity, b.windows)
	b.logger.Info("feature table combined", "rows", len(table.Rows), "columns", table.Columns)
	return table
}
