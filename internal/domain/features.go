package domain

import (
	"fmt"
	"time"
)

const (
	ColumnPlannedStoryPoints = "planned_story_points"
	ColumnPlannedIssueCount  = "planned_issue_count"
	ColumnActualVelocity     = "actual_velocity"
)

// FeatureRow holds every feature of one sprint.
type FeatureRow struct {
	SprintID       int64
	State          SprintState
	StartDate      *time.Time
	Values         map[string]Float
	ActualVelocity Float
}

// Lookup resolves a column by name, including the target column.
func (r FeatureRow) Lookup(column string) (Float, bool) {
	if column == ColumnActualVelocity {
		return r.ActualVelocity, true
	}
	v, ok := r.Values[column]
	return v, ok
}

// FeatureTable is the feature set keyed by sprint, with a stable column order.
type FeatureTable struct {
	Columns []string
	Rows    []FeatureRow
}

// Row returns the row of a sprint.
func (t FeatureTable) Row(sprintID int64) (FeatureRow, bool) {
	for _, row := range t.Rows {
		if row.SprintID == sprintID {
			return row, true
		}
	}
	return FeatureRow{}, false
}

// Vector extracts the named columns of a row in order; undefined values are an error.
func (r FeatureRow) Vector(columns []string) ([]float64, error) {
	out := make([]float64, len(columns))
	for i, col := range columns {
		v, ok := r.Lookup(col)
		if !ok {
			return nil, fmt.Errorf("%w: sprint %d has no column %s", ErrContractViolation, r.SprintID, col)
		}
		if !v.Valid {
			return nil, fmt.Errorf("%w: sprint %d column %s is undefined", ErrInsufficientData, r.SprintID, col)
		}
		out[i] = v.Value
	}
	return out, nil
}
