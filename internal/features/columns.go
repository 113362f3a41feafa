package features

import (
	"fmt"
	"regexp"
	"strconv"

	"VelocityForecast/internal/domain"
)

var windowColumnExpr = regexp.MustCompile(`^avg_velocity_last_(\d+)_sprints$`)

// WindowColumn names the historical feature for a window size.
func WindowColumn(window int) string {
	return fmt.Sprintf("avg_velocity_last_%d_sprints", window)
}

// ParseWindowColumn extracts the window size from a historical feature name.
func ParseWindowColumn(column string) (int, bool) {
	match := windowColumnExpr.FindStringSubmatch(column)
	if match == nil {
		return 0, false
	}
	w, err := strconv.Atoi(match[1])
	if err != nil || w < 1 {
		return 0, false
	}
	return w, true
}

// Columns lists every feature column produced for the windows, in table order.
func Columns(windows []int) []string {
	cols := []string{domain.ColumnPlannedStoryPoints, domain.ColumnPlannedIssueCount}
	for _, w := range windows {
		cols = append(cols, WindowColumn(w))
	}
	return cols
}

// ValidateColumns checks a configured feature list against the vocabulary the
// builder produces for the configured windows.
func ValidateColumns(names []string, windows []int) error {
	if len(names) == 0 {
		return fmt.Errorf("%w: feature list is empty", domain.ErrInvalidInput)
	}
	known := make(map[string]bool)
	for _, col := range Columns(windows) {
		known[col] = true
	}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			return fmt.Errorf("%w: duplicate feature %s", domain.ErrInvalidInput, name)
		}
		seen[name] = true
		if !known[name] {
			return fmt.Errorf("%w: unknown feature %s for windows %v", domain.ErrInvalidInput, name, windows)
		}
	}
	return nil
}
