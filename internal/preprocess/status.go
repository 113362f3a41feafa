package preprocess

import (
	"strings"

	"VelocityForecast/internal/domain"
)

// StatusMapping resolves raw tracker statuses to categories, case-insensitively.
type StatusMapping struct {
	reverse map[string]domain.StatusCategory
}

// NewStatusMapping inverts a {category: [raw statuses]} configuration block.
func NewStatusMapping(categories map[string][]string) StatusMapping {
	reverse := make(map[string]domain.StatusCategory)
	for category, statuses := range categories {
		for _, status := range statuses {
			reverse[normalizeStatus(status)] = domain.StatusCategory(strings.ToLower(strings.TrimSpace(category)))
		}
	}
	return StatusMapping{reverse: reverse}
}

// Category maps a raw status; unmapped statuses fall into "other".
func (m StatusMapping) Category(status string) domain.StatusCategory {
	if category, ok := m.reverse[normalizeStatus(status)]; ok {
		return category
	}
	return domain.CategoryOther
}

// Is reports whether the status belongs to the category.
func (m StatusMapping) Is(status string, category domain.StatusCategory) bool {
	return m.Category(status) == category
}

func normalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}
