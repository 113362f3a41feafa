package inference

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"

	"VelocityForecast/internal/domain"
)

var requestValidate = validator.New(validator.WithRequiredStructEnabled())

// Request describes the sprint to forecast.
type Request struct {
	StartDate          string  `json:"start_date" yaml:"start_date" validate:"required"`
	PlannedStoryPoints float64 `json:"planned_story_points" yaml:"planned_story_points" validate:"gte=0"`
	PlannedIssueCount  int     `json:"planned_issue_count" yaml:"planned_issue_count" validate:"gte=0"`
}

// Validate checks field constraints.
func (r Request) Validate() error {
	if err := requestValidate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("%w: field %s failed %s", domain.ErrInvalidInput, verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}
