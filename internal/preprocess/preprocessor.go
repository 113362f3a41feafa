package preprocess

import (
	"log/slog"

	"VelocityForecast/internal/domain"
)

// Result is the output of one preprocessing run.
type Result struct {
	Sprints  SprintTable
	Issues   IssueTable
	Velocity VelocityTable
}

// Preprocessor normalizes one acquisition batch and logs what it recovered from.
type Preprocessor struct {
	mapping StatusMapping
	logger  *slog.Logger
}

// New builds a preprocessor for the configured status mapping.
func New(mapping StatusMapping, logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Preprocessor{mapping: mapping, logger: logger}
}

// Run normalizes sprints and issues and computes actual velocity for closed sprints.
func (p *Preprocessor) Run(records domain.Records) Result {
	p.logger.Info("preprocessing sprints", "count", len(records.Sprints))
	sprints := NormalizeSprints(records.Sprints)
	if sprints.Unparsable > 0 {
		p.logger.Warn("sprints with unparsable dates", "count", sprints.Unparsable)
	}
	if sprints.InvalidRange > 0 {
		p.logger.Warn("sprints ending or completing before start, duration left undefined", "count", sprints.InvalidRange)
	}

	p.logger.Info("preprocessing issues", "count", len(records.Issues), "transitions", len(records.Transitions))
	issues := NormalizeIssues(records.Issues, records.Transitions, p.mapping)
	p.logger.Info("imputed story points",
		"imputed", issues.Imputed,
		"mean", issues.ImputedMean,
		"cycle_times", issues.CycleTimes,
		"categories", issues.CategoryCounts(),
	)

	closed := sprints.Closed()
	if len(closed) == 0 {
		p.logger.Warn("no closed sprints, velocity history is empty")
	}
	velocity := ActualVelocity(issues.Issues, closed)
	p.logger.Info("actual velocity computed", "closed_sprints", len(velocity.Sprints))

	return Result{Sprints: sprints, Issues: issues, Velocity: velocity}
}
