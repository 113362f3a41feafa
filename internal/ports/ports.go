package ports

import (
	"context"
	"time"

	"VelocityForecast/internal/domain"
)

// RecordSource pulls raw sprint, issue and transition records from upstream.
type RecordSource interface {
	Fetch(ctx context.Context) (domain.Records, error)
}

// RecordRepository keeps the raw records between stages.
type RecordRepository interface {
	SaveRecords(ctx context.Context, records domain.Records) error
	LoadRecords(ctx context.Context) (domain.Records, error)
}

// TableRepository persists the processed tables each stage produces.
type TableRepository interface {
	SaveSprints(ctx context.Context, sprints []domain.Sprint) error
	LoadSprints(ctx context.Context) ([]domain.Sprint, error)
	SaveIssues(ctx context.Context, issues []domain.Issue) error
	LoadIssues(ctx context.Context) ([]domain.Issue, error)
	SaveVelocity(ctx context.Context, velocity []domain.SprintVelocity) error
	LoadVelocity(ctx context.Context) ([]domain.SprintVelocity, error)
	SaveFeatures(ctx context.Context, table domain.FeatureTable) error
	LoadFeatures(ctx context.Context) (domain.FeatureTable, error)
}

// Notifier streams training and forecast digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when retraining executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}

// RunRecorder observes training runs.
type RunRecorder interface {
	ObserveTraining(duration time.Duration, rows int, validationMAE domain.Float, err error)
}
