package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"VelocityForecast/internal/artifact"
	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/features"
	"VelocityForecast/internal/inference"
	"VelocityForecast/internal/ports"
	"VelocityForecast/internal/preprocess"
	"VelocityForecast/internal/training"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source       ports.RecordSource
	Records      ports.RecordRepository
	Tables       ports.TableRepository
	Preprocessor *preprocess.Preprocessor
	Features     *features.Builder
	Trainer      *training.Trainer
	Artifacts    *artifact.Store
	Cache        *inference.Cache
	Forecaster   *inference.Forecaster
	Notifier     ports.Notifier
	Recorder     ports.RunRecorder
	Clock        func() time.Time
	Logger       *slog.Logger
}

// Pipeline implements the stage workflow: seed, preprocess, features, train
// and predict. Each stage reads what the previous one persisted.
type Pipeline struct {
	source       ports.RecordSource
	records      ports.RecordRepository
	tables       ports.TableRepository
	preprocessor *preprocess.Preprocessor
	features     *features.Builder
	trainer      *training.Trainer
	artifacts    *artifact.Store
	cache        *inference.Cache
	forecaster   *inference.Forecaster
	notifier     ports.Notifier
	recorder     ports.RunRecorder
	clock        func() time.Time
	logger       *slog.Logger
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		source:       deps.Source,
		records:      deps.Records,
		tables:       deps.Tables,
		preprocessor: deps.Preprocessor,
		features:     deps.Features,
		trainer:      deps.Trainer,
		artifacts:    deps.Artifacts,
		cache:        deps.Cache,
		forecaster:   deps.Forecaster,
		notifier:     deps.Notifier,
		recorder:     deps.Recorder,
		clock:        clock,
		logger:       logger,
	}
}

// Seed fetches raw records from the configured sources and stores them.
func (p *Pipeline) Seed(ctx context.Context) (domain.Records, error) {
	if p.source == nil || p.records == nil {
		return domain.Records{}, errors.New("seed needs a source and a record repository")
	}

	records, err := p.source.Fetch(ctx)
	if err != nil {
		return domain.Records{}, fmt.Errorf("fetch records: %w", err)
	}
	if err := p.records.SaveRecords(ctx, records); err != nil {
		return domain.Records{}, fmt.Errorf("store records: %w", err)
	}

	p.logger.Info("records seeded",
		"sprints", len(records.Sprints),
		"issues", len(records.Issues),
		"transitions", len(records.Transitions))
	return records, nil
}

// Preprocess normalizes the source records and persists the stage tables.
func (p *Pipeline) Preprocess(ctx context.Context) (preprocess.Result, error) {
	if p.source == nil || p.preprocessor == nil || p.tables == nil {
		return preprocess.Result{}, errors.New("preprocess needs a source, a preprocessor and a table repository")
	}

	records, err := p.source.Fetch(ctx)
	if err != nil {
		return preprocess.Result{}, fmt.Errorf("fetch records: %w", err)
	}

	res := p.preprocessor.Run(records)

	if err := p.tables.SaveSprints(ctx, res.Sprints.Sprints); err != nil {
		return preprocess.Result{}, fmt.Errorf("persist sprints: %w", err)
	}
	if err := p.tables.SaveIssues(ctx, res.Issues.Issues); err != nil {
		return preprocess.Result{}, fmt.Errorf("persist issues: %w", err)
	}
	if err := p.tables.SaveVelocity(ctx, res.Velocity.Sprints); err != nil {
		return preprocess.Result{}, fmt.Errorf("persist velocity: %w", err)
	}
	return res, nil
}

// BuildFeatures assembles the feature table from the persisted stage tables.
func (p *Pipeline) BuildFeatures(ctx context.Context) (domain.FeatureTable, error) {
	if p.features == nil || p.tables == nil {
		return domain.FeatureTable{}, errors.New("features needs a builder and a table repository")
	}

	sprints, err := p.tables.LoadSprints(ctx)
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("load sprints: %w", err)
	}
	issues, err := p.tables.LoadIssues(ctx)
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("load issues: %w", err)
	}
	velocity, err := p.tables.LoadVelocity(ctx)
	if err != nil {
		return domain.FeatureTable{}, fmt.Errorf("load velocity: %w", err)
	}
	if len(sprints) == 0 {
		return domain.FeatureTable{}, fmt.Errorf("%w: no sprints stored, run preprocess first", domain.ErrInsufficientData)
	}

	table := p.features.Build(sprints, issues, velocity)
	if err := p.tables.SaveFeatures(ctx, table); err != nil {
		return domain.FeatureTable{}, fmt.Errorf("persist features: %w", err)
	}
	return table, nil
}

// Train fits the model on the persisted feature table, saves the artifact and
// drops any cached inference entry. The digest is published when a notifier
// is configured; a failed notification does not fail the run.
func (p *Pipeline) Train(ctx context.Context) (artifact.Artifact, error) {
	started := p.clock()
	art, err := p.train(ctx, started)
	if p.recorder != nil {
		p.recorder.ObserveTraining(p.clock().Sub(started), art.Rows, art.ValidationMAE, err)
	}
	if err != nil {
		return artifact.Artifact{}, err
	}

	if p.notifier != nil {
		if nErr := p.notifier.PublishDigest(ctx, TrainingDigest(art)); nErr != nil {
			p.logger.Warn("training digest not delivered", "error", nErr)
		}
	}
	return art, nil
}

func (p *Pipeline) train(ctx context.Context, started time.Time) (artifact.Artifact, error) {
	if p.trainer == nil || p.tables == nil || p.artifacts == nil {
		return artifact.Artifact{}, errors.New("train needs a trainer, a table repository and an artifact store")
	}

	table, err := p.tables.LoadFeatures(ctx)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("load features: %w", err)
	}

	res, err := p.trainer.Train(ctx, table)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("train model: %w", err)
	}

	art := artifact.Artifact{
		Model:         res.Model,
		FeatureNames:  res.FeatureNames,
		RunID:         uuid.NewString(),
		TrainedAt:     started.UTC(),
		ValidationMAE: res.ValidationMAE,
		Folds:         res.Folds,
		Rows:          res.Rows,
	}
	if err := p.artifacts.Save(art); err != nil {
		return artifact.Artifact{}, fmt.Errorf("save artifact: %w", err)
	}
	if p.cache != nil {
		p.cache.Invalidate()
	}

	p.logger.Info("model saved",
		"run_id", art.RunID,
		"model", p.artifacts.ModelPath(),
		"features", p.artifacts.FeaturesPath(),
		"validation_mae", art.ValidationMAE)
	return art, nil
}

// Run executes every stage after acquisition, as the scheduled job does.
func (p *Pipeline) Run(ctx context.Context, trigger time.Time) error {
	p.logger.Info("pipeline run started", "trigger", trigger.Format(time.RFC3339))

	if _, err := p.Preprocess(ctx); err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	if _, err := p.BuildFeatures(ctx); err != nil {
		return fmt.Errorf("build features: %w", err)
	}
	if _, err := p.Train(ctx); err != nil {
		return fmt.Errorf("train: %w", err)
	}

	p.logger.Info("pipeline run finished", "elapsed", p.clock().Sub(trigger).String())
	return nil
}

// Forecast predicts the velocity of one upcoming sprint.
func (p *Pipeline) Forecast(ctx context.Context, req inference.Request) (float64, error) {
	if p.forecaster == nil {
		return 0, errors.New("forecast needs a forecaster")
	}
	return p.forecaster.Predict(ctx, req)
}

// NextSprintRequest fills a request whose start date is left empty with the
// day two weeks after the latest stored sprint start.
func (p *Pipeline) NextSprintRequest(ctx context.Context, req inference.Request) (inference.Request, error) {
	if strings.TrimSpace(req.StartDate) != "" {
		return req, nil
	}
	if p.cache == nil {
		return inference.Request{}, fmt.Errorf("%w: start date is required", domain.ErrInvalidInput)
	}

	entry, err := p.cache.Get(ctx)
	if err != nil {
		return inference.Request{}, err
	}

	var latest time.Time
	for _, pt := range entry.History {
		if pt.StartDate.After(latest) {
			latest = pt.StartDate
		}
	}
	if latest.IsZero() {
		return inference.Request{}, fmt.Errorf("%w: no dated velocity history to derive a start date", domain.ErrInsufficientData)
	}

	req.StartDate = latest.AddDate(0, 0, 14).Format("2006-01-02")
	p.logger.Info("start date derived from history", "last_start", latest.Format("2006-01-02"), "start_date", req.StartDate)
	return req, nil
}

// Announce publishes a digest through the configured notifier.
func (p *Pipeline) Announce(ctx context.Context, digest string) error {
	if p.notifier == nil {
		return errors.New("no notifier configured")
	}
	if err := p.notifier.PublishDigest(ctx, digest); err != nil {
		return fmt.Errorf("publish digest: %w", err)
	}
	return nil
}

// TrainingDigest renders the run summary sent to notification channels.
func TrainingDigest(art artifact.Artifact) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Velocity model retrained (%s)\n", art.TrainedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Run: %s\n", art.RunID)
	fmt.Fprintf(&b, "Learner: %s, rows: %d\n", art.Model.Kind(), art.Rows)
	fmt.Fprintf(&b, "Features: %s\n", strings.Join(art.FeatureNames, ", "))
	if art.ValidationMAE.Valid {
		fmt.Fprintf(&b, "Validation MAE: %.2f over %d folds\n", art.ValidationMAE.Value, len(art.Folds))
	} else {
		fmt.Fprintf(&b, "Validation MAE: undefined (%d folds)\n", len(art.Folds))
	}
	return b.String()
}

// ForecastDigest renders a single prediction.
func ForecastDigest(req inference.Request, velocity float64) string {
	return fmt.Sprintf("Sprint starting %s: predicted velocity %.2f (planned %.1f points, %d issues)",
		req.StartDate, velocity, req.PlannedStoryPoints, req.PlannedIssueCount)
}
