package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"VelocityForecast/internal/artifact"
	"VelocityForecast/internal/config"
	"VelocityForecast/internal/features"
	"VelocityForecast/internal/inference"
	"VelocityForecast/internal/infrastructure/ml"
	"VelocityForecast/internal/infrastructure/scheduler"
	"VelocityForecast/internal/infrastructure/storage"
	"VelocityForecast/internal/infrastructure/telegram"
	"VelocityForecast/internal/infrastructure/tracker"
	"VelocityForecast/internal/logging"
	"VelocityForecast/internal/metrics"
	"VelocityForecast/internal/ports"
	"VelocityForecast/internal/preprocess"
	"VelocityForecast/internal/regression"
	"VelocityForecast/internal/source"
	"VelocityForecast/internal/training"
	"VelocityForecast/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	db        *sql.DB
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	recorder  *metrics.Recorder
}

// New validates the configuration, opens the table store and builds every
// stage of the pipeline.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	db, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	if err := storage.Migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	repo, err := storage.NewSQLRepository(db, cfg.Database.Driver)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	learners := regression.NewRegistry()
	if cfg.ML.Endpoint != "" {
		ml.Register(learners, ml.NewClient(cfg.ML.Endpoint, cfg.ML.APIKey))
	}
	newModel, err := learners.Constructor(cfg.VelocityModel.Learner, cfg.VelocityModel.ModelParams)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("learner (registered: %v): %w", learners.Kinds(), err)
	}

	strategies := source.NewRegistry()
	strategies.Register(tracker.NewMockGenerator(nil))
	strategies.Register(tracker.NewHTMLExport(nil, logging.Component(baseLogger, "source.html_export")))
	strategies.Register(tracker.NewStoreSource(repo))
	records := source.NewMulti(strategies, cfg.Sources, logging.Component(baseLogger, "source"))

	artifacts := artifact.NewStore(cfg.Paths.ModelsDir, cfg.Paths.ModelName, learners)
	cache := inference.NewCache(usecase.InferenceLoader(artifacts, repo))
	recorder := metrics.New()

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:       records,
		Records:      repo,
		Tables:       repo,
		Preprocessor: preprocess.New(preprocess.NewStatusMapping(cfg.StatusMapping), logging.Component(baseLogger, "preprocess")),
		Features:     features.NewBuilder(cfg.VelocityModel.Windows, logging.Component(baseLogger, "features")),
		Trainer: training.NewTrainer(training.Config{
			FeatureColumns: cfg.VelocityModel.Features,
			TargetColumn:   cfg.VelocityModel.TargetMetric,
			NSplits:        cfg.VelocityModel.NSplits,
			ParallelFolds:  cfg.VelocityModel.ParallelFolds,
		}, newModel, logging.Component(baseLogger, "training")),
		Artifacts:  artifacts,
		Cache:      cache,
		Forecaster: inference.NewForecaster(cache, recorder, logging.Component(baseLogger, "inference")),
		Notifier:   notifier,
		Recorder:   recorder,
		Logger:     logging.Component(baseLogger, "pipeline"),
	})

	driver := scheduler.NewCronScheduler(cfg.Scheduler.CronExpression, cfg.Scheduler.Location(), logging.Component(baseLogger, "scheduler"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		db:        db,
		pipeline:  pipeline,
		scheduler: usecase.NewScheduler(driver, pipeline, logging.Component(baseLogger, "scheduler")),
		recorder:  recorder,
	}, nil
}

// Pipeline exposes the stage use cases to the command layer.
func (a *Application) Pipeline() *usecase.Pipeline {
	return a.pipeline
}

// Run performs a single pipeline execution.
func (a *Application) Run(ctx context.Context) error {
	if a.pipeline == nil {
		return nil
	}

	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.pipeline.Run(ctx, now)
}

// Serve runs scheduled retraining and the metrics endpoint until ctx is done.
func (a *Application) Serve(ctx context.Context) error {
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	var server *http.Server
	serveErr := make(chan error, 1)
	if addr := a.cfg.Metrics.ListenAddr; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.recorder.Handler())
		server = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			a.logger.Info("metrics endpoint listening", "addr", addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- err
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
		runErr = fmt.Errorf("metrics endpoint: %w", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics endpoint shutdown", "error", err)
		}
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		return errors.Join(runErr, fmt.Errorf("stop scheduler: %w", err))
	}
	return runErr
}

// Close releases the table store.
func (a *Application) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
