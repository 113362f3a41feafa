package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/regression"
	"VelocityForecast/internal/split"
)

// Config selects the columns and the validation scheme.
type Config struct {
	FeatureColumns []string
	TargetColumn   string
	NSplits        int
	// ParallelFolds fits folds concurrently; each fold owns its model.
	ParallelFolds bool
}

// FoldReport records one cross-validation fold.
type FoldReport struct {
	Index          int     `json:"index"`
	TrainSize      int     `json:"train_size"`
	ValidationSize int     `json:"validation_size"`
	Metrics        Metrics `json:"metrics"`
}

// Result is the outcome of a training run. Model is the final model fit on
// every eligible row; fold models are discarded.
type Result struct {
	Model         regression.Regressor
	FeatureNames  []string
	ValidationMAE domain.Float
	Folds         []FoldReport
	Rows          int
}

// Trainer cross-validates and fits the velocity model.
type Trainer struct {
	cfg      Config
	newModel func() (regression.Regressor, error)
	logger   *slog.Logger
}

// NewTrainer wires the learner constructor; each call must return a fresh instance.
func NewTrainer(cfg Config, newModel func() (regression.Regressor, error), logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.TargetColumn == "" {
		cfg.TargetColumn = domain.ColumnActualVelocity
	}
	return &Trainer{cfg: cfg, newModel: newModel, logger: logger}
}

type dataset struct {
	x     [][]float64
	y     []float64
	dates []time.Time
}

// eligible keeps closed rows whose target and features are all defined.
func eligible(table domain.FeatureTable, features []string, target string) (dataset, error) {
	var ds dataset
	for _, row := range table.Rows {
		if row.State != domain.SprintClosed || row.StartDate == nil {
			continue
		}
		y, ok := row.Lookup(target)
		if !ok {
			return dataset{}, fmt.Errorf("%w: unknown target column %s", domain.ErrInvalidInput, target)
		}
		if !y.Valid {
			continue
		}
		x, err := row.Vector(features)
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientData) {
				continue
			}
			return dataset{}, err
		}
		ds.x = append(ds.x, x)
		ds.y = append(ds.y, y.Value)
		ds.dates = append(ds.dates, *row.StartDate)
	}
	return ds, nil
}

// Train cross-validates with expanding temporal folds, then fits the final
// model on the whole eligible dataset.
func (t *Trainer) Train(ctx context.Context, table domain.FeatureTable) (Result, error) {
	if t.newModel == nil {
		return Result{}, fmt.Errorf("%w: no learner configured", domain.ErrInvalidInput)
	}
	if len(t.cfg.FeatureColumns) == 0 {
		return Result{}, fmt.Errorf("%w: no feature columns configured", domain.ErrInvalidInput)
	}

	ds, err := eligible(table, t.cfg.FeatureColumns, t.cfg.TargetColumn)
	if err != nil {
		return Result{}, fmt.Errorf("filter training rows: %w", err)
	}
	if len(ds.y) == 0 {
		t.logger.Error("no valid training data after dropping undefined values")
		return Result{}, fmt.Errorf("%w: no closed sprint has a defined target and features", domain.ErrInsufficientData)
	}
	t.logger.Info("training data filtered", "rows", len(ds.y), "features", t.cfg.FeatureColumns, "target", t.cfg.TargetColumn)

	folds, err := split.Temporal(ds.dates, t.cfg.NSplits)
	if err != nil {
		return Result{}, fmt.Errorf("split folds: %w", err)
	}

	reports, err := t.crossValidate(ctx, ds, folds)
	if err != nil {
		return Result{}, err
	}

	maes := make([]domain.Float, len(reports))
	for i, r := range reports {
		maes[i] = r.Metrics.MAE
	}
	avg := MeanDefined(maes)
	if avg.Valid {
		t.logger.Info("cross-validation complete", "folds", len(reports), "avg_mae", avg.Value)
	} else {
		t.logger.Warn("cross-validation produced no valid folds", "folds", len(reports))
	}

	final, err := t.newModel()
	if err != nil {
		return Result{}, fmt.Errorf("build final model: %w", err)
	}
	if err := regression.Fit(ctx, final, ds.x, ds.y); err != nil {
		return Result{}, fmt.Errorf("fit final model: %w", err)
	}
	t.logger.Info("final model trained", "rows", len(ds.y), "learner", final.Kind())

	return Result{
		Model:         final,
		FeatureNames:  append([]string(nil), t.cfg.FeatureColumns...),
		ValidationMAE: avg,
		Folds:         reports,
		Rows:          len(ds.y),
	}, nil
}

func (t *Trainer) crossValidate(ctx context.Context, ds dataset, folds []split.Fold) ([]FoldReport, error) {
	reports := make([]FoldReport, len(folds))

	g, gctx := errgroup.WithContext(ctx)
	if !t.cfg.ParallelFolds {
		g.SetLimit(1)
	}
	for i, fold := range folds {
		g.Go(func() error {
			report, err := t.runFold(gctx, i, ds, fold)
			if err != nil {
				return fmt.Errorf("fold %d: %w", i+1, err)
			}
			reports[i] = report
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// runFold scores one fold. A learner failure leaves the fold unscored; only
// cancellation of ctx is returned as an error.
func (t *Trainer) runFold(ctx context.Context, i int, ds dataset, fold split.Fold) (FoldReport, error) {
	if err := ctx.Err(); err != nil {
		return FoldReport{}, err
	}

	xTrain, yTrain := take(ds, fold.Train)
	xVal, yVal := take(ds, fold.Validation)

	report := FoldReport{
		Index:          i + 1,
		TrainSize:      len(yTrain),
		ValidationSize: len(yVal),
		Metrics:        Metrics{MAE: domain.None(), RMSE: domain.None(), MAPE: domain.None()},
	}

	pred, err := t.scoreFold(ctx, xTrain, yTrain, xVal)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return FoldReport{}, ctxErr
		}
		t.logger.Warn("fold left unscored",
			"fold", report.Index,
			"train", report.TrainSize,
			"validation", report.ValidationSize,
			"error", err,
		)
		return report, nil
	}

	report.Metrics = RegressionMetrics(yVal, pred)
	t.logger.Info("fold evaluated",
		"fold", report.Index,
		"train", report.TrainSize,
		"validation", report.ValidationSize,
		"mae", report.Metrics.MAE,
		"rmse", report.Metrics.RMSE,
	)
	return report, nil
}

func (t *Trainer) scoreFold(ctx context.Context, xTrain [][]float64, yTrain []float64, xVal [][]float64) ([]float64, error) {
	model, err := t.newModel()
	if err != nil {
		return nil, fmt.Errorf("build model: %w", err)
	}
	if err := regression.Fit(ctx, model, xTrain, yTrain); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	pred, err := regression.Predict(ctx, model, xVal)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	return pred, nil
}

func take(ds dataset, idx []int) ([][]float64, []float64) {
	x := make([][]float64, len(idx))
	y := make([]float64, len(idx))
	for i, j := range idx {
		x[i] = append([]float64(nil), ds.x[j]...)
		y[i] = ds.y[j]
	}
	return x, y
}
