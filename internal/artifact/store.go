// Package artifact persists a trained model and its ordered feature list as
// two blobs that are always loaded and checked together.
package artifact

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/natefinch/atomic"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/regression"
	"VelocityForecast/internal/training"
)

// Artifact is the persisted outcome of a training run.
type Artifact struct {
	Model         regression.Regressor
	FeatureNames  []string
	RunID         string
	TrainedAt     time.Time
	ValidationMAE domain.Float
	Folds         []training.FoldReport
	Rows          int
}

type modelBlob struct {
	RunID         string                `json:"run_id"`
	TrainedAt     time.Time             `json:"trained_at"`
	FeatureNames  []string              `json:"feature_names"`
	ValidationMAE domain.Float          `json:"validation_mae"`
	Folds         []training.FoldReport `json:"folds"`
	Rows          int                   `json:"rows"`
	Model         regression.Snapshot   `json:"model"`
}

type featuresBlob struct {
	RunID    string   `json:"run_id"`
	Features []string `json:"features"`
}

// Store reads and writes artifacts under a directory.
type Store struct {
	dir      string
	name     string
	registry *regression.Registry
}

// NewStore addresses <dir>/<name>_model.json and <dir>/<name>_features.json.
func NewStore(dir, name string, registry *regression.Registry) *Store {
	return &Store{dir: dir, name: name, registry: registry}
}

// ModelPath is the location of the model blob.
func (s *Store) ModelPath() string {
	return filepath.Join(s.dir, s.name+"_model.json")
}

// FeaturesPath is the location of the feature-list blob.
func (s *Store) FeaturesPath() string {
	return filepath.Join(s.dir, s.name+"_features.json")
}

// Save writes both blobs atomically. The feature list is written last so a
// crash between the writes leaves a run-id mismatch that Load rejects.
func (s *Store) Save(a Artifact) error {
	if a.Model == nil || len(a.FeatureNames) == 0 {
		return fmt.Errorf("%w: refusing to save an artifact without model or features", domain.ErrInvalidInput)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create models dir: %w", err)
	}

	snap, err := regression.Snap(a.Model)
	if err != nil {
		return fmt.Errorf("snapshot model: %w", err)
	}
	model, err := json.MarshalIndent(modelBlob{
		RunID:         a.RunID,
		TrainedAt:     a.TrainedAt.UTC(),
		FeatureNames:  a.FeatureNames,
		ValidationMAE: a.ValidationMAE,
		Folds:         a.Folds,
		Rows:          a.Rows,
		Model:         snap,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal model blob: %w", err)
	}
	feats, err := json.MarshalIndent(featuresBlob{RunID: a.RunID, Features: a.FeatureNames}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal features blob: %w", err)
	}

	if err := atomic.WriteFile(s.ModelPath(), bytes.NewReader(model)); err != nil {
		return fmt.Errorf("write model %s: %w", s.ModelPath(), err)
	}
	if err := atomic.WriteFile(s.FeaturesPath(), bytes.NewReader(feats)); err != nil {
		return fmt.Errorf("write features %s: %w", s.FeaturesPath(), err)
	}
	return nil
}

// Load reads both blobs and checks they belong to the same run.
func (s *Store) Load() (Artifact, error) {
	var model modelBlob
	if err := readJSON(s.ModelPath(), &model); err != nil {
		return Artifact{}, err
	}
	var feats featuresBlob
	if err := readJSON(s.FeaturesPath(), &feats); err != nil {
		return Artifact{}, err
	}

	if model.RunID != feats.RunID {
		return Artifact{}, fmt.Errorf("%w: model run %s paired with features of run %s", domain.ErrContractViolation, model.RunID, feats.RunID)
	}
	if !slices.Equal(model.FeatureNames, feats.Features) {
		return Artifact{}, fmt.Errorf("%w: model was fit on %v but feature list is %v", domain.ErrContractViolation, model.FeatureNames, feats.Features)
	}
	if len(feats.Features) == 0 {
		return Artifact{}, fmt.Errorf("%w: empty feature list in %s", domain.ErrContractViolation, s.FeaturesPath())
	}

	restored, err := s.registry.Restore(model.Model)
	if err != nil {
		return Artifact{}, fmt.Errorf("restore model: %w", err)
	}
	if width := restored.InputWidth(); width != len(feats.Features) {
		return Artifact{}, fmt.Errorf("%w: %s model expects %d features but the feature list has %d",
			domain.ErrContractViolation, restored.Kind(), width, len(feats.Features))
	}

	return Artifact{
		Model:         restored,
		FeatureNames:  feats.Features,
		RunID:         model.RunID,
		TrainedAt:     model.TrainedAt,
		ValidationMAE: model.ValidationMAE,
		Folds:         model.Folds,
		Rows:          model.Rows,
	}, nil
}

func readJSON(path string, v any) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", domain.ErrArtifactMissing, path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
