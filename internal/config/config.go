package config

import (
	"fmt"
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"VelocityForecast/internal/domain"
	"VelocityForecast/internal/features"
)

const (
	defaultTimezone   = "UTC"
	configPathEnv     = "VELOCITY_FORECAST_CONFIG"
	logLevelEnv       = "LOG_LEVEL"
	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"
	mlAPIKeyEnv       = "ML_API_KEY"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig       `yaml:"logging"`
	Database      DatabaseConfig      `yaml:"database"`
	Paths         PathsConfig         `yaml:"paths"`
	Scheduler     SchedulerConfig     `yaml:"scheduler"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Notifications NotificationConfig  `yaml:"notifications"`
	ML            MLConfig            `yaml:"ml"`
	StatusMapping map[string][]string `yaml:"status_mapping"`
	VelocityModel VelocityModelConfig `yaml:"velocity_model"`
	Sources       []SourceConfig      `yaml:"sources"`
}

// LoggingConfig sets the slog level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DatabaseConfig describes the table store. Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver string `yaml:"driver" validate:"oneof=postgres sqlite"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// PathsConfig locates the model artifact.
type PathsConfig struct {
	ModelsDir string `yaml:"modelsDir" validate:"required"`
	ModelName string `yaml:"modelName" validate:"required"`
}

// SchedulerConfig defines when retraining should run.
type SchedulerConfig struct {
	CronExpression string         `yaml:"cronExpression"`
	Timezone       string         `yaml:"timezone"`
	location       *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, _ := time.LoadLocation(defaultTimezone)
	return loc
}

// MetricsConfig exposes Prometheus metrics while the scheduler runs.
type MetricsConfig struct {
	ListenAddr string `yaml:"listenAddr"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// MLConfig describes the remote learner service.
type MLConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// VelocityModelConfig selects features, target, learner and validation.
type VelocityModelConfig struct {
	TargetMetric  string         `yaml:"target_metric" validate:"required"`
	Features      []string       `yaml:"features" validate:"required,min=1"`
	Windows       []int          `yaml:"windows" validate:"required,min=1,dive,gte=1"`
	NSplits       int            `yaml:"n_splits" validate:"gte=1"`
	Learner       string         `yaml:"learner" validate:"required"`
	ModelParams   map[string]any `yaml:"model_params"`
	ParallelFolds bool           `yaml:"parallel_folds"`
}

// SourceConfig describes one raw-record source and its strategy.
type SourceConfig struct {
	Name    string            `yaml:"name" validate:"required"`
	Kind    string            `yaml:"kind" validate:"required"`
	Options map[string]string `yaml:"options"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	return LoadFrom(os.Getenv(configPathEnv))
}

// LoadFrom behaves like Load with an explicit file path. An empty path keeps
// the defaults.
func LoadFrom(path string) Config {
	cfg := defaultConfig()

	if path != "" {
		if fileCfg, err := ReadFile(path); err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Sources) == 0 {
		cfg.Sources = defaultConfig().Sources
	}

	return cfg
}

// ReadFile parses a YAML configuration file without applying defaults.
func ReadFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return fileCfg, nil
}

// Validate rejects configurations the pipeline cannot run with. The feature
// list is checked against the vocabulary the windows produce.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	if len(c.StatusMapping[string(domain.CategoryDone)]) == 0 {
		return fmt.Errorf("%w: status_mapping needs a non-empty %q category", domain.ErrInvalidInput, domain.CategoryDone)
	}
	if len(c.StatusMapping[string(domain.CategoryInProgress)]) == 0 {
		return fmt.Errorf("%w: status_mapping needs a non-empty %q category", domain.ErrInvalidInput, domain.CategoryInProgress)
	}
	if err := features.ValidateColumns(c.VelocityModel.Features, c.VelocityModel.Windows); err != nil {
		return err
	}
	if c.VelocityModel.TargetMetric != domain.ColumnActualVelocity {
		return fmt.Errorf("%w: unsupported target_metric %s", domain.ErrInvalidInput, c.VelocityModel.TargetMetric)
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}

	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(mlAPIKeyEnv); v != "" {
		c.ML.APIKey = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to %s", tz, defaultTimezone)
		loc, _ = time.LoadLocation(defaultTimezone)
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Paths.ModelsDir != "" {
		base.Paths.ModelsDir = override.Paths.ModelsDir
	}
	if override.Paths.ModelName != "" {
		base.Paths.ModelName = override.Paths.ModelName
	}

	if override.Scheduler.CronExpression != "" {
		base.Scheduler.CronExpression = override.Scheduler.CronExpression
	}
	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}

	if override.Metrics.ListenAddr != "" {
		base.Metrics.ListenAddr = override.Metrics.ListenAddr
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.ML.Endpoint != "" {
		base.ML.Endpoint = override.ML.Endpoint
	}
	if override.ML.APIKey != "" {
		base.ML.APIKey = override.ML.APIKey
	}

	if len(override.StatusMapping) > 0 {
		base.StatusMapping = override.StatusMapping
	}

	vm := override.VelocityModel
	if vm.TargetMetric != "" {
		base.VelocityModel.TargetMetric = vm.TargetMetric
	}
	if len(vm.Features) > 0 {
		base.VelocityModel.Features = vm.Features
	}
	if len(vm.Windows) > 0 {
		base.VelocityModel.Windows = vm.Windows
	}
	if vm.NSplits != 0 {
		base.VelocityModel.NSplits = vm.NSplits
	}
	if vm.Learner != "" {
		base.VelocityModel.Learner = vm.Learner
		base.VelocityModel.ModelParams = vm.ModelParams
	} else if len(vm.ModelParams) > 0 {
		base.VelocityModel.ModelParams = vm.ModelParams
	}
	if vm.ParallelFolds {
		base.VelocityModel.ParallelFolds = true
	}

	if len(override.Sources) > 0 {
		base.Sources = override.Sources
	}

	return base
}

func defaultConfig() Config {
	tz, _ := time.LoadLocation(defaultTimezone)
	return Config{
		Logging:   LoggingConfig{Level: "info", Format: "text"},
		Database:  DatabaseConfig{Driver: "sqlite", DSN: "file:data/velocity.db"},
		Paths:     PathsConfig{ModelsDir: "models", ModelName: "velocity_ridge"},
		Scheduler: SchedulerConfig{CronExpression: "0 6 * * MON", Timezone: defaultTimezone, location: tz},
		Notifications: NotificationConfig{
			Telegram: TelegramConfig{BotToken: "", ChatID: ""},
		},
		ML: MLConfig{Endpoint: "", APIKey: ""},
		StatusMapping: map[string][]string{
			"todo":       {"To Do", "Backlog", "Selected for Development"},
			"inprogress": {"In Progress", "In Development", "In Review"},
			"done":       {"Done", "Resolved", "Closed"},
		},
		VelocityModel: VelocityModelConfig{
			TargetMetric: domain.ColumnActualVelocity,
			Features: []string{
				"avg_velocity_last_1_sprints",
				"avg_velocity_last_3_sprints",
				domain.ColumnPlannedStoryPoints,
				domain.ColumnPlannedIssueCount,
			},
			Windows:     []int{1, 3, 5},
			NSplits:     5,
			Learner:     "ridge",
			ModelParams: map[string]any{"alpha": 1.0},
		},
		Sources: []SourceConfig{
			{
				Name: "mock",
				Kind: "mock",
				Options: map[string]string{
					"sprints":           "30",
					"issues_per_sprint": "15",
					"start_date":        "2023-01-09",
					"seed":              "42",
				},
			},
		},
	}
}
