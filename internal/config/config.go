// Package config loads and saves selfcorrect configuration from
// <root>/.selfcorrect/config.yaml.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file name inside the .selfcorrect directory.
const FileName = "config.yaml"

// Config holds all selfcorrect configuration.
type Config struct {
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Analysis   AnalysisConfig   `yaml:"analysis"`
	Correction CorrectionConfig `yaml:"correction"`
	History    HistoryConfig    `yaml:"history"`
	Backup     BackupConfig     `yaml:"backup"`
	Storage    StorageConfig    `yaml:"storage"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MonitoringConfig selects which activity types are learned from.
type MonitoringConfig struct {
	Enabled    bool `yaml:"enabled"`
	Commands   bool `yaml:"commands"`
	Templates  bool `yaml:"templates"`
	Mechanisms bool `yaml:"mechanisms"`
	Feedback   bool `yaml:"feedback"`
	Metrics    bool `yaml:"metrics"`
}

// AnalysisConfig holds diagnoser thresholds.
type AnalysisConfig struct {
	TemplateSlowMS  int64 `yaml:"template_slow_ms"`
	MechanismSlowMS int64 `yaml:"mechanism_slow_ms"`
}

// CorrectionConfig holds correction policy settings.
type CorrectionConfig struct {
	// ConfidenceThreshold is the minimum confidence for automatic action
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	// ScheduleDelay is how far out medium-severity corrections are scheduled
	ScheduleDelay time.Duration `yaml:"schedule_delay"`
	// FailureConfidence is logged for failed corrections
	FailureConfidence float64 `yaml:"failure_confidence"`
	// SweepInterval is how often the monitor checks for due corrections
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// HistoryConfig holds the caps of the errors store.
type HistoryConfig struct {
	MaxActivities       int `yaml:"max_activities"`
	TrimActivitiesTo    int `yaml:"trim_activities_to"`
	MaxSuccessPatterns  int `yaml:"max_success_patterns"`
	TrimSuccessPatterns int `yaml:"trim_success_patterns_to"`
}

// BackupConfig holds backup retention settings.
type BackupConfig struct {
	Keep     int  `yaml:"keep"`
	Compress bool `yaml:"compress"`
}

// Storage backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"`
}

// LoggingConfig configures the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// Default returns config with sensible defaults.
func Default() *Config {
	return &Config{
		Monitoring: MonitoringConfig{
			Enabled:    true,
			Commands:   true,
			Templates:  true,
			Mechanisms: true,
			Feedback:   true,
			Metrics:    true,
		},
		Analysis: AnalysisConfig{
			TemplateSlowMS:  30000,
			MechanismSlowMS: 60000,
		},
		Correction: CorrectionConfig{
			ConfidenceThreshold: 0.8,
			ScheduleDelay:       24 * time.Hour,
			FailureConfidence:   0.1,
			SweepInterval:       time.Minute,
		},
		History: HistoryConfig{
			MaxActivities:       1000,
			TrimActivitiesTo:    500,
			MaxSuccessPatterns:  100,
			TrimSuccessPatterns: 50,
		},
		Backup: BackupConfig{
			Keep:     50,
			Compress: false,
		},
		Storage: StorageConfig{
			Backend: BackendJSON,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Dir returns the .selfcorrect directory for a project root.
func Dir(root string) string {
	return filepath.Join(root, ".selfcorrect")
}

// Path returns the config file path for a project root.
func Path(root string) string {
	return filepath.Join(Dir(root), FileName)
}

// Load reads config from the project root, falling back to defaults when the
// file does not exist. Values absent from the file keep their defaults.
func Load(root string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(Path(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", Path(root), err)
	}

	if err := cfg.Validate(); err != nil {
		return Default(), err
	}
	return cfg, nil
}

// Save writes the config to the project root.
func (c *Config) Save(root string) error {
	if err := os.MkdirAll(Dir(root), 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(Path(root), data, 0644)
}

// Validate rejects settings the core cannot run with.
func (c *Config) Validate() error {
	if c.Correction.ConfidenceThreshold < 0 || c.Correction.ConfidenceThreshold > 1 {
		return fmt.Errorf("correction.confidence_threshold must be within [0,1], got %v", c.Correction.ConfidenceThreshold)
	}
	if c.Correction.SweepInterval <= 0 {
		return fmt.Errorf("correction.sweep_interval must be positive")
	}
	if c.History.TrimActivitiesTo > c.History.MaxActivities {
		return fmt.Errorf("history.trim_activities_to (%d) exceeds max_activities (%d)", c.History.TrimActivitiesTo, c.History.MaxActivities)
	}
	if c.History.TrimSuccessPatterns > c.History.MaxSuccessPatterns {
		return fmt.Errorf("history.trim_success_patterns_to (%d) exceeds max_success_patterns (%d)", c.History.TrimSuccessPatterns, c.History.MaxSuccessPatterns)
	}
	if c.Backup.Keep < 1 {
		return fmt.Errorf("backup.keep must be at least 1")
	}
	switch c.Storage.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	return nil
}
