// Package config loads the run configuration from file and environment,
// with the SIMLEARN_ prefix for overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all settings for one experiment run.
type Config struct {
	Data     DataConfig     `mapstructure:"data"`
	Split    SplitConfig    `mapstructure:"split"`
	Run      RunConfig      `mapstructure:"run"`
	Mastery  MasteryConfig  `mapstructure:"mastery"`
	Tutoring TutoringConfig `mapstructure:"tutoring"`
	Simulate SimulateConfig `mapstructure:"simulate"`
	Log      LogConfig      `mapstructure:"log"`
}

// DataConfig locates the input CSVs and the run database.
type DataConfig struct {
	Dir       string `mapstructure:"dir"`
	StorePath string `mapstructure:"store_path"`
	ExportDir string `mapstructure:"export_dir"`
}

// SplitConfig controls the per-student train/test partition.
type SplitConfig struct {
	Fraction   float64 `mapstructure:"fraction"`
	MinRecords int     `mapstructure:"min_records"`
}

// RunConfig holds run-wide settings shared by every stage.
type RunConfig struct {
	Seed  uint64   `mapstructure:"seed"`
	Modes []string `mapstructure:"modes"`
	// Students optionally restricts the run to the listed student IDs.
	Students []string `mapstructure:"students"`
}

// MasteryConfig bounds the mastery-assessment stage.
type MasteryConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	SpreadWindow time.Duration `mapstructure:"spread_window"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
	Evidence     string        `mapstructure:"evidence"`
	// Structured switches assessment replies to schema-validated JSON.
	Structured bool `mapstructure:"structured"`
}

// TutoringConfig bounds the tutoring-generation stage.
type TutoringConfig struct {
	Concurrency        int           `mapstructure:"concurrency"`
	SpreadWindow       time.Duration `mapstructure:"spread_window"`
	Temperature        float64       `mapstructure:"temperature"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	ExamplesPerConcept int           `mapstructure:"examples_per_concept"`
	ConceptsPerRequest int           `mapstructure:"concepts_per_request"`
	FallbackTopK       int           `mapstructure:"fallback_top_k"`
}

// SimulateConfig bounds the simulation stage. Concurrency here is
// item-level, independent of the student-level bounds above.
type SimulateConfig struct {
	Concurrency  int           `mapstructure:"concurrency"`
	SpreadWindow time.Duration `mapstructure:"spread_window"`
	Temperature  float64       `mapstructure:"temperature"`
	MaxTokens    int           `mapstructure:"max_tokens"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from simlearn.yaml (working directory or
// ./config) and SIMLEARN_* environment variables.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("simlearn")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	setDefaults(v)

	v.SetEnvPrefix("SIMLEARN")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data.dir", "./data")
	v.SetDefault("data.store_path", "./simlearn.db")
	v.SetDefault("data.export_dir", "./results")

	v.SetDefault("split.fraction", 0.9)
	v.SetDefault("split.min_records", 2)

	v.SetDefault("run.seed", 42)
	v.SetDefault("run.modes", []string{"baseline", "mastery_only", "tutoring_only", "combined"})

	v.SetDefault("mastery.concurrency", 10)
	v.SetDefault("mastery.spread_window", "60s")
	// Assessment runs at temperature 0 for reproducibility.
	v.SetDefault("mastery.temperature", 0.0)
	v.SetDefault("mastery.max_tokens", 1024)
	v.SetDefault("mastery.evidence", "full")
	v.SetDefault("mastery.structured", false)

	v.SetDefault("tutoring.concurrency", 10)
	v.SetDefault("tutoring.spread_window", "60s")
	v.SetDefault("tutoring.temperature", 0.7)
	v.SetDefault("tutoring.max_tokens", 2048)
	v.SetDefault("tutoring.examples_per_concept", 3)
	v.SetDefault("tutoring.concepts_per_request", 4)
	v.SetDefault("tutoring.fallback_top_k", 0)

	v.SetDefault("simulate.concurrency", 30)
	v.SetDefault("simulate.spread_window", "60s")
	v.SetDefault("simulate.temperature", 0.7)
	v.SetDefault("simulate.max_tokens", 1024)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Validate rejects configurations no run could execute.
func (c *Config) Validate() error {
	if c.Split.Fraction <= 0 || c.Split.Fraction >= 1 {
		return fmt.Errorf("split.fraction must be in (0, 1), got %v", c.Split.Fraction)
	}
	if c.Split.MinRecords < 2 {
		return fmt.Errorf("split.min_records must be at least 2, got %d", c.Split.MinRecords)
	}
	if len(c.Run.Modes) == 0 {
		return fmt.Errorf("run.modes must name at least one ablation mode")
	}
	if c.Mastery.Evidence != "full" && c.Mastery.Evidence != "minimal" {
		return fmt.Errorf("mastery.evidence must be full or minimal, got %q", c.Mastery.Evidence)
	}
	return nil
}
