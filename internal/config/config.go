// Package config provides configuration loading, validation, and management
// for the assistant core. It handles reading from YAML files and environment
// variables, setting default values, and validating configuration parameters.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration parameters for all components:
// logging, the reasoning backend, the organization search backend, transcript
// storage, and the background cache refresh schedule.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Reasoning ReasoningConfig `mapstructure:"reasoning"`
	Orgs      OrgsConfig      `mapstructure:"orgs"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// ReasoningConfig configures the remote reasoning client. Provider selects
// the implementation: "gemini" calls the Gemini API directly, "http" calls a
// hosted reasoning backend speaking the JSON contract.
type ReasoningConfig struct {
	Provider          string        `mapstructure:"provider"            validate:"oneof=gemini http"`
	APIKey            string        `mapstructure:"api_key"`
	ModelName         string        `mapstructure:"model_name"`
	BaseURL           string        `mapstructure:"base_url"            validate:"omitempty,url"`
	Temperature       float32       `mapstructure:"temperature"         validate:"min=0,max=2"`
	MaxRetries        int           `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=0,max=60"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"min=1s,max=10m"`
}

// OrgsConfig configures the organization search backend.
type OrgsConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"omitempty,url"`
	Timeout time.Duration `mapstructure:"timeout"  validate:"min=1s,max=5m"`
}

// DatabaseConfig configures the optional transcript store. An empty path
// disables persistence.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulerConfig configures the background organization cache refresh job.
type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	RefreshSchedule string `mapstructure:"refresh_schedule"`
}

// Load reads configuration from config.yaml (optional) and RELIEF_*
// environment variables, applies defaults, and validates the result.
func Load(configPath string) (*Config, error) {
	setDefaults()

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.SetEnvPrefix("RELIEF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		_, notFound := err.(viper.ConfigFileNotFoundError)
		if !notFound && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine, defaults and env apply.
	}

	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.json", false)

	viper.SetDefault("reasoning.provider", "gemini")
	viper.SetDefault("reasoning.model_name", "gemini-2.0-flash")
	viper.SetDefault("reasoning.temperature", 0.7)
	viper.SetDefault("reasoning.max_retries", 2)
	viper.SetDefault("reasoning.retry_delay_seconds", 2)
	viper.SetDefault("reasoning.timeout", 2*time.Minute)

	viper.SetDefault("orgs.base_url", "https://api.everyhelp.org/v1")
	viper.SetDefault("orgs.timeout", 30*time.Second)

	viper.SetDefault("database.path", "")

	viper.SetDefault("scheduler.enabled", false)
	viper.SetDefault("scheduler.refresh_schedule", "0 */6 * * *")
}
