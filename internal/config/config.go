// Package config handles configuration loading and management for ldrsagent.
// It supports XDG config paths, project-level overrides, and environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for ldrsagent.
type Config struct {
	Anthropic AnthropicConfig `mapstructure:"anthropic"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Quality   QualityConfig   `mapstructure:"quality"`
	Routing   RoutingConfig   `mapstructure:"routing"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Timeouts  TimeoutsConfig  `mapstructure:"timeouts"`
	DB        DBConfig        `mapstructure:"db"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `mapstructure:"api_key"`
	Model  string `mapstructure:"model"`
	// UseAWSBedrock routes API calls through AWS Bedrock instead of the direct API.
	UseAWSBedrock bool   `mapstructure:"use_aws_bedrock"`
	AWSRegion     string `mapstructure:"aws_region"`
	AWSProfile    string `mapstructure:"aws_profile"`
}

// WorkerConfig holds worker loop settings.
type WorkerConfig struct {
	// IdleBackoff is how long the loop sleeps when no job is claimable.
	IdleBackoff time.Duration `mapstructure:"idle_backoff"`
	// ErrorBackoff is how long the loop sleeps after an unhandled processing error.
	ErrorBackoff time.Duration `mapstructure:"error_backoff"`
	// MaxRetries is the retry ceiling before a job is forced to human review.
	MaxRetries int `mapstructure:"max_retries"`
}

// QualityConfig holds quality gate settings.
type QualityConfig struct {
	// Threshold is the minimum score in [0,1] a result must reach to pass.
	Threshold float64 `mapstructure:"threshold"`
	// LenientOnInternalSuccess relaxes scoring when the capability result
	// already reports internal success, avoiding false negatives on
	// composite multi-capability outputs.
	LenientOnInternalSuccess bool `mapstructure:"lenient_on_internal_success"`
}

// RoutingConfig holds intent classification and routing settings.
type RoutingConfig struct {
	// RulesPath is the YAML file holding intent-to-capability routing rules.
	RulesPath string `mapstructure:"rules_path"`
	// MinConfidence is the classification confidence below which the job
	// completes with a clarification request instead of executing.
	MinConfidence float64 `mapstructure:"min_confidence"`
	// WatchRules enables hot-reloading of the rules file.
	WatchRules bool `mapstructure:"watch_rules"`
}

// KnowledgeConfig holds knowledge retriever settings.
type KnowledgeConfig struct {
	// FixturePath points the file-backed retriever at a YAML knowledge base.
	FixturePath string `mapstructure:"fixture_path"`
}

// TimeoutsConfig holds caller-imposed timeouts for external calls.
type TimeoutsConfig struct {
	Classify time.Duration `mapstructure:"classify"`
	Retrieve time.Duration `mapstructure:"retrieve"`
	Execute  time.Duration `mapstructure:"execute"`
}

// DBConfig holds job store settings.
type DBConfig struct {
	// Path is the SQLite database file. Empty means the default data path.
	Path string `mapstructure:"path"`
}

// Load loads configuration from XDG paths, project overrides, and environment variables.
// Precedence (highest to lowest):
// 1. Environment variables (ANTHROPIC_API_KEY, LDRSAGENT_*)
// 2. Project config (.ldrsagent.yaml in current directory or parent)
// 3. User config (~/.config/ldrsagent/config.yaml)
// 4. Built-in defaults
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	userConfigDir := getUserConfigDir()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(userConfigDir)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading user config: %w", err)
		}
	}

	projectConfig := findProjectConfig()
	if projectConfig != "" {
		projectViper := viper.New()
		projectViper.SetConfigFile(projectConfig)
		if err := projectViper.ReadInConfig(); err == nil {
			if err := v.MergeConfigMap(projectViper.AllSettings()); err != nil {
				return nil, fmt.Errorf("merging project config: %w", err)
			}
		}
	}

	v.SetEnvPrefix("LDRSAGENT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.BindEnv("anthropic.api_key", "ANTHROPIC_API_KEY")

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// LoadFromPath loads configuration from a specific path (for testing).
func LoadFromPath(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.Anthropic.APIKey = expandEnv(cfg.Anthropic.APIKey)

	return cfg, nil
}

// Save writes the current configuration to the user config file.
func Save(cfg *Config) error {
	userConfigDir := getUserConfigDir()
	if err := os.MkdirAll(userConfigDir, 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	configPath := filepath.Join(userConfigDir, "config.yaml")

	v := viper.New()
	v.SetConfigFile(configPath)

	v.Set("anthropic.api_key", cfg.Anthropic.APIKey)
	v.Set("anthropic.model", cfg.Anthropic.Model)
	v.Set("anthropic.use_aws_bedrock", cfg.Anthropic.UseAWSBedrock)
	v.Set("worker.idle_backoff", cfg.Worker.IdleBackoff.String())
	v.Set("worker.error_backoff", cfg.Worker.ErrorBackoff.String())
	v.Set("worker.max_retries", cfg.Worker.MaxRetries)
	v.Set("quality.threshold", cfg.Quality.Threshold)
	v.Set("quality.lenient_on_internal_success", cfg.Quality.LenientOnInternalSuccess)
	v.Set("routing.rules_path", cfg.Routing.RulesPath)
	v.Set("routing.min_confidence", cfg.Routing.MinConfidence)
	v.Set("routing.watch_rules", cfg.Routing.WatchRules)
	v.Set("knowledge.fixture_path", cfg.Knowledge.FixturePath)
	v.Set("timeouts.classify", cfg.Timeouts.Classify.String())
	v.Set("timeouts.retrieve", cfg.Timeouts.Retrieve.String())
	v.Set("timeouts.execute", cfg.Timeouts.Execute.String())
	v.Set("db.path", cfg.DB.Path)

	return v.WriteConfig()
}

// GetUserConfigPath returns the path to the user config file.
func GetUserConfigPath() string {
	return filepath.Join(getUserConfigDir(), "config.yaml")
}

// setDefaults configures default values.
func setDefaults(v *viper.Viper) {
	v.SetDefault("anthropic.api_key", "")
	v.SetDefault("anthropic.model", "")
	v.SetDefault("anthropic.use_aws_bedrock", false)

	v.SetDefault("worker.idle_backoff", "2s")
	v.SetDefault("worker.error_backoff", "10s")
	v.SetDefault("worker.max_retries", 3)

	v.SetDefault("quality.threshold", 0.6)
	v.SetDefault("quality.lenient_on_internal_success", true)

	v.SetDefault("routing.rules_path", "")
	v.SetDefault("routing.min_confidence", 0.5)
	v.SetDefault("routing.watch_rules", false)

	v.SetDefault("knowledge.fixture_path", "")

	v.SetDefault("timeouts.classify", "30s")
	v.SetDefault("timeouts.retrieve", "30s")
	v.SetDefault("timeouts.execute", "5m")

	v.SetDefault("db.path", "")
}

// getUserConfigDir returns the XDG config directory for ldrsagent.
func getUserConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "ldrsagent")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".config", "ldrsagent")
	}
	return filepath.Join(home, ".config", "ldrsagent")
}

// findProjectConfig searches for .ldrsagent.yaml in the current directory and parents.
func findProjectConfig() string {
	cwd, err := os.Getwd()
	if err != nil {
		return ""
	}

	dir := cwd
	for {
		candidate := filepath.Join(dir, ".ldrsagent.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnv expands ${VAR} references in a config value.
func expandEnv(s string) string {
	return os.ExpandEnv(s)
}
