package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Idosegev23/ldrsagent/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config [key] [value]",
	Short: "Manage configuration",
	Long: `View or modify ldrsagent configuration.

Without arguments, displays current configuration.
With one argument (key), displays the value for that key.
With two arguments (key value), sets the configuration value.

Configuration is stored at ~/.config/ldrsagent/config.yaml
Project-specific overrides can be placed in .ldrsagent.yaml`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.Load()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}

		switch len(args) {
		case 0:
			displayAllConfig(cfg)
		case 1:
			displayConfigKey(cfg, args[0])
		default:
			setConfigKey(cfg, args[0], args[1])
		}
	},
}

// displayAllConfig prints all configuration values.
func displayAllConfig(cfg *config.Config) {
	// Mask API key if set
	apiKeyDisplay := "(not set)"
	if cfg.Anthropic.APIKey != "" {
		apiKeyDisplay = "****"
	}

	fmt.Printf("anthropic.api_key: %s\n", apiKeyDisplay)
	fmt.Printf("anthropic.model: %s\n", cfg.Anthropic.Model)
	fmt.Printf("anthropic.use_aws_bedrock: %t\n", cfg.Anthropic.UseAWSBedrock)
	fmt.Printf("worker.idle_backoff: %s\n", cfg.Worker.IdleBackoff)
	fmt.Printf("worker.error_backoff: %s\n", cfg.Worker.ErrorBackoff)
	fmt.Printf("worker.max_retries: %d\n", cfg.Worker.MaxRetries)
	fmt.Printf("quality.threshold: %.2f\n", cfg.Quality.Threshold)
	fmt.Printf("quality.lenient_on_internal_success: %t\n", cfg.Quality.LenientOnInternalSuccess)
	fmt.Printf("routing.rules_path: %s\n", cfg.Routing.RulesPath)
	fmt.Printf("routing.min_confidence: %.2f\n", cfg.Routing.MinConfidence)
	fmt.Printf("routing.watch_rules: %t\n", cfg.Routing.WatchRules)
	fmt.Printf("knowledge.fixture_path: %s\n", cfg.Knowledge.FixturePath)
	fmt.Printf("timeouts.classify: %s\n", cfg.Timeouts.Classify)
	fmt.Printf("timeouts.retrieve: %s\n", cfg.Timeouts.Retrieve)
	fmt.Printf("timeouts.execute: %s\n", cfg.Timeouts.Execute)
	fmt.Printf("db.path: %s\n", cfg.DB.Path)
}

// displayConfigKey prints a single configuration value.
func displayConfigKey(cfg *config.Config, key string) {
	value, err := getConfigValue(cfg, key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(value)
}

// setConfigKey sets a configuration value and saves the config.
func setConfigKey(cfg *config.Config, key, value string) {
	if err := setConfigValue(cfg, key, value); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Set %s = %s\n", key, value)
}

// getConfigValue retrieves a configuration value by dot-notation key.
func getConfigValue(cfg *config.Config, key string) (string, error) {
	switch key {
	case "anthropic.api_key":
		if cfg.Anthropic.APIKey == "" {
			return "(not set)", nil
		}
		return "****", nil
	case "anthropic.model":
		return cfg.Anthropic.Model, nil
	case "anthropic.use_aws_bedrock":
		return strconv.FormatBool(cfg.Anthropic.UseAWSBedrock), nil
	case "worker.idle_backoff":
		return cfg.Worker.IdleBackoff.String(), nil
	case "worker.error_backoff":
		return cfg.Worker.ErrorBackoff.String(), nil
	case "worker.max_retries":
		return strconv.Itoa(cfg.Worker.MaxRetries), nil
	case "quality.threshold":
		return strconv.FormatFloat(cfg.Quality.Threshold, 'f', 2, 64), nil
	case "quality.lenient_on_internal_success":
		return strconv.FormatBool(cfg.Quality.LenientOnInternalSuccess), nil
	case "routing.rules_path":
		return cfg.Routing.RulesPath, nil
	case "routing.min_confidence":
		return strconv.FormatFloat(cfg.Routing.MinConfidence, 'f', 2, 64), nil
	case "routing.watch_rules":
		return strconv.FormatBool(cfg.Routing.WatchRules), nil
	case "knowledge.fixture_path":
		return cfg.Knowledge.FixturePath, nil
	case "timeouts.classify":
		return cfg.Timeouts.Classify.String(), nil
	case "timeouts.retrieve":
		return cfg.Timeouts.Retrieve.String(), nil
	case "timeouts.execute":
		return cfg.Timeouts.Execute.String(), nil
	case "db.path":
		return cfg.DB.Path, nil
	default:
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}
}

// setConfigValue sets a configuration value by dot-notation key.
func setConfigValue(cfg *config.Config, key, value string) error {
	switch key {
	case "anthropic.api_key":
		cfg.Anthropic.APIKey = value
	case "anthropic.model":
		cfg.Anthropic.Model = value
	case "anthropic.use_aws_bedrock":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Anthropic.UseAWSBedrock = b
	case "worker.idle_backoff":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Worker.IdleBackoff = d
	case "worker.error_backoff":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Worker.ErrorBackoff = d
	case "worker.max_retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid retry count: %s", value)
		}
		cfg.Worker.MaxRetries = n
	case "quality.threshold":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("invalid threshold (want 0..1): %s", value)
		}
		cfg.Quality.Threshold = f
	case "quality.lenient_on_internal_success":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Quality.LenientOnInternalSuccess = b
	case "routing.rules_path":
		cfg.Routing.RulesPath = value
	case "routing.min_confidence":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return fmt.Errorf("invalid confidence (want 0..1): %s", value)
		}
		cfg.Routing.MinConfidence = f
	case "routing.watch_rules":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %s", value)
		}
		cfg.Routing.WatchRules = b
	case "knowledge.fixture_path":
		cfg.Knowledge.FixturePath = value
	case "timeouts.classify":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Timeouts.Classify = d
	case "timeouts.retrieve":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Timeouts.Retrieve = d
	case "timeouts.execute":
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration: %s", value)
		}
		cfg.Timeouts.Execute = d
	case "db.path":
		cfg.DB.Path = value
	default:
		return fmt.Errorf("unknown configuration key: %s", key)
	}
	return nil
}
