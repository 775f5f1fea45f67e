package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/augerdb/augerdb/pkg/vstate"
)

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("AUGER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load loads configuration from file and environment variables. A
// missing file is not an error, defaults and environment apply.
func (l *Loader) Load(path string) (*Config, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Expand environment variables in config values
	// Only expand if the value contains ${...} pattern
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Logging defaults
	l.v.SetDefault("logging.level", "info")
	l.v.SetDefault("logging.format", "text")
	l.v.SetDefault("logging.output", "stdout")

	// Checker defaults
	l.v.SetDefault("checker.mode", "lenient")
	l.v.SetDefault("checker.history_path", vstate.DefaultHistoryPath)

	// Storage defaults
	l.v.SetDefault("storage.data_dir", "data")
	l.v.SetDefault("storage.vector_capacity", 16384)
	l.v.SetDefault("storage.msync_on_seal", false)

	// Reaper defaults
	l.v.SetDefault("reaper.poll_interval_ms", 500)
	l.v.SetDefault("reaper.slow_threshold_ms", 500)
}

// Validate validates the configuration
func (l *Loader) Validate(config *Config) error {
	switch config.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported logging level: %s", config.Logging.Level)
	}
	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported logging format: %s", config.Logging.Format)
	}
	switch config.Logging.Output {
	case "stdout", "stderr":
	default:
		return fmt.Errorf("unsupported logging output: %s", config.Logging.Output)
	}

	if _, err := parseMode(config.Checker.Mode); err != nil {
		return err
	}
	if config.Checker.HistoryPath == "" {
		return errors.New("checker.history_path is required")
	}

	if config.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}
	if config.Storage.VectorCapacity < 1 {
		return fmt.Errorf("invalid storage.vector_capacity: %d", config.Storage.VectorCapacity)
	}

	if config.Reaper.PollIntervalMS < 1 {
		return fmt.Errorf("invalid reaper.poll_interval_ms: %d", config.Reaper.PollIntervalMS)
	}
	if config.Reaper.SlowThresholdMS < 1 {
		return fmt.Errorf("invalid reaper.slow_threshold_ms: %d", config.Reaper.SlowThresholdMS)
	}

	return nil
}
