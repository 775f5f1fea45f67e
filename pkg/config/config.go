// Package config loads and validates process configuration from a YAML
// file and AUGER_-prefixed environment variables, and applies the
// process-wide pieces of it.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/augerdb/augerdb/pkg/reaper"
	"github.com/augerdb/augerdb/pkg/vecbuf"
	"github.com/augerdb/augerdb/pkg/vstate"
)

// Config is the root configuration structure
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Checker CheckerConfig `mapstructure:"checker"`
	Storage StorageConfig `mapstructure:"storage"`
	Reaper  ReaperConfig  `mapstructure:"reaper"`
}

// LoggingConfig controls the default slog logger
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// CheckerConfig controls the vector lifecycle verifier
type CheckerConfig struct {
	Mode        string `mapstructure:"mode"`
	HistoryPath string `mapstructure:"history_path"`
}

// StorageConfig controls where vector files live and how they are sized
type StorageConfig struct {
	DataDir        string `mapstructure:"data_dir"`
	VectorCapacity int    `mapstructure:"vector_capacity"`
	MsyncOnSeal    bool   `mapstructure:"msync_on_seal"`
}

// ReaperConfig controls the background closer
type ReaperConfig struct {
	PollIntervalMS  int `mapstructure:"poll_interval_ms"`
	SlowThresholdMS int `mapstructure:"slow_threshold_ms"`
}

// Build constructs the slog logger this configuration describes.
func (c LoggingConfig) Build() (*slog.Logger, error) {
	var level slog.Level
	switch c.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unsupported logging level: %s", c.Level)
	}

	var output io.Writer
	switch c.Output {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		return nil, fmt.Errorf("unsupported logging output: %s", c.Output)
	}

	opts := &slog.HandlerOptions{Level: level}
	switch c.Format {
	case "text":
		return slog.New(slog.NewTextHandler(output, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(output, opts)), nil
	default:
		return nil, fmt.Errorf("unsupported logging format: %s", c.Format)
	}
}

func parseMode(mode string) (vstate.Mode, error) {
	switch mode {
	case "lenient":
		return vstate.ModeLenient, nil
	case "strict":
		return vstate.ModeStrict, nil
	default:
		return 0, fmt.Errorf("unsupported checker mode: %s", mode)
	}
}

// VectorOptions are the vecbuf options this storage configuration
// implies for newly created vectors.
func (c StorageConfig) VectorOptions() []func(*vecbuf.Vector) {
	opts := []func(*vecbuf.Vector){vecbuf.WithCapacity(c.VectorCapacity)}
	if c.MsyncOnSeal {
		opts = append(opts, vecbuf.WithSyncOption(vecbuf.MsyncOnSeal))
	}
	return opts
}

// Build converts the wire representation into a reaper.Config.
func (c ReaperConfig) Build(logger *slog.Logger) reaper.Config {
	return reaper.Config{
		PollInterval:  time.Duration(c.PollIntervalMS) * time.Millisecond,
		SlowThreshold: time.Duration(c.SlowThresholdMS) * time.Millisecond,
		Logger:        logger,
	}
}

// Apply installs the process-wide pieces of cfg: the default logger,
// the failure mode new machines copy, and the shared history path.
// Call it once during startup, before any vectors exist.
func Apply(cfg *Config) (*slog.Logger, error) {
	logger, err := cfg.Logging.Build()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	mode, err := parseMode(cfg.Checker.Mode)
	if err != nil {
		return nil, err
	}
	vstate.SetMode(mode)

	if cfg.Checker.HistoryPath != "" {
		if err := vstate.SetHistoryPath(cfg.Checker.HistoryPath); err != nil {
			return nil, fmt.Errorf("redirect history sink: %w", err)
		}
	}

	return logger, nil
}
