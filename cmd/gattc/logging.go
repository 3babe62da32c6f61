package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/srg/gattc/pkg/config"
)

// loadConfig returns the configuration for a command run. It reads the file
// named by --config when the flag is set and falls back to defaults otherwise.
// The boolean reports whether a config file was actually loaded.
func loadConfig(cmd *cobra.Command) (*config.Config, bool, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.DefaultConfig(), false, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load config %s: %w", path, err)
	}
	return cfg, true, nil
}

// setupCommand loads configuration and builds the command logger in one step.
// Config-file log levels apply only when a file was explicitly given.
func setupCommand(cmd *cobra.Command) (*config.Config, *logrus.Logger, error) {
	cfg, fromFile, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	fileCfg := cfg
	if !fromFile {
		fileCfg = nil
	}
	logger, err := configureLogger(cmd, fileCfg, "verbose")
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

// configureLogger creates a logger with the appropriate log level based on flags.
// It respects both --log-level and --verbose flags, with --log-level taking precedence
// over the flag and both taking precedence over the config file. Pass a nil cfg
// when no config file was loaded so the CLI stays silent by default.
// Returns a configured logger or error if the log-level is invalid.
func configureLogger(cmd *cobra.Command, cfg *config.Config, verboseFlagName string) (*logrus.Logger, error) {
	// Default to panic level (essentially silent for normal operations)
	logLevel := logrus.PanicLevel

	if cfg != nil {
		parsed, err := logrus.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("invalid log level in config: %s", cfg.LogLevel)
		}
		logLevel = parsed
	}

	// Check --log-level first (takes precedence)
	logLevelStr, _ := cmd.Flags().GetString("log-level")
	if logLevelStr != "" {
		switch logLevelStr {
		case "debug":
			logLevel = logrus.DebugLevel
		case "info":
			logLevel = logrus.InfoLevel
		case "warn":
			logLevel = logrus.WarnLevel
		case "error":
			logLevel = logrus.ErrorLevel
		default:
			return nil, fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", logLevelStr)
		}
	} else if verboseFlagName != "" {
		// Fall back to --verbose flag if no --log-level specified
		verbose, _ := cmd.Flags().GetBool(verboseFlagName)
		if verbose {
			logLevel = logrus.DebugLevel
		}
	}

	// Create logger with configured level
	logger := logrus.New()
	logger.SetLevel(logLevel)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger, nil
}
