// Package main is the entry point for the avamux dispatcher.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/avamux/internal/config"
	"github.com/vyrodovalexey/avamux/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// exitFunc is replaced in tests.
var exitFunc = os.Exit

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	bootstrap := initLogger(flags.logLevel, flags.logFormat, "")
	cfg := loadAndValidateConfig(flags.configPath, bootstrap)
	if cfg == nil {
		return
	}

	logger := initLogger(
		firstNonEmpty(flags.logLevel, cfg.Spec.Observability.Logging.Level),
		firstNonEmpty(flags.logFormat, cfg.Spec.Observability.Logging.Format),
		cfg.Spec.Observability.Logging.Output,
	)
	defer func() { _ = logger.Sync() }()

	app, err := initApplication(cfg, logger)
	if err != nil {
		fatalWithSync(logger, "failed to initialize application", observability.Error(err))
		return
	}

	runApplication(app, flags.configPath, logger)
}

// parseFlags parses command line flags. Empty log settings fall back to
// the configuration file.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AVAMUX_CONFIG_PATH", "configs/avamux.yaml"),
		"Path to configuration file")
	logLevel := flag.String("log-level", getEnvOrDefault("AVAMUX_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AVAMUX_LOG_FORMAT", ""),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("avamux version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// initLogger initializes the logger.
func initLogger(level, format, output string) observability.Logger {
	logger, err := observability.NewLogger(observability.LogConfig{
		Level:  firstNonEmpty(level, "info"),
		Format: firstNonEmpty(format, "json"),
		Output: output,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		exitFunc(1)
		return observability.NopLogger()
	}
	return logger
}

// loadAndValidateConfig loads and validates the configuration.
func loadAndValidateConfig(configPath string, logger observability.Logger) *config.Config {
	logger.Info("starting avamux",
		observability.String("version", version),
		observability.String("config", configPath),
	)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fatalWithSync(logger, "failed to load configuration", observability.Error(err))
		return nil
	}

	if err := config.ValidateConfig(cfg); err != nil {
		fatalWithSync(logger, "invalid configuration", observability.Error(err))
		return nil
	}

	logger.Info("configuration loaded",
		observability.String("name", cfg.Metadata.Name),
		observability.Int("backends", len(cfg.Spec.Backends.Addresses)),
		observability.Int("max_requests_per_backend", cfg.Spec.Backends.MaxRequestsPerBackend),
		observability.Bool("stats", cfg.Spec.Stats.Enabled),
	)

	return cfg
}

// fatalWithSync logs msg, flushes the logger and exits.
func fatalWithSync(logger observability.Logger, msg string, fields ...observability.Field) {
	logger.Error(msg, fields...)
	_ = logger.Sync()
	exitFunc(1)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
