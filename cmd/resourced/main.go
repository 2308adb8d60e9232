// Package main is the entry point for the resource API server.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	watch       bool
	showVersion bool
}

func main() {
	flags := parseFlags(os.Args[1:])

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := loadAndValidateConfig(flags.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, levels, err := initLogger(flags, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting resourced",
		observability.String("version", version),
		observability.String("config", flags.configPath),
	)

	app, err := initApplication(cfg, logger, levels)
	if err != nil {
		logger.Fatal("failed to initialize application", observability.Error(err))
	}

	if err := runServer(app, flags, logger); err != nil {
		logger.Fatal("server failed", observability.Error(err))
	}
}

// parseFlags parses command line flags. Environment variables provide
// the defaults.
func parseFlags(args []string) cliFlags {
	fs := flag.NewFlagSet("resourced", flag.ExitOnError)
	env := config.EnvPrefix("RESOURCED")
	configPath := fs.String("config", env.String("CONFIG_PATH", "configs/resourced.yaml"),
		"Path to configuration file")
	logLevel := fs.String("log-level", env.String("LOG_LEVEL", ""),
		"Log level (debug, info, warn, error); overrides the configuration")
	logFormat := fs.String("log-format", env.String("LOG_FORMAT", ""),
		"Log format (json, console); overrides the configuration")
	watch := fs.Bool("watch", env.Bool("WATCH_CONFIG", true),
		"Reload the configuration file when it changes")
	showVersion := fs.Bool("version", false, "Show version information")
	_ = fs.Parse(args)

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		watch:       *watch,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("resourced version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// loadAndValidateConfig loads the configuration file. A missing file is
// not an error when the default path is used.
func loadAndValidateConfig(configPath string) (*config.Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), nil
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// initLogger builds the process logger. Flags win over the configuration.
func initLogger(flags cliFlags, cfg *config.Config) (observability.Logger, observability.LevelSetter, error) {
	logCfg := observability.LogConfig{
		Level:  cfg.Observability.Logging.Level,
		Format: cfg.Observability.Logging.Format,
	}
	if flags.logLevel != "" {
		logCfg.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		logCfg.Format = flags.logFormat
	}
	return observability.NewLogger(logCfg)
}
