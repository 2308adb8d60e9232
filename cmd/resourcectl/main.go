// Package main is resourcectl, a command line client for the resource API
// and the local item store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/vyrodovalexey/resourcesync/internal/config"
	"github.com/vyrodovalexey/resourcesync/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	gitCommit = "unknown"
)

const usage = `Usage: resourcectl [flags] <command> [args]

Commands:
  list     [-page N] [-limit N]          list resources
  get      <id>                          show one resource
  create   -name NAME -email EMAIL       create a resource
  items    <list|add|update|remove|select|selected|clear>
                                         manage the local item store
  doctor                                 check the API and the store backend
  version                                print version information

Flags:
`

// errUsage reports a malformed command line.
var errUsage = errors.New("invalid usage")

// globalFlags holds flags shared by every command.
type globalFlags struct {
	configPath string
	baseURL    string
	logLevel   string
	output     string
}

// env bundles what commands need.
type env struct {
	cfg    *config.Config
	logger observability.Logger
	stdout io.Writer
	stderr io.Writer
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("resourcectl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}

	var g globalFlags
	defaults := config.EnvPrefix("RESOURCECTL")
	fs.StringVar(&g.configPath, "config", defaults.String("CONFIG_PATH", "configs/resourced.yaml"),
		"Path to configuration file")
	fs.StringVar(&g.baseURL, "base-url", defaults.String("BASE_URL", ""),
		"Resource API base URL; overrides the configuration")
	fs.StringVar(&g.logLevel, "log-level", defaults.String("LOG_LEVEL", "warn"),
		"Log level (debug, info, warn, error)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	cmd, cmdArgs := fs.Arg(0), fs.Args()[1:]
	if cmd == "version" {
		fmt.Fprintf(stdout, "resourcectl version %s (%s)\n", version, gitCommit)
		return 0
	}

	cfg, err := loadConfig(g)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	logger, _, err := observability.NewLogger(observability.LogConfig{
		Level:  g.logLevel,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	defer func() { _ = logger.Sync() }()

	e := &env{cfg: cfg, logger: logger, stdout: stdout, stderr: stderr}

	switch cmd {
	case "list":
		err = e.list(ctx, cmdArgs)
	case "get":
		err = e.get(ctx, cmdArgs)
	case "create":
		err = e.create(ctx, cmdArgs)
	case "items":
		err = e.items(ctx, cmdArgs)
	case "doctor":
		err = e.doctor(ctx, cmdArgs)
	default:
		err = fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	return e.exitCode(err)
}

// exitCode reports err and maps it to an exit code.
func (e *env) exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage):
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return 2
	default:
		fmt.Fprintf(e.stderr, "error: %v\n", err)
		return 1
	}
}

// loadConfig loads the configuration file, falling back to the defaults
// when it does not exist.
func loadConfig(g globalFlags) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(g.configPath); err == nil {
		cfg, err = config.Load(g.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
	}
	if g.baseURL != "" {
		cfg.Client.BaseURL = g.baseURL
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// printJSON writes v as indented JSON.
func (e *env) printJSON(v any) error {
	enc := json.NewEncoder(e.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
