// Package app wires the asyncfetch commands to the services.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"
	"github.com/vertextoedge/asyncfetch/internal/adapter/httpremote"
	"github.com/vertextoedge/asyncfetch/internal/adapter/sqlite"
	"github.com/vertextoedge/asyncfetch/internal/config"
	"github.com/vertextoedge/asyncfetch/internal/domain"
	"github.com/vertextoedge/asyncfetch/internal/logger"
	"github.com/vertextoedge/asyncfetch/internal/port"
	"go.uber.org/zap"
)

// App is the asyncfetch command line application
type App struct {
	Stdout io.Writer
	Stderr io.Writer

	// Logger replaces the configured logger when set
	Logger *zap.Logger
}

// New creates a new App writing results to stdout and notices to stderr
func New(stdout, stderr io.Writer) *App {
	return &App{Stdout: stdout, Stderr: stderr}
}

// Run parses args, including the program name, and runs the selected command
func (a *App) Run(ctx context.Context, args []string) error {
	return a.CLI().RunContext(ctx, args)
}

// CLI builds the urfave/cli application
func (a *App) CLI() *cli.App {
	return &cli.App{
		Name:                 "asyncfetch",
		Usage:                "mirror and poll asynchronous request result directories",
		Version:              config.Version,
		Writer:               a.Stdout,
		ErrWriter:            a.Stderr,
		EnableBashCompletion: true,
		// exit codes are decided by the caller
		ExitErrHandler: func(c *cli.Context, err error) {},
		OnUsageError:   usageError,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a YAML configuration file",
				EnvVars: []string{config.EnvPrefix + "_CONFIG"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text, json)",
			},
			&cli.BoolFlag{
				Name:  "insecure",
				Usage: "skip TLS certificate verification",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "overall HTTP request timeout, e.g. 30s (0 = none)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "number of concurrent workers",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "SQLite history database path; empty disables history",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "fetch",
				Usage:     "Mirror the async result directory referenced by each JSON file",
				ArgsUsage: "FILE...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "verbose transfer logging"},
					&cli.BoolFlag{Name: "dry-run", Aliases: []string{"x"}, Usage: "walk the remote tree without downloading"},
					&cli.StringFlag{Name: "dir", Aliases: []string{"d"}, Usage: "destination root (default: working directory)"},
					&cli.BoolFlag{Name: "force", Aliases: []string{"f"}, Usage: "clobber an existing destination"},
					&cli.StringFlag{Name: "user", Aliases: []string{"u"}, Usage: "override the user path segment"},
					&cli.StringFlag{Name: "stream", Aliases: []string{"p"}, Usage: "override the stream path segment"},
				},
				OnUsageError: usageError,
				Action:       a.FetchAction,
			},
			{
				Name:      "status",
				Usage:     "Report how many async requests in each JSON file have completed",
				ArgsUsage: "FILE...",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "verbose probe logging"},
					&cli.DurationFlag{Name: "watch", Aliases: []string{"w"}, Usage: "re-probe unfinished requests at this interval until all complete"},
					&cli.IntFlag{Name: "max-rounds", Usage: "stop watching after this many rounds (0 = no limit)"},
				},
				OnUsageError: usageError,
				Action:       a.StatusAction,
			},
			{
				Name:      "request",
				Usage:     "Send async request URLs and print the server responses as JSON",
				ArgsUsage: "URL...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "file of request URLs, whitespace separated or a JSON array"},
					&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "write the responses to this file"},
					&cli.IntFlag{Name: "timeout", Aliases: []string{"t"}, Value: 120, Usage: "request timeout in seconds"},
				},
				OnUsageError: usageError,
				Action:       a.RequestAction,
			},
			{
				Name:         "build",
				Usage:        "Print async request URLs for the instruments matching a reference designator",
				ArgsUsage:    "REFDES",
				Flags:        buildFlags(),
				OnUsageError: usageError,
				Action:       a.BuildAction,
			},
			{
				Name:  "history",
				Usage: "List recorded fetch and status runs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 20, Usage: "maximum records of each kind"},
					&cli.StringFlag{Name: "format", Value: "yaml", Usage: "output format (yaml, json)"},
				},
				OnUsageError: usageError,
				Action:       a.HistoryAction,
			},
		},
	}
}

func usageError(c *cli.Context, err error, isSubcommand bool) error {
	return domain.NewUsageError(err)
}

// ExitCode maps an error returned by Run to a process exit status
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr cli.ExitCoder
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return 1
}

// env holds what one command run needs
type env struct {
	opts    config.Options
	logger  *zap.Logger
	history port.HistoryRepository
	runID   string
	closers []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

func (e *env) recordFetch(outcome *domain.FetchOutcome) {
	if e.history == nil {
		return
	}
	if err := e.history.RecordFetch(e.runID, outcome); err != nil {
		e.logger.Warn("failed to record fetch", zap.Error(err))
	}
}

func (e *env) recordProbe(inputFile string, result *domain.ProbeResult) {
	if e.history == nil {
		return
	}
	if err := e.history.RecordProbe(e.runID, inputFile, result); err != nil {
		e.logger.Warn("failed to record probe", zap.Error(err))
	}
}

// prepare loads configuration, merges the global flags and the command
// overrides, and builds the logger and optional history store
func (a *App) prepare(c *cli.Context, o config.Overrides, infoLogs bool) (*env, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, domain.NewUsageError(err)
	}

	if c.IsSet("insecure") {
		v := c.Bool("insecure")
		o.Insecure = &v
	}
	// request and build define their own per-request timeout
	if global := c.Lineage()[len(c.Lineage())-1]; global.IsSet("timeout") {
		v := global.Duration("timeout")
		if v < 0 {
			return nil, domain.NewUsageError(fmt.Errorf("timeout must not be negative, got %s", v))
		}
		o.Timeout = &v
	}
	if c.IsSet("workers") {
		v := c.Int("workers")
		if v < 1 || v > 32 {
			return nil, domain.NewUsageError(fmt.Errorf("workers must be between 1 and 32, got %d", v))
		}
		o.Workers = &v
	}
	if c.IsSet("db") {
		v := c.String("db")
		o.DatabasePath = &v
	}

	e := &env{
		opts:  cfg.Options(o),
		runID: uuid.NewString(),
	}

	e.logger = a.Logger
	if e.logger == nil {
		level := cfg.Logging.Level
		if c.IsSet("log-level") {
			level = c.String("log-level")
		}
		format := cfg.Logging.Format
		if c.IsSet("log-format") {
			format = c.String("log-format")
		}
		if o.Verbose {
			level = "debug"
		} else if infoLogs && (level == "warn" || level == "error") {
			level = "info"
		}

		if err := logger.Init(level, format); err != nil {
			return nil, domain.NewUsageError(err)
		}
		e.logger = logger.GetZapLogger()
		e.closers = append(e.closers, logger.Sync)
	}

	if e.opts.DatabasePath != "" {
		store, err := sqlite.Open(e.opts.DatabasePath)
		if err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to open history database: %w", err)
		}
		e.history = store
		e.closers = append(e.closers, store.Close)
	}

	e.logger.Debug("starting",
		zap.String("command", c.Command.Name),
		zap.String("version", config.Version),
		zap.String("run_id", e.runID))

	return e, nil
}

// newClient builds the HTTP client from the merged options
func (e *env) newClient() *httpremote.Client {
	return httpremote.NewClient(&httpremote.ClientConfig{
		SkipTLSVerify:      e.opts.SkipTLSVerify,
		Timeout:            e.opts.Timeout,
		MinRequestInterval: e.opts.MinRequestInterval,
		UserAgent:          e.opts.UserAgent,
	}, e.logger)
}
