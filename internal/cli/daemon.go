package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/shortcut-sage/internal/buffer"
	"github.com/roach88/shortcut-sage/internal/config"
	"github.com/roach88/shortcut-sage/internal/pipeline"
	"github.com/roach88/shortcut-sage/internal/policy"
	"github.com/roach88/shortcut-sage/internal/rules"
	"github.com/roach88/shortcut-sage/internal/shortcut"
	"github.com/roach88/shortcut-sage/internal/telemetry"
	"github.com/roach88/shortcut-sage/internal/transport"
)

// DaemonOptions holds flags for the daemon command.
type DaemonOptions struct {
	*RootOptions
	ConfigDir      string
	Database       string
	Listen         string
	Window         time.Duration
	TopN           int
	Redis          string
	ReloadInterval time.Duration
	NoTelemetry    bool
}

// NewDaemonCommand creates the daemon command.
func NewDaemonCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DaemonOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the suggestion daemon",
		Long: `Run the suggestion daemon.

The daemon loads rules.yaml and shortcuts.yaml from the config directory,
accepts events over HTTP on a loopback address and streams suggestions to
presentation clients over WebSocket. Configuration files are reloaded when
they change; an invalid edit keeps the previous configuration active.

Endpoints:
  POST /v1/events       submit an event, returns suggestions
  POST /v1/accept       record that a suggestion was used
  GET  /v1/ping         liveness
  GET  /v1/buffer       current event buffer
  GET  /v1/metrics      live metrics
  GET  /v1/suggestions  WebSocket suggestion stream

Examples:
  shortcut-sage daemon
  shortcut-sage daemon --config ./config --no-telemetry --verbose
  shortcut-sage daemon --redis localhost:6379 --listen 127.0.0.1:7879`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigDir, "config", defaultConfigDir(), "directory holding rules.yaml and shortcuts.yaml")
	cmd.Flags().StringVar(&opts.Database, "db", defaultDatabasePath(), "path to the telemetry SQLite database")
	cmd.Flags().StringVar(&opts.Listen, "listen", transport.DefaultAddr, "HTTP listen address")
	cmd.Flags().DurationVar(&opts.Window, "window", buffer.DefaultWindow, "event buffer retention window")
	cmd.Flags().IntVar(&opts.TopN, "top-n", policy.DefaultTopN, "maximum suggestions per event")
	cmd.Flags().StringVar(&opts.Redis, "redis", "", "Redis address for a shared cooldown ledger (optional)")
	cmd.Flags().DurationVar(&opts.ReloadInterval, "reload-interval", config.DefaultReloadInterval, "config file poll interval")
	cmd.Flags().BoolVar(&opts.NoTelemetry, "no-telemetry", false, "keep metrics in memory only")

	return cmd
}

func runDaemon(opts *DaemonOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions)
	slog.SetDefault(logger)

	if opts.TopN < 0 {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid --top-n %d: must be non-negative", opts.TopN))
	}

	// Telemetry
	var store *telemetry.Store
	if !opts.NoTelemetry {
		if err := os.MkdirAll(filepath.Dir(opts.Database), 0o755); err != nil {
			return WrapExitError(ExitCommandError, "failed to create database directory", err)
		}
		var err error
		store, err = telemetry.OpenStore(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open telemetry database", err)
		}
		defer func() {
			if closeErr := store.Close(); closeErr != nil {
				logger.Error("error closing telemetry database", "error", closeErr)
			}
		}()
		logger.Info("telemetry database ready", "path", opts.Database)
	}
	recorder := telemetry.NewRecorder(store, telemetry.WithLogger(logger))
	defer recorder.Stop()

	// Cooldown ledger
	engine := policy.New()
	if opts.Redis != "" {
		ledger, err := policy.NewRedisLedger(opts.Redis, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to connect cooldown ledger", err)
		}
		defer ledger.Close()
		engine = policy.New(policy.WithLedger(ledger))
	}

	// Pipeline
	logger.Info("loading configuration", "dir", opts.ConfigDir)
	p, err := buildPipeline(opts.ConfigDir, opts.Window, opts.TopN, logger,
		pipeline.WithPolicy(engine),
		pipeline.WithRecorder(recorder),
	)
	if err != nil {
		recorder.Error(err.Error(), map[string]string{"stage": "startup"})
		code := ExitFailure
		if config.IsNotFound(err) || errors.Is(err, buffer.ErrInvalidConfiguration) {
			code = ExitCommandError
		}
		return WrapExitError(code, "failed to load configuration", err)
	}
	logger.Info("configuration loaded",
		"rules", p.Rules().Len(),
		"shortcuts", p.Shortcuts().Len(),
		"window", p.Window(),
	)

	hub := transport.NewHub(logger)
	dispatcher := pipeline.NewDispatcher(p,
		pipeline.WithResultHook(hub.Publish),
		pipeline.WithDispatcherLogger(logger),
	)
	watcher := config.NewWatcher(opts.ConfigDir, opts.ReloadInterval, reloadHandlers(p, recorder), logger)
	server := transport.NewServer(transport.Config{
		Addr:       opts.Listen,
		Dispatcher: dispatcher,
		Pipeline:   p,
		Hub:        hub,
		Metrics:    recorder.Metrics(),
		Logger:     logger,
	})

	// Setup signal handling for graceful shutdown
	// Use command's context if available (for testing)
	ctx, cancel := context.WithCancel(cmdContext(cmd))
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dispatcher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		watcher.Watch(ctx)
	}()

	started := time.Now()
	recorder.Log(telemetry.DaemonStart, 0, map[string]string{
		"listen": opts.Listen,
		"rules":  strconv.Itoa(p.Rules().Len()),
	})
	logger.Info("daemon starting", "listen", opts.Listen, "session", recorder.Session())

	serveErr := server.ListenAndServe(ctx)

	cancel()
	dispatcher.Stop()
	wg.Wait()
	recorder.Log(telemetry.DaemonStop, time.Since(started), nil)

	if serveErr != nil {
		return WrapExitError(ExitCommandError, "transport error", serveErr)
	}
	logger.Info("daemon stopped gracefully")
	return nil
}

// reloadHandlers installs reloaded configuration into p. The watcher does
// the logging.
func reloadHandlers(p *pipeline.Pipeline, recorder *telemetry.Recorder) config.Handlers {
	return config.Handlers{
		Rules: func(set *rules.RuleSet) {
			p.SetRules(set)
			recorder.Log(telemetry.ConfigReload, 0, map[string]string{"file": config.RulesFile})
		},
		Shortcuts: func(s []rules.Shortcut) {
			p.SetShortcuts(shortcut.NewTable(s))
			recorder.Log(telemetry.ConfigReload, 0, map[string]string{"file": config.ShortcutsFile})
		},
		Failed: func(file string, err error) {
			recorder.Error(err.Error(), map[string]string{"stage": "reload", "file": file})
		},
	}
}
