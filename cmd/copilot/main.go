package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"CopilotChat/internal/archive"
	"CopilotChat/internal/auth"
	"CopilotChat/internal/config"
	"CopilotChat/internal/copilot"
	"CopilotChat/internal/telemetry"
)

// rootOptions holds the persistent flags
type rootOptions struct {
	configPath string
	debug      bool
}

// app is the per-invocation runtime shared by subcommands
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	tracer trace.Tracer
	meter  metric.Meter
	tokens *auth.FileStore

	cleanups []func()
}

func (a *app) close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
}

// copilotOptions builds controller options from config and the app's telemetry
func (a *app) copilotOptions() copilot.Options {
	opts := copilot.OptionsFromConfig(a.cfg.Backend)
	opts.Logger = a.logger
	opts.Tracer = a.tracer
	opts.Meter = a.meter
	opts.Tokens = a.tokens
	return opts
}

// openArchive opens the transcript archive, or returns nil when disabled
func (a *app) openArchive() (*archive.Store, error) {
	if !a.cfg.Archive.Enabled {
		return nil, nil
	}
	store, err := archive.Open(a.cfg.Archive.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive: %w", err)
	}
	a.cleanups = append(a.cleanups, func() {
		if err := store.Close(); err != nil {
			a.logger.Error("failed to close archive", "error", err)
		}
	})
	return store, nil
}

func setup(ctx context.Context, opts *rootOptions) (*app, error) {
	// A .env file may carry API keys; it is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}
	cfg.Debug = opts.debug

	logger, logFile, err := telemetry.InitLogger(cfg.Log, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		tokens: auth.NewFileStore(cfg.Auth.TokenFile),
	}
	a.cleanups = append(a.cleanups, func() { logFile.Close() })

	if cfg.Telemetry.Enabled {
		tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.Telemetry)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		a.tracer, a.meter = tracer, meter
		a.cleanups = append(a.cleanups, shutdown)
	}

	return a, nil
}

// withApp wraps a subcommand body with runtime setup and teardown
func withApp(opts *rootOptions, run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := setup(cmd.Context(), opts)
		if err != nil {
			return err
		}
		defer a.close()
		return run(cmd, args, a)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "copilot",
		Short: "Database performance copilot",
		Long: `copilot talks to the database performance copilot backend.

It streams answers into an interactive chat, answers one-shot questions,
reviews SQL queries, and can run a local stand-in backend for development.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file (YAML); COPILOT_* env vars override it")
	rootCmd.PersistentFlags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newChatCmd(opts))
	rootCmd.AddCommand(newAskCmd(opts))
	rootCmd.AddCommand(newOptimizeCmd(opts))
	rootCmd.AddCommand(newServeDevCmd(opts))
	rootCmd.AddCommand(newLoginCmd(opts))
	rootCmd.AddCommand(newLogoutCmd(opts))
	rootCmd.AddCommand(newSessionsCmd(opts))

	return rootCmd
}

func readAllInput(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return string(data), nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
