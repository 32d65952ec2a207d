package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/live-sessions/internal/config"
	"github.com/example/live-sessions/internal/logging"
)

// rootOptions are the flags shared by every command.
type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "livesessions",
		Short:         "Schedule live sessions and ingest their recordings",
		Long:          "Runs the live-session API, its recording reconciler and the operator tools around them.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to a TOML config file (overrides LIVESESSIONS_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(newServeCmd(opts))
	rootCmd.AddCommand(newMigrateCmd(opts))
	rootCmd.AddCommand(newDoctorCmd(opts))
	rootCmd.AddCommand(newRepairCmd(opts))
	rootCmd.AddCommand(newUserCmd(opts))
	rootCmd.AddCommand(newClientCmd())

	return rootCmd
}

// load reads the configuration after applying the --config flag.
func (o *rootOptions) load() (config.Config, error) {
	if o.configPath != "" {
		if err := os.Setenv("LIVESESSIONS_CONFIG", o.configPath); err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func (o *rootOptions) logger(cfg config.Config, out io.Writer) *slog.Logger {
	level := cfg.LogLevel
	if strings.TrimSpace(o.logLevel) != "" {
		level = o.logLevel
	}
	return logging.New(logging.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Level:       level,
		Output:      out,
	})
}

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, repair workers and reconciler",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := opts.logger(cfg, cmd.OutOrStdout())
			slog.SetDefault(logger)

			ctx := cmd.Context()
			a, err := buildApp(ctx, cfg, logger)
			if err != nil {
				return fmt.Errorf("initializing app: %w", err)
			}
			defer func() {
				if cerr := a.close(); cerr != nil {
					logger.Error("failed to close storage", "error", cerr)
				}
			}()

			if n, err := a.recordings.RequeuePending(ctx); err != nil {
				logger.Warn("failed to requeue pending repairs", "error", err)
			} else if n > 0 {
				logger.Info("requeued pending repairs", "count", n)
			}
			return a.serve(ctx)
		},
	}
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			logger := opts.logger(cfg, cmd.ErrOrStderr())
			store, err := openStorage(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer store.Close()

			status, err := store.SchemaStatus(cmd.Context())
			if err != nil {
				return err
			}
			f := newFormatter(cmd.OutOrStdout())
			f.Success(fmt.Sprintf("Schema at version %s (%d applied, %d pending)", status.CurrentVersion, len(status.Applied), len(status.Pending)))
			return nil
		},
	}
}
