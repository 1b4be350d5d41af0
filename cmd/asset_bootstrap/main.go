package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/italolelis/asset_bootstrap/internal/config"
	"github.com/italolelis/asset_bootstrap/internal/logctx"
	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"
)

var version = "dev"

// errNotReady makes check exit non-zero without logging a fatal error.
var errNotReady = errors.New("required assets are missing")

var (
	cfg       *config.Config
	logCloser io.Closer

	rootCmd = &cobra.Command{
		Use:           "asset_bootstrap",
		Short:         "Locates the game data directory and keeps its required assets present",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error

			cfg, err = config.LoadConfig()
			if err != nil {
				return err
			}

			logger := newLogger(cfg)
			slog.SetDefault(logger)

			cmd.SetContext(logctx.WithLogger(cmd.Context(), logger))

			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if logCloser != nil {
				logCloser.Close()
			}
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Resolve the directory, migrate legacy files and acquire missing assets (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg)
		},
	}
)

func main() {
	rootCmd.AddCommand(runCmd, checkCmd, migrateCmd, importCmd, fetchesCmd)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errNotReady) {
			slog.Error("fatal error", "err", err)
		}

		cancel()
		os.Exit(1)
	}
}

// newLogger writes JSON to stdout and, with LOG_FILE set, to a rotated file as well.
func newLogger(cfg *config.Config) *slog.Logger {
	var w io.Writer = os.Stdout

	if cfg.LogFile != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    32, // MB
			MaxBackups: 3,
			MaxAge:     14,
			Compress:   true,
		}
		logCloser = lj
		w = io.MultiWriter(os.Stdout, lj)
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: cfg.SlogLevel()})

	return slog.New(logctx.NewTraceHandler(handler)).With("version", version)
}
