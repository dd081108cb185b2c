package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/extbox"
	"github.com/loykin/extbox/internal/config"
	"github.com/loykin/extbox/internal/logger"
)

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Start the extbox daemon",
		Long: `Start the scheduler, its modules, the cron jobs and the HTTP API.

The config file may be given as an argument or with --config. Without a
file the daemon runs on built-in defaults and EXTBOX_* environment
variables.

Examples:
  extbox serve config.toml
  extbox serve config.toml --daemonize --pidfile=/run/extbox.pid`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			serveFlags.ConfigPath = globalFlags.ConfigPath
			if len(args) == 1 {
				serveFlags.ConfigPath = args[0]
			}
			return runServe(cmd.Context(), *serveFlags)
		},
	}
	cmd.Flags().BoolVar(&serveFlags.Daemonize, "daemonize", false, "run in background")
	cmd.Flags().StringVar(&serveFlags.PidFile, "pidfile", "", "PID file (overrides server.pidfile)")
	cmd.Flags().StringVar(&serveFlags.LogFile, "logfile", "", "daemon stdout/stderr file (overrides server.logfile)")
	cmd.Flags().BoolVar(&serveFlags.NoWatch, "no-watch", false, "do not reload the config file on change")
	return cmd
}

func runServe(parent context.Context, f ServeFlags) error {
	cfg, err := config.Load(f.ConfigPath)
	if err != nil {
		return err
	}
	if f.PidFile == "" {
		f.PidFile = cfg.Server.PidFile
	}
	if f.LogFile == "" {
		f.LogFile = cfg.Server.LogFile
	}

	if f.Daemonize {
		if !isDaemonSupported() {
			return fmt.Errorf("daemonize is not supported on this platform")
		}
		if err := daemonize(f.PidFile, f.LogFile); err != nil {
			return err
		}
	} else if f.PidFile != "" {
		if err := writePidFile(f.PidFile, os.Getpid()); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
	}
	defer func() { _ = removePidFile(f.PidFile) }()

	lc := cfg.Log.Logger()
	lc.LevelVar = new(slog.LevelVar)
	log, closer, err := logger.New(lc)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()
	slog.SetDefault(log)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	box, err := extbox.New(ctx, cfg, extbox.Options{Log: log, LevelVar: lc.LevelVar})
	if err != nil {
		return err
	}
	if f.ConfigPath != "" && !f.NoWatch {
		if err := config.Watch(f.ConfigPath, log, box.Apply); err != nil {
			log.Warn("config watch disabled", "error", err)
		}
	}

	log.Info("extbox started", "config", f.ConfigPath, "api", cfg.Server.Enabled)
	if err := box.Run(ctx); err != nil {
		return err
	}
	log.Info("extbox stopped")
	return nil
}
