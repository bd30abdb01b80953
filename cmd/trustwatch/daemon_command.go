package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"trustwatch/internal/config"
	"trustwatch/internal/daemon"
	"trustwatch/internal/logging"
	"trustwatch/internal/metrics"
	"trustwatch/internal/notifications"
	"trustwatch/internal/scan"
	"trustwatch/internal/snapshot"
	"trustwatch/internal/watch"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run the scan scheduler, change watcher, and health endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemonProcess(cmd.Context(), ctx, skipPreflight)
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip startup connectivity checks")
	return cmd
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext, skipPreflight bool) error {
	if cmdCtx == nil {
		cmdCtx = context.Background()
	}
	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	d, err := buildDaemon(signalCtx, cfg, ctx.resolvedConfigPath(), logger, skipPreflight)
	if err != nil {
		logger.Error("daemon setup failed", logging.Error(err))
		return err
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		logging.ErrorWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check server.bind / PORT and that no other daemon holds the lock"),
		)
		return err
	}

	<-signalCtx.Done()
	logger.Info("trustwatch daemon shutting down")
	return nil
}

// buildDaemon wires the snapshot store, scan runner, notifier, and watcher
// into a daemon. The caller owns the returned daemon and must Close it.
func buildDaemon(ctx context.Context, cfg *config.Config, configPath string, logger *slog.Logger, skipPreflight bool) (*daemon.Daemon, error) {
	store, err := snapshot.Open(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}

	m := metrics.New()
	runner, err := newRunner(cfg, configPath, store, logger, m)
	if err != nil {
		store.Close()
		return nil, err
	}

	watcher := watch.New(store, runner, notifications.NewService(cfg, logger), logger, watch.Options{
		ScanInterval:    cfg.ScanInterval(),
		PollInterval:    cfg.PollInterval(),
		DiffScanResults: cfg.Watch.DiffScanResults,
		Metrics:         m,
	})

	d, err := daemon.New(cfg, watcher, logger, daemon.Options{
		Store:         store,
		Metrics:       m,
		SkipPreflight: skipPreflight,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("create daemon: %w", err)
	}
	return d, nil
}

func newRunner(cfg *config.Config, configPath string, store snapshot.Store, logger *slog.Logger, m *metrics.Metrics) (watch.Runner, error) {
	if cfg.Scan.Isolation == config.IsolationProcess {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate trustwatch executable: %w", err)
		}
		args := []string{"scan"}
		if configPath != "" {
			args = append(args, "--config", configPath)
		}
		return watch.ProcessRunner{
			Executable: exe,
			Args:       args,
			Stdout:     os.Stdout,
			Stderr:     os.Stderr,
		}, nil
	}

	pipeline, err := scan.NewPipelineFromConfig(cfg, store, logger, m)
	if err != nil {
		return nil, fmt.Errorf("build scan pipeline: %w", err)
	}
	return watch.InlineRunner{Scanner: pipeline}, nil
}
