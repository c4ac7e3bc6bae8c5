package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/yairfalse/sweeper/internal/daemon"
	"github.com/yairfalse/sweeper/internal/telemetry"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run batches continuously",
	Long: `Run a full batch immediately and then on every interval.
Serves Prometheus metrics and health endpoints until interrupted.`,
	Example: `  sweeper daemon --interval 24h --metrics-addr :2112`,
	RunE:    runDaemon,
}

func init() {
	rootCmd.AddCommand(daemonCmd)

	daemonCmd.Flags().Duration("interval", 0, "Time between batches (default: config daemon.interval)")
	daemonCmd.Flags().String("metrics-addr", "", "Metrics and health listen address (default: config daemon.metrics_addr)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	interval := cfg.Daemon.Interval
	if cmd.Flags().Changed("interval") {
		interval, _ = cmd.Flags().GetDuration("interval")
	}
	addr := cfg.Daemon.MetricsAddr
	if cmd.Flags().Changed("metrics-addr") {
		addr, _ = cmd.Flags().GetString("metrics-addr")
	}

	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close(ctx) }()

	metrics, err := daemon.NewDaemonMetrics(a.telemetry.Meter())
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger("daemon")
	d, err := daemon.NewDaemon(daemon.Config{
		Interval:    interval,
		MetricsAddr: addr,
		Metrics:     metrics,
		Logger:      logger,
	}, func(ctx context.Context) error {
		r, err := a.runBatch(ctx, cfg.Regions, defaultPolicies())
		if r != nil {
			deleted, errs := r.Totals()
			logger.Info().
				Str("run_id", r.RunID).
				Int("deleted", deleted).
				Int("errors", errs).
				Int("failed_passes", r.Failed()).
				Msg("batch complete")
		}

		stats, cleanupErr := a.journal.Cleanup()
		if cleanupErr != nil {
			logger.Warn().Err(cleanupErr).Msg("journal cleanup failed")
		} else if stats.FilesRemoved > 0 {
			logger.Info().Int("files", stats.FilesRemoved).Msg("old journal files removed")
		}
		return err
	})
	if err != nil {
		return err
	}

	logger.Info().
		Dur("interval", interval).
		Str("metrics_addr", addr).
		Bool("dry_run", cfg.DryRun).
		Msg("daemon starting")
	return d.Start(ctx)
}
