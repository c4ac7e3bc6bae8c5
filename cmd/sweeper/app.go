package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/yairfalse/sweeper/internal/batch"
	"github.com/yairfalse/sweeper/internal/filter"
	"github.com/yairfalse/sweeper/internal/notify"
	"github.com/yairfalse/sweeper/internal/telemetry"
	"github.com/yairfalse/sweeper/policy"
	"github.com/yairfalse/sweeper/providers"
	awsprov "github.com/yairfalse/sweeper/providers/aws"
	"github.com/yairfalse/sweeper/storage"
	"github.com/yairfalse/sweeper/wal"
)

// app holds the long-lived dependencies shared by every pass
type app struct {
	telemetry *telemetry.Provider
	ledger    *storage.Ledger
	journal   *wal.WAL
	filter    filter.Chain
	notifier  notify.Notifier
	logger    zerolog.Logger
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{logger: telemetry.NewLogger("sweeper")}

	tp, err := telemetry.NewProvider(ctx, cfg.OTEL, telemetry.Options{})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}
	a.telemetry = tp

	if a.ledger, err = storage.Open(cfg.Storage.Path); err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	a.journal, err = wal.OpenWithConfig(cfg.Storage.WALDir, journalConfig())
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("open journal: %w", err)
	}

	rules, err := policy.LoadDir(ctx, cfg.PolicyDir, telemetry.NewLogger("policy"))
	if err != nil {
		_ = a.Close(ctx)
		return nil, fmt.Errorf("load scope policies: %w", err)
	}
	a.filter = filter.Chain{
		filter.New(cfg.Scope.ExcludeTypes, cfg.Scope.IncludeTags, cfg.Scope.ExcludeTags),
		rules,
	}

	if a.notifier, err = newNotifier(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	return a, nil
}

func journalConfig() wal.Config {
	return wal.Config{FilePrefix: "sweeper", RetentionDays: cfg.Storage.WALRetentionDays}
}

func newNotifier(ctx context.Context) (notify.Notifier, error) {
	notifiers := notify.Multi{notify.NewLogNotifier(telemetry.NewLogger("notify"))}

	if cfg.Notify.QueueURL != "" {
		awsCfg, err := awsprov.LoadConfig(ctx, cfg.GlobalRegion, cfg.AWS.Profile)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, notify.NewSQSNotifier(sqs.NewFromConfig(awsCfg), cfg.Notify.QueueURL))
	}

	return notify.NewGate(notifiers, cfg.Notify.AlertDryRun), nil
}

// baseConfig is the per-pass configuration shared by every job of a batch
func (a *app) baseConfig(runID string) providers.Config {
	return providers.Config{
		Account:   cfg.Account,
		RunID:     runID,
		Profile:   cfg.AWS.Profile,
		Lifecycle: cfg.Lifecycle(),
		Journal:   a.journal,
		Ledger:    a.ledger,
		Filter:    a.filter,
		Notifier:  a.notifier,
		Metrics:   a.telemetry.Metrics(),
		Logger:    telemetry.NewLogger("sweep"),
	}
}

func (a *app) batchOptions(runID string) batch.Options {
	return batch.Options{
		Base:         a.baseConfig(runID),
		DaysToDelete: cfg.DaysToDelete,
		Logger:       telemetry.NewLogger("batch"),
	}
}

// runBatch plans and runs jobs under a fresh run id
func (a *app) runBatch(ctx context.Context, regions, policies []string) (*batch.Report, error) {
	jobs, err := batch.Plan(regions, policies, cfg.GlobalRegion)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	a.logger.Info().
		Str("run_id", runID).
		Int("jobs", len(jobs)).
		Bool("dry_run", cfg.DryRun).
		Msg("starting batch")

	return batch.Run(ctx, jobs, a.batchOptions(runID))
}

// Close releases everything newApp opened
func (a *app) Close(ctx context.Context) error {
	var errs []error
	if a.journal != nil {
		errs = append(errs, a.journal.Close())
	}
	if a.ledger != nil {
		errs = append(errs, a.ledger.Close())
	}
	if a.telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		errs = append(errs, a.telemetry.Shutdown(shutdownCtx))
	}
	return errors.Join(errs...)
}

func defaultPolicies() []string {
	if len(cfg.Policies) > 0 {
		return cfg.Policies
	}
	return providers.Names()
}
