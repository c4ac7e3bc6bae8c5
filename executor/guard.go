package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yairfalse/sweeper/lifecycle"
	"github.com/yairfalse/sweeper/storage"
	"github.com/yairfalse/sweeper/types"
	"github.com/yairfalse/sweeper/wal"
)

// Journal is the append-only action log; *wal.WAL implements it
type Journal interface {
	Append(entryType wal.EntryType, resourceID string, data interface{}) error
	AppendError(entryType wal.EntryType, resourceID string, data interface{}, errToLog error) error
}

// Scope identifies the pass a guard serves
type Scope struct {
	RunID   string `json:"run_id,omitempty"`
	Policy  string `json:"policy"`
	Region  string `json:"region"`
	Account string `json:"account,omitempty"`
}

// ActionRecord is the payload journaled for each guarded call
type ActionRecord struct {
	Scope
	Action      Action `json:"action"`
	CleanupDays int    `json:"cleanup_days,omitempty"`
}

// Guard decorates a provider: it runs safety checks before every destructive or
// counter-advancing call, journals the call and records deletions in the ledger.
type Guard[T any] struct {
	inner   lifecycle.Provider[T]
	scope   Scope
	dryRun  bool
	journal Journal
	ledger  storage.DeletionWriter
	checks  []SafetyCheckFunc
	logger  zerolog.Logger
	now     func() time.Time
}

// GuardOption configures a Guard
type GuardOption func(*guardOptions)

type guardOptions struct {
	journal Journal
	ledger  storage.DeletionWriter
	checks  []SafetyCheckFunc
	logger  zerolog.Logger
}

// WithJournal journals every guarded call
func WithJournal(j Journal) GuardOption {
	return func(o *guardOptions) { o.journal = j }
}

// WithLedger records successful deletions
func WithLedger(l storage.DeletionWriter) GuardOption {
	return func(o *guardOptions) { o.ledger = l }
}

// WithSafetyChecks replaces the default safety checks
func WithSafetyChecks(checks ...SafetyCheckFunc) GuardOption {
	return func(o *guardOptions) { o.checks = checks }
}

// WithGuardLogger sets the guard logger
func WithGuardLogger(logger zerolog.Logger) GuardOption {
	return func(o *guardOptions) { o.logger = logger }
}

// NewGuard wraps inner. dryRun must match the engine configuration.
func NewGuard[T any](inner lifecycle.Provider[T], scope Scope, dryRun bool, opts ...GuardOption) *Guard[T] {
	o := guardOptions{
		checks: DefaultSafetyChecks(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Guard[T]{
		inner:   inner,
		scope:   scope,
		dryRun:  dryRun,
		journal: o.journal,
		ledger:  o.ledger,
		checks:  o.checks,
		logger:  o.logger,
		now:     time.Now,
	}
}

var _ lifecycle.Provider[map[string]string] = (*Guard[map[string]string])(nil)

// TagLookup delegates to the wrapped provider
func (g *Guard[T]) TagLookup(tags T, key string) string {
	return g.inner.TagLookup(tags, key)
}

// TagUpdate delegates to the wrapped provider
func (g *Guard[T]) TagUpdate(tags T, key, value string) T {
	return g.inner.TagUpdate(tags, key, value)
}

// ListAllInstances delegates to the wrapped provider
func (g *Guard[T]) ListAllInstances(ctx context.Context) ([]types.Resource[T], error) {
	return g.inner.ListAllInstances(ctx)
}

// DeleteResource runs safety checks, journals and deletes.
// Provider errors are returned unmodified.
func (g *Guard[T]) DeleteResource(ctx context.Context, resourceID string) error {
	call := Call{Action: ActionDelete, ResourceID: resourceID, DryRun: g.dryRun}
	if err := runChecks(ctx, g.checks, call); err != nil {
		g.journalError(resourceID, call, err)
		return err
	}

	record := g.record(call)
	if err := g.append(wal.EntryDeleting, resourceID, record); err != nil {
		return err
	}

	if err := g.inner.DeleteResource(ctx, resourceID); err != nil {
		g.journalError(resourceID, call, err)
		return err
	}

	if err := g.append(wal.EntryDeleted, resourceID, record); err != nil {
		g.logger.Error().Err(err).Str("resource_id", resourceID).Msg("failed to journal completed deletion")
	}

	if g.ledger != nil {
		err := g.ledger.RecordDeletion(storage.Deletion{
			RunID:      g.scope.RunID,
			Policy:     g.scope.Policy,
			Region:     g.scope.Region,
			Account:    g.scope.Account,
			ResourceID: resourceID,
			DeletedAt:  g.now().UTC(),
		})
		if err != nil {
			g.logger.Error().Err(err).Str("resource_id", resourceID).Msg("failed to record deletion in ledger")
		}
	}

	return nil
}

// UpdateResourceDayCountTag runs safety checks, persists the counter and journals it.
// A write of 0 is a counter reset.
func (g *Guard[T]) UpdateResourceDayCountTag(ctx context.Context, resourceID string, cleanupDays int, tags T) error {
	action, entryType := ActionTag, wal.EntryTagged
	if cleanupDays == 0 {
		action, entryType = ActionReset, wal.EntryReset
	}
	call := Call{Action: action, ResourceID: resourceID, CleanupDays: cleanupDays, DryRun: g.dryRun}
	if err := runChecks(ctx, g.checks, call); err != nil {
		g.journalError(resourceID, call, err)
		return err
	}

	if err := g.inner.UpdateResourceDayCountTag(ctx, resourceID, cleanupDays, tags); err != nil {
		g.journalError(resourceID, call, err)
		return err
	}

	if err := g.append(entryType, resourceID, g.record(call)); err != nil {
		g.logger.Warn().Err(err).Str("resource_id", resourceID).Msg("failed to journal counter update")
	}
	return nil
}

func (g *Guard[T]) record(call Call) ActionRecord {
	return ActionRecord{Scope: g.scope, Action: call.Action, CleanupDays: call.CleanupDays}
}

func (g *Guard[T]) append(entryType wal.EntryType, resourceID string, record ActionRecord) error {
	if g.journal == nil {
		return nil
	}
	if err := g.journal.Append(entryType, resourceID, record); err != nil {
		return fmt.Errorf("journal %s %s: %w", entryType, resourceID, err)
	}
	return nil
}

func (g *Guard[T]) journalError(resourceID string, call Call, cause error) {
	if g.journal == nil {
		return
	}
	if err := g.journal.AppendError(wal.EntryFailed, resourceID, g.record(call), cause); err != nil {
		g.logger.Error().Err(err).Str("resource_id", resourceID).Msg("failed to journal failure")
	}
}
