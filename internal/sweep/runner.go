// Package sweep runs one scan pass: enumerate candidates, compute idle days,
// decide, then persist the advanced counter.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/sweeper/internal/notify"
	"github.com/yairfalse/sweeper/internal/telemetry"
	"github.com/yairfalse/sweeper/lifecycle"
	"github.com/yairfalse/sweeper/pkg/tags"
	"github.com/yairfalse/sweeper/policy"
	"github.com/yairfalse/sweeper/storage"
	"github.com/yairfalse/sweeper/types"
)

// ScopeFilter excludes resources from a pass; *policy.Filter implements it
type ScopeFilter interface {
	Excluded(ctx context.Context, in policy.Input) ([]string, error)
}

// Ledger records evaluations and remembers the last alert raised per resource
type Ledger interface {
	storage.EvaluationWriter
	storage.SummaryReader
}

// Options carries the pass identity and its collaborators. Every collaborator is optional.
type Options struct {
	Policy       string
	Region       string
	Account      string
	RunID        string
	DaysToDelete int

	Filter   ScopeFilter
	Notifier notify.Notifier
	Ledger   Ledger
	Metrics  *telemetry.Metrics
	Logger   zerolog.Logger
}

// Summary reports the outcome of one pass
type Summary struct {
	RunID      string                  `json:"run_id,omitempty"`
	Policy     string                  `json:"policy"`
	Region     string                  `json:"region"`
	DryRun     bool                    `json:"dry_run"`
	Scanned    int                     `json:"scanned"`
	Excluded   int                     `json:"excluded"`
	Evaluated  int                     `json:"evaluated"`
	Deleted    int                     `json:"deleted"`
	Tagged     int                     `json:"tagged"`
	InUse      int                     `json:"in_use"`
	Reset      int                     `json:"reset"`
	Alerts     int                     `json:"alerts"`
	Repeated   int                     `json:"repeated_alerts"`
	Errors     int                     `json:"errors"`
	States     map[lifecycle.State]int `json:"states"`
	DeletedIDs []string                `json:"deleted_ids,omitempty"`
	StartedAt  time.Time               `json:"started_at"`
	Duration   time.Duration           `json:"duration"`
}

// Runner drives one engine over every resource its provider enumerates
type Runner[T any] struct {
	engine *lifecycle.Engine[T]
	opts   Options
	tracer trace.Tracer
	now    func() time.Time
}

// New creates a runner. The engine's provider is used for enumeration and counter writes.
func New[T any](engine *lifecycle.Engine[T], opts Options) *Runner[T] {
	return &Runner[T]{
		engine: engine,
		opts:   opts,
		tracer: otel.Tracer("sweeper.sweep"),
		now:    engine.Now,
	}
}

// Run executes the pass. Enumeration failure aborts it; per-resource failures are
// logged, counted and skipped.
func (r *Runner[T]) Run(ctx context.Context) (*Summary, error) {
	cfg := r.engine.Config()
	logger := r.opts.Logger.With().
		Str("policy", r.opts.Policy).
		Str("region", r.opts.Region).
		Bool("dry_run", cfg.DryRun).
		Logger()

	ctx, span := r.tracer.Start(ctx, "sweep.pass",
		trace.WithAttributes(
			attribute.String("policy", r.opts.Policy),
			attribute.String("cloud.region", r.opts.Region),
			attribute.Bool("dry_run", cfg.DryRun)))
	defer span.End()

	summary := &Summary{
		RunID:     r.opts.RunID,
		Policy:    r.opts.Policy,
		Region:    r.opts.Region,
		DryRun:    cfg.DryRun,
		States:    map[lifecycle.State]int{},
		StartedAt: r.now().UTC(),
	}

	resources, err := r.engine.Provider().ListAllInstances(ctx)
	if err != nil {
		summary.Duration = r.now().Sub(summary.StartedAt)
		r.opts.Metrics.RecordError(ctx, r.opts.Policy, r.opts.Region, "enumerate")
		r.opts.Metrics.RecordPass(ctx, r.opts.Policy, r.opts.Region, "failed", summary.Duration)
		span.RecordError(err)
		span.SetStatus(codes.Error, "enumeration failed")
		return summary, fmt.Errorf("list %s resources in %s: %w", r.opts.Policy, r.opts.Region, err)
	}

	summary.Scanned = len(resources)
	logger.Info().Int("candidates", len(resources)).Msg("scan pass started")

	for _, res := range resources {
		if ctx.Err() != nil {
			break
		}
		r.process(ctx, logger, res, summary)
	}

	summary.Duration = r.now().Sub(summary.StartedAt)
	status := "success"
	if summary.Errors > 0 {
		status = "partial"
	}
	r.opts.Metrics.RecordPass(ctx, r.opts.Policy, r.opts.Region, status, summary.Duration)
	span.SetAttributes(
		attribute.Int("resources.scanned", summary.Scanned),
		attribute.Int("resources.deleted", summary.Deleted),
		attribute.Int("errors", summary.Errors))

	logger.Info().
		Int("scanned", summary.Scanned).
		Int("excluded", summary.Excluded).
		Int("deleted", summary.Deleted).
		Int("tagged", summary.Tagged).
		Int("in_use", summary.InUse).
		Int("reset", summary.Reset).
		Int("alerts", summary.Alerts).
		Int("errors", summary.Errors).
		Dur("duration", summary.Duration).
		Msg("scan pass finished")

	return summary, ctx.Err()
}

func (r *Runner[T]) process(ctx context.Context, logger zerolog.Logger, res types.Resource[T], summary *Summary) {
	cfg := r.engine.Config()
	provider := r.engine.Provider()
	log := logger.With().Str("resource_id", res.ID).Logger()
	tagMap := tags.ToMap(res.Tags)

	eval := storage.Evaluation{
		RunID:        r.opts.RunID,
		Policy:       r.opts.Policy,
		Region:       r.opts.Region,
		Account:      r.opts.Account,
		ResourceID:   res.ID,
		ResourceType: res.Type,
		ResourceName: res.Name,
		DryRun:       cfg.DryRun,
		EvaluatedAt:  r.now().UTC(),
	}

	if excluded := r.excluded(ctx, log, res, tagMap, summary); excluded {
		return
	}

	if res.InUse {
		r.reset(ctx, log, res, eval, summary)
		return
	}

	cleanupDays, err := r.engine.GetCleanupDaysCount(res.Tags)
	if err != nil {
		var malformed *lifecycle.MalformedStateError
		kind := "cleanup_days"
		if errors.As(err, &malformed) {
			kind = "malformed_state"
		}
		r.fail(ctx, log, eval, summary, kind, err)
		return
	}

	decision, err := r.engine.Evaluate(ctx, res.ID, res.Tags, cleanupDays, lifecycle.WithDaysToDelete(r.opts.DaysToDelete))
	eval.CleanupDays = decision.CleanupDays
	eval.Deadline = decision.Deadline
	eval.State = string(decision.State)
	if err != nil {
		r.fail(ctx, log, eval, summary, "delete", err)
		return
	}

	summary.Evaluated++
	summary.States[decision.State]++
	eval.Deleted = decision.Deleted
	r.opts.Metrics.RecordEvaluation(ctx, r.opts.Policy, r.opts.Region, string(decision.State))

	if decision.Alert != lifecycle.AlertNone && r.alert(ctx, log, res, tagMap, decision, summary) {
		eval.Alert = string(decision.Alert)
	}

	if decision.Deleted {
		summary.Deleted++
		summary.DeletedIDs = append(summary.DeletedIDs, res.ID)
		r.opts.Metrics.RecordDeletion(ctx, r.opts.Policy, r.opts.Region)
	} else if !cfg.DryRun {
		if err := provider.UpdateResourceDayCountTag(ctx, res.ID, cleanupDays, res.Tags); err != nil {
			r.fail(ctx, log, eval, summary, "tag_update", err)
			return
		}
		summary.Tagged++
	}

	log.Debug().
		Int("cleanup_days", decision.CleanupDays).
		Int("deadline", decision.Deadline).
		Str("state", string(decision.State)).
		Bool("deleted", decision.Deleted).
		Msg("resource processed")

	r.record(log, eval)
}

func (r *Runner[T]) excluded(ctx context.Context, log zerolog.Logger, res types.Resource[T], tagMap map[string]string, summary *Summary) bool {
	if r.opts.Filter == nil {
		return false
	}

	in := policy.Input{
		Policy:  r.opts.Policy,
		Region:  r.opts.Region,
		Account: r.opts.Account,
		Resource: policy.ResourceInput{
			ID:     res.ID,
			Type:   res.Type,
			Region: res.Region,
			Name:   res.Name,
			State:  res.State,
			Tags:   tagMap,
		},
	}
	if res.HasCreationDate() {
		age := r.engine.CalculateAgeDays(*res.CreatedAt)
		in.Resource.AgeDays = &age
	}

	reasons, err := r.opts.Filter.Excluded(ctx, in)
	if err != nil {
		// an unevaluable scope rule must never let a resource through to deletion
		summary.Errors++
		r.opts.Metrics.RecordError(ctx, r.opts.Policy, r.opts.Region, "scope_filter")
		log.Error().Err(err).Msg("scope policy evaluation failed, skipping resource")
		return true
	}
	if len(reasons) == 0 {
		return false
	}

	summary.Excluded++
	r.opts.Metrics.RecordExcluded(ctx, r.opts.Policy, r.opts.Region)
	log.Info().Strs("reasons", reasons).Msg("resource excluded by scope policy")
	return true
}

// reset handles a resource that is no longer idle: a live counter goes back to 0 so the
// next idle period starts over at day 1. The engine is never consulted.
func (r *Runner[T]) reset(ctx context.Context, log zerolog.Logger, res types.Resource[T], eval storage.Evaluation, summary *Summary) {
	summary.InUse++
	summary.States[lifecycle.StateInUse]++
	eval.State = string(lifecycle.StateInUse)
	r.opts.Metrics.RecordEvaluation(ctx, r.opts.Policy, r.opts.Region, eval.State)

	if r.engine.NeedsReset(res.Tags) {
		if r.engine.Config().DryRun {
			log.Info().Msg("resource in use, counter would be reset")
		} else {
			if err := r.engine.Provider().UpdateResourceDayCountTag(ctx, res.ID, 0, res.Tags); err != nil {
				r.fail(ctx, log, eval, summary, "counter_reset", err)
				return
			}
			summary.Reset++
			log.Info().Msg("resource in use, counter reset")
		}
	}

	r.record(log, eval)
}

// alertedToday reports whether an alert of the same kind was already raised for the
// resource on today's UTC date
func (r *Runner[T]) alertedToday(id string, kind lifecycle.Alert) bool {
	if r.opts.Ledger == nil {
		return false
	}
	last, err := r.opts.Ledger.Resource(id)
	if err != nil || last.LastAlert != string(kind) {
		return false
	}
	return last.LastAlertAt.UTC().Format(lifecycle.DateLayout) == r.now().UTC().Format(lifecycle.DateLayout)
}

// alert delivers the decision's alert once per resource, kind and day. It reports whether
// the alert counts as raised.
func (r *Runner[T]) alert(ctx context.Context, log zerolog.Logger, res types.Resource[T], tagMap map[string]string, decision lifecycle.Decision, summary *Summary) bool {
	if r.alertedToday(res.ID, decision.Alert) {
		summary.Repeated++
		log.Debug().Str("alert", string(decision.Alert)).Msg("alert already raised today")
		return true
	}

	summary.Alerts++
	r.opts.Metrics.RecordAlert(ctx, r.opts.Policy, r.opts.Region, string(decision.Alert))

	if r.opts.Notifier == nil {
		return true
	}

	err := r.opts.Notifier.Notify(ctx, notify.Alert{
		Kind:        notify.Kind(decision.Alert),
		Policy:      r.opts.Policy,
		Region:      r.opts.Region,
		Account:     r.opts.Account,
		ResourceID:  res.ID,
		Name:        res.Name,
		Owner:       notify.OwnerFromTags(tagMap),
		CleanupDays: decision.CleanupDays,
		Deadline:    decision.Deadline,
		DaysLeft:    decision.DaysLeft(),
		DryRun:      r.engine.Config().DryRun,
		RaisedAt:    r.now().UTC(),
	})
	if err != nil {
		r.opts.Metrics.RecordError(ctx, r.opts.Policy, r.opts.Region, "notify")
		log.Warn().Err(err).Msg("failed to deliver alert")
		return false
	}
	return true
}

func (r *Runner[T]) fail(ctx context.Context, log zerolog.Logger, eval storage.Evaluation, summary *Summary, kind string, err error) {
	summary.Errors++
	r.opts.Metrics.RecordError(ctx, r.opts.Policy, r.opts.Region, kind)
	log.Error().Err(err).Str("kind", kind).Msg("resource evaluation failed")

	eval.Error = err.Error()
	if eval.State == "" {
		eval.State = kind
	}
	r.record(log, eval)
}

func (r *Runner[T]) record(log zerolog.Logger, eval storage.Evaluation) {
	if r.opts.Ledger == nil {
		return
	}
	if _, err := r.opts.Ledger.RecordEvaluation(eval); err != nil {
		log.Warn().Err(err).Msg("failed to record evaluation in ledger")
	}
}
