package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	DaysToNotifyAdmins        = 2
	DaysToTriggerResourceMail = 4
	DailyHours                = 24

	secondsPerDay = DailyHours * 60 * 60
)

// Tag names the engine reads
const (
	DaysCountTag = "DaysCount"
	PolicyTag    = "Policy"
	SkipTag      = "Skip"
)

// Skip policy values
const (
	SkipNA        = "NA"
	SkipNotDelete = "NOTDELETE"
	SkipSkip      = "SKIP"
)

// Config is the read-only policy configuration for one engine
type Config struct {
	DaysToTakeAction int
	DryRun           bool
	ForceDelete      bool
	TargetResourceID string
}

// Engine decides per resource whether to delete it, alert about it or leave it alone.
// It never performs cloud I/O itself; deletions go through the Provider.
type Engine[T any] struct {
	provider Provider[T]
	config   Config
	now      func() time.Time
	logger   zerolog.Logger
}

// Option configures an Engine
type Option[T any] func(*Engine[T])

// WithClock overrides the clock used for date comparisons
func WithClock[T any](now func() time.Time) Option[T] {
	return func(e *Engine[T]) {
		e.now = now
	}
}

// WithLogger sets the engine logger
func WithLogger[T any](logger zerolog.Logger) Option[T] {
	return func(e *Engine[T]) {
		e.logger = logger
	}
}

// NewEngine creates a lifecycle engine bound to one provider
func NewEngine[T any](provider Provider[T], config Config, opts ...Option[T]) *Engine[T] {
	e := &Engine[T]{
		provider: provider,
		config:   config,
		now:      time.Now,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns the engine configuration
func (e *Engine[T]) Config() Config {
	return e.config
}

// Provider returns the provider the engine delegates to
func (e *Engine[T]) Provider() Provider[T] {
	return e.provider
}

// Now returns the engine clock's current time
func (e *Engine[T]) Now() time.Time {
	return e.now()
}

// Today returns the current UTC calendar date as YYYY-MM-DD
func (e *Engine[T]) Today() string {
	return e.now().UTC().Format(DateLayout)
}

// CalculateAgeDays returns whole days between the UTC date of created and today's UTC date.
// Future dates give a negative result.
func (e *Engine[T]) CalculateAgeDays(created time.Time) int {
	today := truncateDay(e.now())
	return int((today.Unix() - truncateDay(created).Unix()) / secondsPerDay)
}

// CalculateAgeDaysFromString accepts YYYY-MM-DD or RFC 3339
func (e *Engine[T]) CalculateAgeDaysFromString(value string) (int, error) {
	created, err := time.Parse(DateLayout, value)
	if err != nil {
		created, err = time.Parse(time.RFC3339, value)
		if err != nil {
			return 0, fmt.Errorf("parse creation date %q: %w", value, err)
		}
	}
	return e.CalculateAgeDays(created), nil
}

// GetCleanupDaysCount computes today's idle-day count from the DaysCount tag.
// Dry run never reads state and always yields 0.
func (e *Engine[T]) GetCleanupDaysCount(tags T) (int, error) {
	if e.config.DryRun {
		return 0, nil
	}

	raw := e.provider.TagLookup(tags, DaysCountTag)
	if raw == "" {
		return 1, nil
	}

	count, err := ParseDaysCount(raw)
	if err != nil {
		return 0, err
	}

	if count.Date != e.Today() {
		return count.Days + 1, nil
	}
	if count.Days == 0 {
		return 1, nil
	}
	return count.Days, nil
}

// NeedsReset reports whether a resource that is no longer idle still carries a live
// counter. A counter already at 0, on any date, reads as day 1 once the resource is idle again.
// A malformed counter also needs a reset.
func (e *Engine[T]) NeedsReset(tags T) bool {
	raw := e.provider.TagLookup(tags, DaysCountTag)
	if raw == "" {
		return false
	}
	count, err := ParseDaysCount(raw)
	return err != nil || count.Days > 0
}

// GetSkipPolicyValue returns the normalized Policy tag, falling back to Skip, or "NA"
func (e *Engine[T]) GetSkipPolicyValue(tags T) string {
	value := strings.TrimSpace(e.provider.TagLookup(tags, PolicyTag))
	if value == "" {
		value = strings.TrimSpace(e.provider.TagLookup(tags, SkipTag))
	}
	if value == "" {
		return SkipNA
	}
	return NormalizeSkipValue(value)
}

// NormalizeSkipValue strips '_' and '-' and upper-cases
func NormalizeSkipValue(value string) string {
	value = strings.NewReplacer("_", "", "-", "").Replace(value)
	return strings.ToUpper(value)
}

// IsSkipSentinel reports whether a normalized skip value exempts a resource from deletion
func IsSkipSentinel(value string) bool {
	return value == SkipNotDelete || value == SkipSkip
}

// VerifyOption tunes a single evaluation
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	daysToDelete int
}

// WithDaysToDelete overrides the deletion deadline. n <= 0 means not supplied.
func WithDaysToDelete(n int) VerifyOption {
	return func(o *verifyOptions) {
		o.daysToDelete = n
	}
}

// VerifyAndDeleteResource runs the decision and reports whether the resource was deleted
func (e *Engine[T]) VerifyAndDeleteResource(ctx context.Context, resourceID string, tags T, cleanupDays int, opts ...VerifyOption) (bool, error) {
	decision, err := e.Evaluate(ctx, resourceID, tags, cleanupDays, opts...)
	return decision.Deleted, err
}

// Evaluate runs the cleanup state machine for one resource. Exactly one state fires.
// At most one delete call is made; provider errors are returned unmodified.
func (e *Engine[T]) Evaluate(ctx context.Context, resourceID string, tags T, cleanupDays int, opts ...VerifyOption) (Decision, error) {
	var o verifyOptions
	for _, opt := range opts {
		opt(&o)
	}

	deadline := e.config.DaysToTakeAction
	if o.daysToDelete > 0 {
		deadline = o.daysToDelete
	}

	decision := Decision{
		ResourceID:  resourceID,
		CleanupDays: cleanupDays,
		Deadline:    deadline,
	}
	mailDay := e.config.DaysToTakeAction - DaysToTriggerResourceMail

	switch {
	case e.isForceDeleteTarget(resourceID):
		decision.State = StateForceDelete
		return e.delete(ctx, decision)

	case cleanupDays < mailDay:
		decision.State = StateTooEarly

	case cleanupDays == mailDay:
		decision.State = StateMailAlert
		decision.Alert = AlertResourceMail

	case cleanupDays >= deadline:
		decision.SkipValue = e.GetSkipPolicyValue(tags)
		switch {
		case e.config.DryRun:
			decision.State = StateDryRun
		case IsSkipSentinel(decision.SkipValue):
			decision.State = StateSkipped
		default:
			decision.State = StatePastDeadline
			return e.delete(ctx, decision)
		}

	default:
		decision.State = StatePending
		if cleanupDays == e.config.DaysToTakeAction-DaysToNotifyAdmins {
			decision.Alert = AlertAdmins
		}
	}

	e.logger.Debug().
		Str("resource_id", resourceID).
		Int("cleanup_days", cleanupDays).
		Int("deadline", deadline).
		Str("state", string(decision.State)).
		Msg("resource evaluated")

	return decision, nil
}

func (e *Engine[T]) isForceDeleteTarget(resourceID string) bool {
	return e.config.ForceDelete &&
		!e.config.DryRun &&
		e.config.TargetResourceID != "" &&
		e.config.TargetResourceID == resourceID
}

func (e *Engine[T]) delete(ctx context.Context, decision Decision) (Decision, error) {
	if err := e.provider.DeleteResource(ctx, decision.ResourceID); err != nil {
		return decision, err
	}
	decision.Deleted = true

	e.logger.Info().
		Str("resource_id", decision.ResourceID).
		Int("cleanup_days", decision.CleanupDays).
		Str("state", string(decision.State)).
		Msg("resource deleted")

	return decision, nil
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
