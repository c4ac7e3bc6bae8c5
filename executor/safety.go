package executor

import (
	"context"
	"errors"
	"fmt"
)

// ErrDryRunViolation is returned when a destructive or state-advancing call reaches
// a provider while the pass runs in dry-run mode
var ErrDryRunViolation = errors.New("destructive call attempted in dry-run mode")

// Action names a guarded provider call
type Action string

const (
	ActionDelete Action = "delete"
	ActionTag    Action = "tag"
	ActionReset  Action = "reset"
)

// Call describes a guarded provider call about to be made
type Call struct {
	Action      Action
	ResourceID  string
	CleanupDays int
	DryRun      bool
}

// SafetyCheck represents the outcome of one safety check
type SafetyCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
	Err     error  `json:"-"`
}

// SafetyCheckFunc represents a single safety check function
type SafetyCheckFunc func(ctx context.Context, call Call) SafetyCheck

// DefaultSafetyChecks are run before every guarded call
func DefaultSafetyChecks() []SafetyCheckFunc {
	return []SafetyCheckFunc{
		checkDryRun,
		checkResourceID,
		checkCleanupDays,
	}
}

// runChecks returns the error of the first failed check
func runChecks(ctx context.Context, checks []SafetyCheckFunc, call Call) error {
	for _, checkFunc := range checks {
		check := checkFunc(ctx, call)
		if check.Passed {
			continue
		}
		if check.Err != nil {
			return check.Err
		}
		return fmt.Errorf("safety check %s failed: %s", check.Name, check.Message)
	}
	return nil
}

func checkDryRun(ctx context.Context, call Call) SafetyCheck {
	check := SafetyCheck{Name: "dry_run_check", Passed: true}
	if call.DryRun {
		check.Passed = false
		check.Err = fmt.Errorf("%w: %s %s", ErrDryRunViolation, call.Action, call.ResourceID)
	}
	return check
}

func checkResourceID(ctx context.Context, call Call) SafetyCheck {
	check := SafetyCheck{Name: "resource_id_check", Passed: true}
	if call.ResourceID == "" {
		check.Passed = false
		check.Message = fmt.Sprintf("%s requires a resource id", call.Action)
	}
	return check
}

// checkCleanupDays rejects counter advances below day 1. Only a reset may write 0.
func checkCleanupDays(ctx context.Context, call Call) SafetyCheck {
	check := SafetyCheck{Name: "cleanup_days_check", Passed: true}
	switch {
	case call.Action == ActionTag && call.CleanupDays < 1,
		call.Action == ActionReset && call.CleanupDays != 0:
		check.Passed = false
		check.Message = fmt.Sprintf("refusing to persist cleanup days %d on %s", call.CleanupDays, call.ResourceID)
	}
	return check
}
