package lifecycle

// State is the branch of the cleanup state machine that fired for a resource
type State string

const (
	StateForceDelete  State = "force_delete"
	StateTooEarly     State = "too_early"
	StateMailAlert    State = "mail_alert"
	StatePastDeadline State = "past_deadline"
	StateSkipped      State = "skipped"
	StateDryRun       State = "dry_run"
	StatePending      State = "pending"
	// StateInUse is recorded for resources that stopped being idle; they are never evaluated
	StateInUse State = "in_use"
)

// Alert is the notification side-channel attached to a decision
type Alert string

const (
	AlertNone         Alert = ""
	AlertResourceMail Alert = "resource_mail"
	AlertAdmins       Alert = "admins"
)

// Decision is the outcome of one evaluation
type Decision struct {
	ResourceID  string `json:"resource_id"`
	CleanupDays int    `json:"cleanup_days"`
	Deadline    int    `json:"deadline"`
	State       State  `json:"state"`
	Alert       Alert  `json:"alert,omitempty"`
	SkipValue   string `json:"skip_value,omitempty"`
	Deleted     bool   `json:"deleted"`
}

// DaysLeft is the number of idle days until the deadline, never negative
func (d Decision) DaysLeft() int {
	if left := d.Deadline - d.CleanupDays; left > 0 {
		return left
	}
	return 0
}
