package controller

import "github.com/sirupsen/logrus"

// Outcome identifies the terminal branch of a controller run. Every branch
// maps to a distinct exit code so the scheduler can alert on specific
// causes, and to a log level so routine no-ops stay quiet.
type Outcome int

const (
	// ParentNoop: this host is the designated parent; the parent never
	// fails over to itself.
	ParentNoop Outcome = iota

	// AlreadyCorrect: the durable role already matches the desired role.
	AlreadyCorrect

	// Transitioned: the durable role was rewritten and, if the service was
	// running, restarted.
	Transitioned

	// LockHeld: another invocation holds the lock. Deliberately a clean
	// exit; the scheduler's next run retries.
	LockHeld

	// SetupFailure: configuration or durable state could not be read. No
	// mutation was attempted.
	SetupFailure

	// PreconditionBlocked: a transition to block producer is warranted but
	// the signing credentials are incomplete. Recoverable by operator
	// action, not retried automatically.
	PreconditionBlocked

	// IndeterminateReachability: this host could not determine its own
	// external address, so a failed probe cannot be trusted. Doing nothing
	// is the deliberately safest choice: acting on an untrustworthy signal
	// risks a dual-producer state.
	IndeterminateReachability

	// ConfigWriteFailure: the unit file rewrite failed. The durable role is
	// unchanged and the process was not restarted.
	ConfigWriteFailure

	// ServiceRestartFailure: the unit file was rewritten but the daemon
	// reload or the restart failed. The most severe class: durable role and
	// actual running behavior have diverged.
	ServiceRestartFailure
)

// Exit codes, one per cause. 0 covers every successful branch.
var exitCodes = map[Outcome]int{
	ParentNoop:                0,
	AlreadyCorrect:            0,
	Transitioned:              0,
	LockHeld:                  0,
	SetupFailure:              1,
	PreconditionBlocked:       2,
	IndeterminateReachability: 3,
	ConfigWriteFailure:        4,
	ServiceRestartFailure:     5,
}

var outcomeNames = map[Outcome]string{
	ParentNoop:                "parent-noop",
	AlreadyCorrect:            "already-correct",
	Transitioned:              "transitioned",
	LockHeld:                  "lock-held",
	SetupFailure:              "setup-failure",
	PreconditionBlocked:       "precondition-blocked",
	IndeterminateReachability: "indeterminate-reachability",
	ConfigWriteFailure:        "config-write-failure",
	ServiceRestartFailure:     "service-restart-failure",
}

func (o Outcome) String() string {
	return outcomeNames[o]
}

// ExitCode returns the process exit code for this outcome.
func (o Outcome) ExitCode() int {
	return exitCodes[o]
}

// Success reports whether the outcome is one of the clean-exit branches.
func (o Outcome) Success() bool {
	return o.ExitCode() == 0
}

// Level returns the log level an outcome is reported at. logrus has no
// critical level; the critical class (indeterminate reachability, failed
// restart) logs at ErrorLevel and additionally carries severity=critical as
// a structured field.
func (o Outcome) Level() logrus.Level {
	switch o {
	case ParentNoop, AlreadyCorrect, LockHeld:
		return logrus.DebugLevel
	case Transitioned:
		return logrus.InfoLevel
	case SetupFailure, PreconditionBlocked, ConfigWriteFailure:
		return logrus.WarnLevel
	default:
		return logrus.ErrorLevel
	}
}

// Critical reports whether the outcome belongs to the critical class.
func (o Outcome) Critical() bool {
	return o == IndeterminateReachability || o == ServiceRestartFailure
}
