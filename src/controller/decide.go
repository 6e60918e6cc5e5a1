package controller

import (
	"github.com/chainops/poolguard/src/probe"
	"github.com/chainops/poolguard/src/svcfile"
)

// Inputs are the observations a decision is made from. They are plain
// values: the decision procedure itself touches no file and no network.
type Inputs struct {
	IsParent            bool
	Probe               probe.Result
	CurrentRole         svcfile.Role
	CredentialsComplete bool
}

// Decision is the computed verdict. Transition is true only when the
// durable role must be rewritten; re-running Decide on unchanged inputs
// after a transition yields Transition=false, which is what makes the
// controller idempotent.
type Decision struct {
	Outcome    Outcome
	Target     svcfile.Role
	Transition bool
}

// Decide computes the desired role and the action to take.
//
//	IsParent                  -> no-op, the parent never fails over to itself
//	probe Indeterminate       -> hard stop, never guess
//	parent reachable          -> stand by (demote if currently producing)
//	parent unreachable        -> produce, but only with complete credentials
func Decide(in Inputs) Decision {
	if in.IsParent {
		return Decision{Outcome: ParentNoop, Target: in.CurrentRole}
	}

	if in.Probe == probe.Indeterminate {
		return Decision{Outcome: IndeterminateReachability, Target: desiredRole(in)}
	}

	target := desiredRole(in)

	if in.Probe == probe.Unreachable && !in.CredentialsComplete {
		return Decision{Outcome: PreconditionBlocked, Target: target}
	}

	if target == in.CurrentRole || !in.CredentialsComplete {
		// The second clause covers a reachable parent with incomplete
		// credentials while the unit still encodes block-producer: the
		// decision table treats missing credentials as proof the node was
		// never producing, so there is nothing to stand down.
		return Decision{Outcome: AlreadyCorrect, Target: target}
	}

	return Decision{Outcome: Transitioned, Target: target, Transition: true}
}

// desiredRole is the role the controller steers toward. A node without
// complete credentials can never be steered toward producing, whatever the
// probe said.
func desiredRole(in Inputs) svcfile.Role {
	if !in.CredentialsComplete {
		return svcfile.Standby
	}
	switch in.Probe {
	case probe.Reachable:
		return svcfile.Standby
	case probe.Unreachable:
		return svcfile.BlockProducer
	default:
		return in.CurrentRole
	}
}
