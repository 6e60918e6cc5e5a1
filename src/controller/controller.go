// Package controller implements the role-failover decision procedure: keep
// exactly one member of a parent/spare pair configured to sign blocks, by
// probing the parent and toggling the local durable role on mismatch.
//
// Each run is a fresh read of durable state. The controller holds nothing in
// memory between invocations; the external scheduler's cadence is the retry
// loop. Known limitation, by contract rather than accident: there is no
// coordination with the peer, so mutual exclusion is not guaranteed across a
// network partition.
package controller

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/chainops/poolguard/src/config"
	"github.com/chainops/poolguard/src/identity"
	"github.com/chainops/poolguard/src/lockfile"
	"github.com/chainops/poolguard/src/probe"
	"github.com/chainops/poolguard/src/service"
	"github.com/chainops/poolguard/src/svcfile"
)

// Resolver yields the local host's identity.
type Resolver interface {
	Resolve() identity.Info
}

// Prober checks the parent's reachability.
type Prober interface {
	Check(address string, externalResolved bool) probe.Result
}

// Report is the terminal result of a run: the outcome, the role the
// controller steered toward, and the error behind a failure outcome.
type Report struct {
	Outcome Outcome
	Target  svcfile.Role
	Err     error
}

// ExitCode returns the process exit code for this report.
func (r Report) ExitCode() int {
	return r.Outcome.ExitCode()
}

// Controller wires the stages together. The collaborator fields are
// exported so tests can substitute fakes; New fills them with the real
// implementations.
type Controller struct {
	Identity Resolver
	Prober   Prober
	Manager  service.Manager
	Acquire  func(path string) (*lockfile.Lock, error)

	conf   *config.Config
	logger *logrus.Entry
}

// New returns a Controller against the real filesystem, network and service
// manager.
func New(conf *config.Config) *Controller {
	logger := conf.Logger()
	return &Controller{
		Identity: identity.NewResolver(conf.ResolveTimeout, logger),
		Prober:   probe.NewProber(conf.ProbeTimeout, logger),
		Manager:  service.NewSystemd(conf.ServiceName, logger),
		Acquire:  lockfile.Acquire,
		conf:     conf,
		logger:   logger,
	}
}

// Run executes one scheduled invocation: lock, observe, decide, apply,
// report. Every branch, including the no-ops, ends in exactly one report.
func (c *Controller) Run(ctx context.Context) Report {
	lock, err := c.Acquire(c.conf.LockPath())
	if err == lockfile.ErrHeld {
		return c.report(Report{Outcome: LockHeld})
	}
	if err != nil {
		return c.report(Report{Outcome: SetupFailure, Err: err})
	}
	defer lock.Release()

	info := c.Identity.Resolve()
	if info.IsParent(c.conf.ParentAddr) {
		return c.report(Report{Outcome: ParentNoop})
	}

	result := c.Prober.Check(c.conf.ParentEndpoint(), info.ExternalResolved())
	if result == probe.Indeterminate {
		return c.report(Report{Outcome: IndeterminateReachability})
	}

	unit, err := svcfile.LoadUnit(c.conf.UnitFile)
	if err != nil {
		return c.report(Report{Outcome: SetupFailure, Err: err})
	}

	current, err := unit.Role()
	if err != nil {
		return c.report(Report{Outcome: SetupFailure, Err: err})
	}

	creds := c.credentials()

	decision := Decide(Inputs{
		IsParent:            false,
		Probe:               result,
		CurrentRole:         current,
		CredentialsComplete: creds.Complete(),
	})

	c.logger.WithFields(logrus.Fields{
		"probe":       result.String(),
		"currentRole": current.String(),
		"targetRole":  decision.Target.String(),
		"credentials": creds.Complete(),
	}).Debug("decision computed")

	if !decision.Transition {
		if decision.Outcome == AlreadyCorrect && decision.Target != current {
			c.logger.WithField("missing", creds.Missing()).
				Warning("unit encodes block-producer but credentials are incomplete")
		}
		if decision.Outcome == PreconditionBlocked {
			c.logger.WithField("missing", creds.Missing()).
				Warning("parent unreachable but cannot take over without credentials")
		}
		return c.report(Report{Outcome: decision.Outcome, Target: decision.Target})
	}

	return c.report(c.apply(ctx, unit, decision))
}

// apply rewrites the durable role and restarts the service if it was
// already running. The activity check happens before the rewrite: a node an
// operator stopped deliberately stays stopped, only its configuration moves.
func (c *Controller) apply(ctx context.Context, unit *svcfile.UnitFile, decision Decision) Report {
	if c.conf.DryRun {
		c.logger.WithField("targetRole", decision.Target.String()).
			Info("dry run: transition not applied")
		return Report{Outcome: Transitioned, Target: decision.Target}
	}

	wasActive, err := c.Manager.IsActive(ctx)
	if err != nil {
		return Report{Outcome: SetupFailure, Target: decision.Target, Err: err}
	}

	if changed := unit.SetRole(decision.Target, c.conf.ProducerEnvPath(), c.conf.StandbyEnvPath()); changed {
		if err := unit.Save(); err != nil {
			return Report{Outcome: ConfigWriteFailure, Target: decision.Target, Err: err}
		}
	}

	if err := c.Manager.Reload(ctx); err != nil {
		return Report{Outcome: ServiceRestartFailure, Target: decision.Target, Err: err}
	}

	if wasActive {
		if err := c.Manager.Restart(ctx); err != nil {
			return Report{Outcome: ServiceRestartFailure, Target: decision.Target, Err: err}
		}
	} else {
		c.logger.Debug("service not active, config updated for next start")
	}

	return Report{Outcome: Transitioned, Target: decision.Target}
}

// credentials resolves the credential paths from the producer environment
// file, then applies config-level overrides. An unreadable environment file
// is not fatal: it simply leaves credentials incomplete, which blocks
// promotion.
func (c *Controller) credentials() svcfile.CredentialSet {
	creds, err := svcfile.CredentialsFromEnv(c.conf.ProducerEnvPath())
	if err != nil {
		c.logger.WithError(err).Warning("cannot read producer environment file")
		creds = svcfile.CredentialSet{}
	}

	if c.conf.KESKey != "" {
		creds.KESKey = c.conf.KESKey
	}
	if c.conf.VRFKey != "" {
		creds.VRFKey = c.conf.VRFKey
	}
	if c.conf.OpCert != "" {
		creds.OpCert = c.conf.OpCert
	}

	return creds
}

// report writes the terminal log line for a run. No branch is silent.
func (c *Controller) report(rep Report) Report {
	entry := c.logger.WithFields(logrus.Fields{
		"outcome": rep.Outcome.String(),
		"exit":    rep.Outcome.ExitCode(),
	})

	if rep.Err != nil {
		entry = entry.WithError(rep.Err)
	}
	if rep.Outcome.Critical() {
		entry = entry.WithField("severity", "critical")
	}

	msg := outcomeMessage(rep)
	switch rep.Outcome.Level() {
	case logrus.DebugLevel:
		entry.Debug(msg)
	case logrus.InfoLevel:
		entry.Info(msg)
	case logrus.WarnLevel:
		entry.Warning(msg)
	default:
		entry.Error(msg)
	}

	return rep
}

func outcomeMessage(rep Report) string {
	switch rep.Outcome {
	case ParentNoop:
		return "this host is the parent, nothing to do"
	case AlreadyCorrect:
		return "role already correct"
	case Transitioned:
		return "role transitioned to " + rep.Target.String()
	case LockHeld:
		return "another invocation holds the lock, skipping"
	case SetupFailure:
		return "cannot read configuration or durable state"
	case PreconditionBlocked:
		return "transition blocked: signing credentials incomplete"
	case IndeterminateReachability:
		return "cannot determine own external address, refusing to act"
	case ConfigWriteFailure:
		return "failed to rewrite service unit, role unchanged"
	case ServiceRestartFailure:
		return "role rewritten but service did not come back"
	default:
		return "unknown outcome"
	}
}
