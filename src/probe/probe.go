// Package probe answers one question: is the parent node's listening port
// reachable right now? The answer deliberately has three values, not two.
// A node that cannot see the internet at all cannot trust a failed dial to
// mean the parent is down, and must say so instead of guessing.
package probe

import (
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Result of a liveness probe.
type Result int

const (
	// Indeterminate means the local host could not determine its own
	// externally-visible address, so a failed dial would be untrustworthy.
	// Acting on it risks two producers signing at once.
	Indeterminate Result = iota

	// Reachable means the parent accepted a TCP connection on its node port.
	Reachable

	// Unreachable means the dial was refused or timed out.
	Unreachable
)

func (r Result) String() string {
	switch r {
	case Reachable:
		return "reachable"
	case Unreachable:
		return "unreachable"
	default:
		return "indeterminate"
	}
}

// Prober performs bounded TCP reachability checks. Dial is a field so tests
// can run without a network.
type Prober struct {
	Timeout time.Duration
	Dial    func(network, address string, timeout time.Duration) (net.Conn, error)

	logger *logrus.Entry
}

// NewProber returns a Prober with the given dial timeout.
func NewProber(timeout time.Duration, logger *logrus.Entry) *Prober {
	return &Prober{
		Timeout: timeout,
		Dial:    net.DialTimeout,
		logger:  logger,
	}
}

// Check probes the parent at address. externalResolved is the identity
// stage's verdict on whether this host could determine its own external
// address; when false the result is Indeterminate and the parent is never
// dialed.
func (p *Prober) Check(address string, externalResolved bool) Result {
	if !externalResolved {
		p.logger.WithField("parent", address).Warning("own external address unknown, probe is indeterminate")
		return Indeterminate
	}

	conn, err := p.Dial("tcp", address, p.Timeout)
	if err != nil {
		p.logger.WithError(err).WithField("parent", address).Debug("parent did not accept connection")
		return Unreachable
	}
	conn.Close()

	p.logger.WithField("parent", address).Debug("parent reachable")
	return Reachable
}
