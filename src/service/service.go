// Package service drives the OS service manager that supervises the node
// process. The controller never signals the node directly; every start,
// stop and restart goes through the manager.
package service

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/sirupsen/logrus"
)

// Manager controls the managed node process indirectly through the service
// manager.
type Manager interface {
	// Reload makes the service manager re-read unit definitions.
	Reload(ctx context.Context) error

	// IsActive reports whether the managed unit is currently running.
	IsActive(ctx context.Context) (bool, error)

	// Restart restarts the managed unit.
	Restart(ctx context.Context) error
}

// Runner executes a service-manager command and returns its combined
// output. It exists so tests can intercept systemctl invocations.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Systemd is a Manager backed by systemctl.
type Systemd struct {
	Unit string
	Run  Runner

	logger *logrus.Entry
}

// NewSystemd returns a systemctl-backed Manager for the given unit.
func NewSystemd(unit string, logger *logrus.Entry) *Systemd {
	return &Systemd{
		Unit:   unit,
		Run:    execRunner,
		logger: logger,
	}
}

// Reload implements Manager.
func (s *Systemd) Reload(ctx context.Context) error {
	out, err := s.Run(ctx, "systemctl", "daemon-reload")
	if err != nil {
		return fmt.Errorf("systemctl daemon-reload: %v (%s)", err, out)
	}
	return nil
}

// IsActive implements Manager. A nonzero exit from `systemctl is-active`
// means the unit is not running, which is a normal answer, not an error.
func (s *Systemd) IsActive(ctx context.Context) (bool, error) {
	_, err := s.Run(ctx, "systemctl", "is-active", "--quiet", s.Unit)
	if err == nil {
		return true, nil
	}
	if _, ok := err.(*exec.ExitError); ok {
		return false, nil
	}
	return false, fmt.Errorf("systemctl is-active %s: %w", s.Unit, err)
}

// Restart implements Manager.
func (s *Systemd) Restart(ctx context.Context) error {
	s.logger.WithField("unit", s.Unit).Info("restarting managed service")
	out, err := s.Run(ctx, "systemctl", "restart", s.Unit)
	if err != nil {
		return fmt.Errorf("systemctl restart %s: %v (%s)", s.Unit, err, out)
	}
	return nil
}
