package controller

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainops/poolguard/src/common"
	"github.com/chainops/poolguard/src/config"
	"github.com/chainops/poolguard/src/identity"
	"github.com/chainops/poolguard/src/lockfile"
	"github.com/chainops/poolguard/src/probe"
	"github.com/chainops/poolguard/src/svcfile"
)

type fakeResolver struct {
	info identity.Info
}

func (f *fakeResolver) Resolve() identity.Info { return f.info }

type fakeProber struct {
	result probe.Result
}

func (f *fakeProber) Check(address string, externalResolved bool) probe.Result {
	if !externalResolved {
		return probe.Indeterminate
	}
	return f.result
}

type fakeManager struct {
	active     bool
	activeErr  error
	reloadErr  error
	restartErr error

	reloads  int
	restarts int
}

func (f *fakeManager) Reload(ctx context.Context) error {
	f.reloads++
	return f.reloadErr
}

func (f *fakeManager) IsActive(ctx context.Context) (bool, error) {
	return f.active, f.activeErr
}

func (f *fakeManager) Restart(ctx context.Context) error {
	f.restarts++
	return f.restartErr
}

// harness builds a controller against a real tempdir unit file, env files
// and credential files, with fake identity, probe and service manager.
type harness struct {
	conf    *config.Config
	ctrl    *Controller
	manager *fakeManager
	dir     string
}

func notParent() identity.Info {
	return identity.Info{
		LocalAddrs:    []net.IP{net.ParseIP("10.0.0.5")},
		ExternalAddrs: []net.IP{net.ParseIP("198.51.100.4")},
	}
}

func newHarness(t *testing.T, current svcfile.Role, withCreds bool) *harness {
	t.Helper()
	dir := t.TempDir()

	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.DataDir = dir
	conf.ParentAddr = "192.0.2.1"
	conf.UnitFile = filepath.Join(dir, "cnode.service")

	// Credential files live next to the env files.
	kes := filepath.Join(dir, "kes.skey")
	vrf := filepath.Join(dir, "vrf.skey")
	cert := filepath.Join(dir, "node.cert")
	if withCreds {
		for _, p := range []string{kes, vrf, cert} {
			require.NoError(t, os.WriteFile(p, []byte("x\n"), 0600))
		}
	}

	producerEnv := fmt.Sprintf("%s=%s\n%s=%s\n%s=%s\n",
		svcfile.EnvKESKey, kes, svcfile.EnvVRFKey, vrf, svcfile.EnvOpCert, cert)
	require.NoError(t, os.WriteFile(conf.ProducerEnvPath(), []byte(producerEnv), 0600))
	require.NoError(t, os.WriteFile(conf.StandbyEnvPath(), []byte("# no signing credentials\n"), 0600))

	envRef := conf.StandbyEnvPath()
	if current == svcfile.BlockProducer {
		envRef = conf.ProducerEnvPath()
	}
	unit := fmt.Sprintf("[Service]\nEnvironmentFile=%s\nExecStart=/usr/local/bin/cardano-node run\n", envRef)
	require.NoError(t, os.WriteFile(conf.UnitFile, []byte(unit), 0644))

	manager := &fakeManager{active: true}
	ctrl := New(conf)
	ctrl.Identity = &fakeResolver{info: notParent()}
	ctrl.Prober = &fakeProber{result: probe.Reachable}
	ctrl.Manager = manager

	return &harness{conf: conf, ctrl: ctrl, manager: manager, dir: dir}
}

func (h *harness) setProbe(r probe.Result) {
	h.ctrl.Prober = &fakeProber{result: r}
}

func (h *harness) unitRole(t *testing.T) svcfile.Role {
	t.Helper()
	unit, err := svcfile.LoadUnit(h.conf.UnitFile)
	require.NoError(t, err)
	role, err := unit.Role()
	require.NoError(t, err)
	return role
}

func (h *harness) unitBytes(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(h.conf.UnitFile)
	require.NoError(t, err)
	return string(raw)
}

func TestRun_DemotesWhenParentReachable(t *testing.T) {
	h := newHarness(t, svcfile.BlockProducer, true)

	rep := h.ctrl.Run(context.Background())

	require.Equal(t, Transitioned, rep.Outcome)
	require.Equal(t, 0, rep.ExitCode())
	require.Equal(t, svcfile.Standby, h.unitRole(t))
	require.Equal(t, 1, h.manager.reloads)
	require.Equal(t, 1, h.manager.restarts)
}

func TestRun_BlockedWithoutCredentials(t *testing.T) {
	h := newHarness(t, svcfile.Standby, false)
	h.setProbe(probe.Unreachable)

	before := h.unitBytes(t)
	rep := h.ctrl.Run(context.Background())

	require.Equal(t, PreconditionBlocked, rep.Outcome)
	require.Equal(t, 2, rep.ExitCode())
	require.Equal(t, before, h.unitBytes(t))
	require.Zero(t, h.manager.restarts)
}

// When the host cannot determine its own external address, a failed dial
// cannot be trusted, so nothing may change.
func TestRun_IndeterminateNeverMutates(t *testing.T) {
	for _, current := range []svcfile.Role{svcfile.Standby, svcfile.BlockProducer} {
		for _, withCreds := range []bool{false, true} {
			h := newHarness(t, current, withCreds)
			h.ctrl.Identity = &fakeResolver{info: identity.Info{
				LocalAddrs: []net.IP{net.ParseIP("10.0.0.5")},
			}}

			before := h.unitBytes(t)
			rep := h.ctrl.Run(context.Background())

			require.Equal(t, IndeterminateReachability, rep.Outcome)
			require.Equal(t, 3, rep.ExitCode())
			require.Equal(t, before, h.unitBytes(t))
			require.Zero(t, h.manager.reloads)
			require.Zero(t, h.manager.restarts)
		}
	}
}

func TestRun_RestartFailureAfterTransition(t *testing.T) {
	h := newHarness(t, svcfile.Standby, true)
	h.setProbe(probe.Unreachable)
	h.manager.restartErr = fmt.Errorf("job for cnode.service failed")

	rep := h.ctrl.Run(context.Background())

	require.Equal(t, ServiceRestartFailure, rep.Outcome)
	require.Equal(t, 5, rep.ExitCode())
	// The unit reflects the new role even though the restart failed.
	require.Equal(t, svcfile.BlockProducer, h.unitRole(t))
}

func TestRun_PromotesWhenParentUnreachable(t *testing.T) {
	h := newHarness(t, svcfile.Standby, true)
	h.setProbe(probe.Unreachable)

	rep := h.ctrl.Run(context.Background())

	require.Equal(t, Transitioned, rep.Outcome)
	require.Equal(t, svcfile.BlockProducer, rep.Target)
	require.Equal(t, svcfile.BlockProducer, h.unitRole(t))
}

func TestRun_RoundTripRestoresUnit(t *testing.T) {
	h := newHarness(t, svcfile.Standby, true)
	original := h.unitBytes(t)

	h.setProbe(probe.Unreachable)
	rep := h.ctrl.Run(context.Background())
	require.Equal(t, Transitioned, rep.Outcome)

	h.setProbe(probe.Reachable)
	rep = h.ctrl.Run(context.Background())
	require.Equal(t, Transitioned, rep.Outcome)

	require.Equal(t, original, h.unitBytes(t))
}

func TestRun_Idempotent(t *testing.T) {
	h := newHarness(t, svcfile.BlockProducer, true)

	rep := h.ctrl.Run(context.Background())
	require.Equal(t, Transitioned, rep.Outcome)

	after := h.unitBytes(t)
	rep = h.ctrl.Run(context.Background())
	require.Equal(t, AlreadyCorrect, rep.Outcome)
	require.Equal(t, 0, rep.ExitCode())

	// Second run performs zero mutations and zero restarts.
	require.Equal(t, after, h.unitBytes(t))
	require.Equal(t, 1, h.manager.reloads)
	require.Equal(t, 1, h.manager.restarts)
}

func TestRun_ParentNoop(t *testing.T) {
	h := newHarness(t, svcfile.BlockProducer, true)
	h.ctrl.Identity = &fakeResolver{info: identity.Info{
		LocalAddrs: []net.IP{net.ParseIP("192.0.2.1")},
	}}
	h.setProbe(probe.Unreachable)

	before := h.unitBytes(t)
	rep := h.ctrl.Run(context.Background())

	require.Equal(t, ParentNoop, rep.Outcome)
	require.Equal(t, 0, rep.ExitCode())
	require.Equal(t, before, h.unitBytes(t))
}

func TestRun_NoRestartWhenServiceStopped(t *testing.T) {
	h := newHarness(t, svcfile.BlockProducer, true)
	h.manager.active = false

	rep := h.ctrl.Run(context.Background())

	require.Equal(t, Transitioned, rep.Outcome)
	require.Equal(t, svcfile.Standby, h.unitRole(t))
	require.Equal(t, 1, h.manager.reloads)
	require.Zero(t, h.manager.restarts)
}

func TestRun_LockHeld(t *testing.T) {
	h := newHarness(t, svcfile.BlockProducer, true)

	lock, err := lockfile.Acquire(h.conf.LockPath())
	require.NoError(t, err)
	defer lock.Release()

	before := h.unitBytes(t)
	rep := h.ctrl.Run(context.Background())

	// Overlapping invocations exit cleanly without touching anything.
	require.Equal(t, LockHeld, rep.Outcome)
	require.Equal(t, 0, rep.ExitCode())
	require.Equal(t, before, h.unitBytes(t))
}

func TestRun_DryRun(t *testing.T) {
	h := newHarness(t, svcfile.BlockProducer, true)
	h.conf.DryRun = true

	before := h.unitBytes(t)
	rep := h.ctrl.Run(context.Background())

	require.Equal(t, Transitioned, rep.Outcome)
	require.Equal(t, before, h.unitBytes(t))
	require.Zero(t, h.manager.reloads)
	require.Zero(t, h.manager.restarts)
}

func TestRun_SetupFailureOnMissingUnit(t *testing.T) {
	h := newHarness(t, svcfile.Standby, true)
	require.NoError(t, os.Remove(h.conf.UnitFile))

	rep := h.ctrl.Run(context.Background())

	require.Equal(t, SetupFailure, rep.Outcome)
	require.Equal(t, 1, rep.ExitCode())
}

func TestRun_ReloadFailureIsCritical(t *testing.T) {
	h := newHarness(t, svcfile.BlockProducer, true)
	h.manager.reloadErr = fmt.Errorf("dbus timeout")

	rep := h.ctrl.Run(context.Background())

	require.Equal(t, ServiceRestartFailure, rep.Outcome)
	require.True(t, rep.Outcome.Critical())
	// The rewrite landed before the reload failed.
	require.Equal(t, svcfile.Standby, h.unitRole(t))
}
