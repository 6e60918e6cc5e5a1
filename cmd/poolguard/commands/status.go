package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chainops/poolguard/src/identity"
	"github.com/chainops/poolguard/src/probe"
	"github.com/chainops/poolguard/src/svcfile"
)

// NewStatusCmd returns the command that reports the controller's view of
// the world without mutating anything: current role, credential presence,
// and parent reachability.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Report current role and parent reachability",
		PreRunE: loadConfig,
		RunE:    runStatus,
	}
	AddRunFlags(cmd)
	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	unit, err := svcfile.LoadUnit(_config.UnitFile)
	if err != nil {
		return err
	}

	role, err := unit.Role()
	if err != nil {
		return err
	}

	creds, err := svcfile.CredentialsFromEnv(_config.ProducerEnvPath())
	if err != nil {
		logger.WithError(err).Warning("cannot read producer environment file")
	}
	if _config.KESKey != "" {
		creds.KESKey = _config.KESKey
	}
	if _config.VRFKey != "" {
		creds.VRFKey = _config.VRFKey
	}
	if _config.OpCert != "" {
		creds.OpCert = _config.OpCert
	}

	info := identity.NewResolver(_config.ResolveTimeout, logger).Resolve()

	result := probe.Indeterminate
	if err := _config.Validate(); err != nil {
		logger.WithError(err).Warning("parent not configured, skipping probe")
	} else {
		result = probe.NewProber(_config.ProbeTimeout, logger).
			Check(_config.ParentEndpoint(), info.ExternalResolved())
	}

	fmt.Printf("role:         %s\n", role)
	fmt.Printf("unit:         %s\n", _config.UnitFile)
	fmt.Printf("env file:     %s\n", unit.EnvPath())
	if missing := creds.Missing(); len(missing) > 0 {
		fmt.Printf("credentials:  incomplete (missing %s)\n", strings.Join(missing, ", "))
	} else {
		fmt.Printf("credentials:  complete\n")
	}
	fmt.Printf("parent:       %s\n", _config.ParentEndpoint())
	fmt.Printf("probe:        %s\n", result)
	fmt.Printf("is parent:    %v\n", info.IsParent(_config.ParentAddr))

	return nil
}
