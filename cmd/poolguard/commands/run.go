package commands

import (
	"context"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/chainops/poolguard/src/controller"
)

// NewRunCmd returns the command that performs one failover-controller
// invocation. It is meant to be called from a scheduler entry (e.g. every
// two minutes); each invocation reads durable state afresh, decides, and
// exits with a cause-specific code.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run one failover check",
		PreRunE: loadConfig,
		RunE:    runController,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runController(cmd *cobra.Command, args []string) error {
	if err := _config.Validate(); err != nil {
		_config.Logger().Error(err)
		os.Exit(controller.SetupFailure.ExitCode())
	}

	ctrl := controller.New(_config)

	rep := ctrl.Run(context.Background())

	// The report has already been logged; the exit code is the scheduler's
	// half of the contract.
	if code := rep.ExitCode(); code != 0 {
		os.Exit(code)
	}

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

// AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and runtime files")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-file", _config.LogFile, "Duplicate log output to this file")
	cmd.Flags().Bool("syslog", _config.Syslog, "Forward log output to the system logger")

	// Parent
	cmd.Flags().StringP("parent-addr", "P", _config.ParentAddr, "Address of the designated parent node")
	cmd.Flags().Int("parent-port", _config.ParentPort, "Parent's node-listening port")
	cmd.Flags().DurationP("probe-timeout", "t", _config.ProbeTimeout, "TCP probe timeout")
	cmd.Flags().Duration("resolve-timeout", _config.ResolveTimeout, "Public-IP lookup timeout")

	// Service
	cmd.Flags().String("unit-file", _config.UnitFile, "systemd unit file of the managed node")
	cmd.Flags().String("service", _config.ServiceName, "Unit name passed to systemctl")
	cmd.Flags().String("producer-env", _config.ProducerEnvFile, "Environment file with signing-credential paths")
	cmd.Flags().String("standby-env", _config.StandbyEnvFile, "Environment file without signing credentials")
	cmd.Flags().String("lock-file", _config.LockFile, "Lock file serializing invocations")

	// Credentials
	cmd.Flags().String("kes-key", _config.KESKey, "Override KES signing key path")
	cmd.Flags().String("vrf-key", _config.VRFKey, "Override VRF signing key path")
	cmd.Flags().String("op-cert", _config.OpCert, "Override operational certificate path")

	cmd.Flags().Bool("dry-run", _config.DryRun, "Decide and log without applying")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	_config.Logger().WithFields(logrus.Fields{
		"DataDir":      _config.DataDir,
		"ParentAddr":   _config.ParentAddr,
		"ParentPort":   _config.ParentPort,
		"ProbeTimeout": _config.ProbeTimeout,
		"UnitFile":     _config.UnitFile,
		"Service":      _config.ServiceName,
		"ProducerEnv":  _config.ProducerEnvPath(),
		"StandbyEnv":   _config.StandbyEnvPath(),
		"LockFile":     _config.LockPath(),
		"DryRun":       _config.DryRun,
		"LogLevel":     _config.LogLevel,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all
	// other persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/poolguard.toml (.json, .yaml also work)
	viper.SetConfigName("poolguard")     // name of config file (without extension)
	viper.AddConfigPath(_config.DataDir) // search root directory

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
