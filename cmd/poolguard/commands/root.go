package commands

import (
	"github.com/spf13/cobra"

	"github.com/chainops/poolguard/src/config"
)

var (
	_config = config.NewDefaultConfig()
)

// RootCmd is the root command for poolguard
var RootCmd = &cobra.Command{
	Use:              "poolguard",
	Short:            "poolguard block-producer failover controller",
	TraverseChildren: true,
}
