// Package config defines the configuration for the poolguard controller.
//
// Regardless of how poolguard is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, poolguard relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files unless told
// otherwise:
//
//	poolguard.toml       // (optional, .yaml and .json also work) the config file.
//	poolguard.lock       // the invocation lock file.
//	cnode.env.normal     // the environment file carrying signing-credential paths.
//	cnode.env.standingby // the environment file without signing credentials.
//
// The parent node's address and port can also be supplied through the
// PARENT_ADDRESS and PARENT_PORT environment variables, which is how the
// scheduler entry typically passes them.
package config
