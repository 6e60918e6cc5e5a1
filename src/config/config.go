package config

import (
	"fmt"
	"log/syslog"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"strconv"
	"testing"
	"time"

	"github.com/chainops/poolguard/src/common"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	logrus_syslog "github.com/sirupsen/logrus/hooks/syslog"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultLockFile is the default name of the file used to serialize
	// controller invocations.
	DefaultLockFile = "poolguard.lock"

	// DefaultProducerEnvFile is the default name of the environment file
	// that carries the signing-credential paths.
	DefaultProducerEnvFile = "cnode.env.normal"

	// DefaultStandbyEnvFile is the default name of the environment file
	// without signing credentials.
	DefaultStandbyEnvFile = "cnode.env.standingby"
)

// Default configuration values.
const (
	DefaultLogLevel       = "info"
	DefaultParentPort     = 6000
	DefaultProbeTimeout   = 3000 * time.Millisecond
	DefaultResolveTimeout = 3000 * time.Millisecond
	DefaultUnitFile       = "/etc/systemd/system/cnode.service"
	DefaultServiceName    = "cnode.service"
	DefaultSyslog         = true
)

// Environment variables recognized in addition to flags and the config
// file. These match the scheduler-facing contract: a cron entry can point
// the controller at its parent without any flags.
const (
	EnvParentAddress = "PARENT_ADDRESS"
	EnvParentPort    = "PARENT_PORT"
)

// Config contains all the configuration properties of the failover
// controller.
type Config struct {
	// DataDir is the top-level directory containing poolguard configuration
	// and runtime files (config file, lock file, default env files).
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogFile, when set, duplicates all log output to the given file.
	LogFile string `mapstructure:"log-file"`

	// Syslog forwards log output to the system logger. The external
	// scheduler's alerting reads outcomes from there.
	Syslog bool `mapstructure:"syslog"`

	// ParentAddr is the address of the designated parent node: the peer
	// this node defers to. When the parent is reachable this node stands
	// by; when it is not, this node takes over block production.
	ParentAddr string `mapstructure:"parent-addr"`

	// ParentPort is the parent's node-listening port. By convention ports
	// >= 6000 denote a block-producer listener.
	ParentPort int `mapstructure:"parent-port"`

	// ProbeTimeout bounds the TCP dial against the parent. The controller
	// must terminate promptly even when the parent is black-holed rather
	// than refusing connections.
	ProbeTimeout time.Duration `mapstructure:"probe-timeout"`

	// ResolveTimeout bounds each public-IP lookup used to determine this
	// host's externally-visible address.
	ResolveTimeout time.Duration `mapstructure:"resolve-timeout"`

	// UnitFile is the systemd unit definition of the managed node process.
	// Its EnvironmentFile line is the durable role encoding.
	UnitFile string `mapstructure:"unit-file"`

	// ServiceName is the unit name passed to systemctl.
	ServiceName string `mapstructure:"service"`

	// ProducerEnvFile is the environment file listing the KES/VRF/cert
	// paths. Referenced by the unit when the node is a block producer.
	ProducerEnvFile string `mapstructure:"producer-env"`

	// StandbyEnvFile is the environment file without signing credentials.
	// Referenced by the unit when the node stands by.
	StandbyEnvFile string `mapstructure:"standby-env"`

	// LockFile overrides the default lock file location.
	LockFile string `mapstructure:"lock-file"`

	// KESKey, VRFKey and OpCert override the credential paths read from
	// the producer environment file.
	KESKey string `mapstructure:"kes-key"`
	VRFKey string `mapstructure:"vrf-key"`
	OpCert string `mapstructure:"op-cert"`

	// DryRun computes and logs the decision without touching the unit file
	// or the service manager.
	DryRun bool `mapstructure:"dry-run"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:        DefaultDataDir(),
		LogLevel:       DefaultLogLevel,
		Syslog:         DefaultSyslog,
		ParentAddr:     os.Getenv(EnvParentAddress),
		ParentPort:     DefaultParentPort,
		ProbeTimeout:   DefaultProbeTimeout,
		ResolveTimeout: DefaultResolveTimeout,
		UnitFile:       DefaultUnitFile,
		ServiceName:    DefaultServiceName,
	}

	if port, err := strconv.Atoi(os.Getenv(EnvParentPort)); err == nil {
		config.ParentPort = port
	}

	return config
}

// NewTestConfig returns a config object with default values and a special
// logger for debugging tests. Syslog is off: tests must not write to the
// system log.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.Syslog = false
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Validate checks the settings a run cannot proceed without.
func (c *Config) Validate() error {
	if c.ParentAddr == "" {
		return fmt.Errorf("no parent address configured (set --parent-addr or %s)", EnvParentAddress)
	}
	if c.ParentPort <= 0 || c.ParentPort > 65535 {
		return fmt.Errorf("invalid parent port %d", c.ParentPort)
	}
	return nil
}

// ParentEndpoint returns the parent's address:port dial target.
func (c *Config) ParentEndpoint() string {
	return net.JoinHostPort(c.ParentAddr, strconv.Itoa(c.ParentPort))
}

// LockPath returns the lock file location, defaulting to the datadir.
func (c *Config) LockPath() string {
	if c.LockFile != "" {
		return c.LockFile
	}
	return filepath.Join(c.DataDir, DefaultLockFile)
}

// ProducerEnvPath returns the producer environment file, defaulting to the
// datadir.
func (c *Config) ProducerEnvPath() string {
	if c.ProducerEnvFile != "" {
		return c.ProducerEnvFile
	}
	return filepath.Join(c.DataDir, DefaultProducerEnvFile)
}

// StandbyEnvPath returns the standby environment file, defaulting to the
// datadir.
func (c *Config) StandbyEnvPath() string {
	if c.StandbyEnvFile != "" {
		return c.StandbyEnvFile
	}
	return filepath.Join(c.DataDir, DefaultStandbyEnvFile)
}

// Logger returns a formatted logrus Entry, with prefix set to "poolguard".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)

		if c.LogFile != "" {
			c.logger.Hooks.Add(lfshook.NewHook(c.LogFile, new(logrus.TextFormatter)))
		}

		if c.Syslog {
			hook, err := logrus_syslog.NewSyslogHook("", "", syslog.LOG_INFO|syslog.LOG_DAEMON, "poolguard")
			if err != nil {
				c.logger.WithError(err).Warning("cannot connect to syslog, logging to stderr only")
			} else {
				c.logger.Hooks.Add(hook)
			}
		}
	}
	return c.logger.WithField("prefix", "poolguard")
}

// DefaultDataDir returns the default directory name for top-level poolguard
// config based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Poolguard")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Poolguard")
		} else {
			return filepath.Join(home, ".poolguard")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
