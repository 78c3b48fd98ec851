package cli

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmdmdm-nz/ifmond/internal/netmon"
	"github.com/dmdmdm-nz/ifmond/pkg/version"
)

const DefaultThrottleSeconds = 3

var ErrInvalidThrottle = errors.New("throttle delay must be a positive integer")

// ExecutionConfig is what the monitor loop needs to decide when and what to
// run. It does not change once the loop has started.
type ExecutionConfig struct {
	Verbose      bool
	VeryVerbose  bool
	Throttle     time.Duration
	ThrottleMode netmon.ThrottleMode
	Command      string
	Args         []string
	Timeout      time.Duration
}

// Config holds the application configuration from CLI flags
type Config struct {
	Execution    ExecutionConfig
	Daemon       bool
	LogFile      string
	PollInterval time.Duration
	Listen       string
	Advertise    bool
	LogLevel     string
}

// Validate rejects settings the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Execution.Throttle < time.Second {
		return ErrInvalidThrottle
	}
	if _, err := netmon.ParseThrottleMode(string(c.Execution.ThrottleMode)); err != nil {
		return err
	}
	if c.Execution.Timeout < 0 {
		return fmt.Errorf("exec timeout must not be negative")
	}
	if c.PollInterval < 0 {
		return fmt.Errorf("poll interval must not be negative")
	}
	if c.Advertise && c.Listen == "" {
		return fmt.Errorf("--advertise requires --listen")
	}
	if c.Execution.Command == "" && len(c.Execution.Args) > 0 {
		return fmt.Errorf("unexpected arguments %q: extra arguments require -e", c.Execution.Args)
	}
	return nil
}

// Normalize makes the command and log file paths absolute so they still
// resolve after the daemon changes its working directory to /. A command
// without a slash is left for PATH lookup.
func (c *Config) Normalize() error {
	return c.NormalizeIn("")
}

// NormalizeIn resolves relative paths against dir instead of the current
// working directory. An empty dir means the current working directory.
func (c *Config) NormalizeIn(dir string) error {
	if strings.ContainsRune(c.Execution.Command, filepath.Separator) {
		abs, err := absIn(dir, c.Execution.Command)
		if err != nil {
			return fmt.Errorf("resolve command path: %w", err)
		}
		c.Execution.Command = abs
	}
	if c.LogFile != "" {
		abs, err := absIn(dir, c.LogFile)
		if err != nil {
			return fmt.Errorf("resolve log file path: %w", err)
		}
		c.LogFile = abs
	}
	return nil
}

func absIn(dir, path string) (string, error) {
	if dir == "" || filepath.IsAbs(path) {
		return filepath.Abs(path)
	}
	return filepath.Join(dir, path), nil
}

// String returns a string representation of the Config
func (c *Config) String() string {
	return fmt.Sprintf("Command: %q, Args: %q, Throttle: %s (%s), Verbose: %t, VeryVerbose: %t, Daemon: %t, Listen: %q",
		c.Execution.Command, c.Execution.Args, c.Execution.Throttle, c.Execution.ThrottleMode,
		c.Execution.Verbose, c.Execution.VeryVerbose, c.Daemon, c.Listen)
}

// NewCommand builds the root command. run is called with a validated
// Config; it is not called for --help or --version.
func NewCommand(run func(cfg *Config) error) *cobra.Command {
	cfg := &Config{}
	var (
		verbosity       int
		throttleSeconds int
		throttleMode    string
		showVersion     bool
	)

	command := &cobra.Command{
		Use:   "ifmond [flags] [-e command [args...]]",
		Short: "Run a command whenever the active IPv4 network interface changes",
		Long: `ifmond polls the host's network interfaces and tracks the first
non-loopback interface with an IPv4 address. When it changes, the command
given with -e is run as "command <interface> [args...]".

Everything after the command is passed to it; use -- before extra
arguments that start with a dash.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				fmt.Fprintf(cmd.OutOrStdout(), "ifmond version %s (commit: %s, built at: %s)\n",
					version.Version,
					version.CommitHash,
					version.BuildTime)
				return nil
			}

			cfg.Execution.Verbose = verbosity > 0
			cfg.Execution.VeryVerbose = verbosity > 1
			cfg.Execution.Throttle = time.Duration(throttleSeconds) * time.Second
			cfg.Execution.ThrottleMode = netmon.ThrottleMode(throttleMode)
			if len(args) > 0 {
				cfg.Execution.Args = args
			}

			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cfg)
		},
	}

	flags := command.Flags()
	// Stop at the first positional argument so the hook's own flags are
	// passed through untouched.
	flags.SetInterspersed(false)
	flags.CountVarP(&verbosity, "verbose", "v", "Verbose mode, print the interface on change (-vv: print it on every poll)")
	flags.BoolVarP(&cfg.Daemon, "daemon", "D", false, "Run as a daemon")
	flags.StringVarP(&cfg.LogFile, "log-file", "l", "", "File receiving output when running as a daemon (default /dev/null)")
	flags.StringVarP(&cfg.Execution.Command, "exec", "e", "", "Command to execute when the interface changes")
	flags.IntVarP(&throttleSeconds, "throttle", "t", DefaultThrottleSeconds, "Throttle delay in seconds")
	flags.StringVar(&throttleMode, "throttle-mode", string(netmon.ThrottleAction), "What the throttle gates: action or poll")
	flags.DurationVar(&cfg.PollInterval, "poll-interval", netmon.DefaultPollInterval, "Interval between interface polls (100ms to 1s)")
	flags.DurationVar(&cfg.Execution.Timeout, "exec-timeout", 0, "Kill the command if it runs longer than this (0 waits forever)")
	flags.StringVar(&cfg.Listen, "listen", "", "Address for the status API, e.g. 127.0.0.1:60106 (disabled when empty)")
	flags.BoolVar(&cfg.Advertise, "advertise", false, "Advertise the status API over mDNS as _ifmond._tcp")
	flags.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	flags.BoolVar(&showVersion, "version", false, "Show version information")

	return command
}
