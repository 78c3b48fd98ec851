package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ifmond/internal/api"
	"github.com/dmdmdm-nz/ifmond/internal/netmon"
	"github.com/dmdmdm-nz/ifmond/internal/runner"
	"github.com/dmdmdm-nz/ifmond/internal/runtime"
	"github.com/dmdmdm-nz/ifmond/pkg/cli"
	"github.com/dmdmdm-nz/ifmond/pkg/daemon"
)

func main() {
	cmd := cli.NewCommand(run)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ifmond: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *cli.Config) error {
	// Configure logging
	setLogLevel(cfg.LogLevel)
	log.SetFormatter(&log.TextFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FullTimestamp:   true,
	})

	detached, err := preparePaths(cfg)
	if err != nil {
		return err
	}

	if cfg.Daemon && !detached {
		pid, err := daemon.Detach(cfg.LogFile)
		if err != nil {
			return fmt.Errorf("daemonize: %w", err)
		}
		log.WithField("pid", pid).Debug("Detached into background")
		return nil
	}

	log.Infof("Config: %s", cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// A nil *runner.Executor must not end up inside the interface.
	var executor netmon.Executor
	if cfg.Execution.Command != "" {
		executor = runner.NewExecutor(cfg.Execution.Command, cfg.Execution.Args,
			runner.WithTimeout(cfg.Execution.Timeout))
	}

	netmonSvc := netmon.NewService(netmon.NewSource(), executor, netmon.Config{
		Verbose:      cfg.Execution.Verbose,
		VeryVerbose:  cfg.Execution.VeryVerbose,
		Throttle:     cfg.Execution.Throttle,
		Mode:         cfg.Execution.ThrottleMode,
		PollInterval: cfg.PollInterval,
	}, netmon.WithWatcher(netmon.NewWatcher()))

	if err := netmonSvc.Init(); err != nil {
		log.WithError(err).Debug("Startup snapshot failed")
		reportNoInterfaces(os.Stderr)
		os.Exit(1)
	}

	// Start in dependency order: netmon → api
	super := runtime.NewSupervisor()
	super.Add("netmon", netmonSvc.Start, netmonSvc.Close)
	if cfg.Listen != "" {
		var opts []api.Option
		if cfg.Advertise {
			opts = append(opts, api.WithAdvertise(api.InstanceName()))
		}
		apiSvc := api.NewService(cfg.Listen, opts...)
		apiSvc.AttachMonitor(netmonSvc)
		super.Add("api", apiSvc.Start, apiSvc.Close)
	}

	if err := super.Start(ctx); err != nil {
		return fmt.Errorf("supervisor start failed: %w", err)
	}
	if err := super.Wait(ctx); err != nil {
		return fmt.Errorf("supervisor wait failed: %w", err)
	}
	return nil
}

// preparePaths makes cfg's paths absolute. The detached child runs from /,
// so there they resolve against the directory the parent was started from.
func preparePaths(cfg *cli.Config) (detached bool, err error) {
	detached = cfg.Daemon && daemon.Detached()
	baseDir := ""
	if detached {
		baseDir = daemon.WorkDir()
		daemon.Prepare()
	}
	return detached, cfg.NormalizeIn(baseDir)
}

func reportNoInterfaces(w io.Writer) {
	fmt.Fprintln(w, "No interfaces found.")
}

func setLogLevel(level string) {
	switch level {
	case "trace":
		log.SetLevel(log.TraceLevel)
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warn":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.SetLevel(log.InfoLevel)
	}
}
