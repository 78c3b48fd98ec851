package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// Executor runs the configured command with the interface name as its
// first argument and waits for it to finish.
type Executor struct {
	command string
	args    []string
	timeout time.Duration
	stdout  io.Writer
	stderr  io.Writer
}

type Option func(*Executor)

// WithTimeout kills the command's process group once d has elapsed.
// Zero disables the timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Executor) { e.timeout = d }
}

// WithOutput sets where the child's stdout and stderr go. The default is
// the parent's own stdout and stderr.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(e *Executor) {
		e.stdout = stdout
		e.stderr = stderr
	}
}

func NewExecutor(command string, args []string, opts ...Option) *Executor {
	e := &Executor{
		command: command,
		args:    append([]string(nil), args...),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Executor) Command() string { return e.command }

// Argv returns the argument vector for an invocation: the command, the
// interface name, then the extra arguments.
func (e *Executor) Argv(iface string) []string {
	argv := make([]string, 0, len(e.args)+2)
	argv = append(argv, e.command, iface)
	return append(argv, e.args...)
}

// Execute spawns one child process and blocks until it exits, the timeout
// fires, or ctx is cancelled. Failures are logged and returned in the
// Outcome; Execute never panics or exits the process.
func (e *Executor) Execute(ctx context.Context, iface string) Outcome {
	argv := e.Argv(iface)
	out := Outcome{
		ID:        uuid.NewString(),
		Command:   e.command,
		Args:      argv[2:],
		Interface: iface,
		Started:   time.Now(),
	}
	fields := log.Fields{
		"command":    e.command,
		"interface":  iface,
		"invocation": out.ID,
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = e.stdout
	cmd.Stderr = e.stderr
	configureProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		out.Kind = SpawnFailed
		out.Error = err.Error()
		log.WithFields(fields).WithError(err).Error("Failed to start command")
		return out
	}
	out.PID = cmd.Process.Pid
	fields["pid"] = out.PID
	log.WithFields(fields).Debug("Command started")

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutC <-chan time.Time
	if e.timeout > 0 {
		timer := time.NewTimer(e.timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-timeoutC:
		timedOut = true
		e.kill(cmd, fields)
		waitErr = <-done
	case <-ctx.Done():
		e.kill(cmd, fields)
		waitErr = <-done
		out.Error = ctx.Err().Error()
	}
	out.Duration = time.Since(out.Started)

	classify(&out, cmd.ProcessState, waitErr)
	if timedOut {
		out.Kind = TimedOut
	}

	report(out, fields)
	return out
}

func (e *Executor) kill(cmd *exec.Cmd, fields log.Fields) {
	if err := killProcessGroup(cmd); err != nil {
		log.WithFields(fields).WithError(err).Warn("Failed to kill command process group")
	}
}

func classify(out *Outcome, state *os.ProcessState, waitErr error) {
	if state == nil {
		out.Kind = Abnormal
		if waitErr != nil && out.Error == "" {
			out.Error = waitErr.Error()
		}
		return
	}

	ws, ok := state.Sys().(syscall.WaitStatus)
	switch {
	case ok && ws.Exited():
		out.ExitStatus = ws.ExitStatus()
	case ok && ws.Signaled():
		out.Kind = Signaled
		out.Signal = int(ws.Signal())
		out.ExitStatus = -1
		return
	case !ok && state.Exited():
		out.ExitStatus = state.ExitCode()
	default:
		out.Kind = Abnormal
		out.ExitStatus = -1
		return
	}

	if out.ExitStatus == 0 {
		out.Kind = Success
	} else {
		out.Kind = ExitError
	}

	// The child exited but copying its output failed.
	var exitErr *exec.ExitError
	if waitErr != nil && !errors.As(waitErr, &exitErr) && out.Error == "" {
		out.Error = waitErr.Error()
	}
}

func report(out Outcome, fields log.Fields) {
	entry := log.WithFields(fields).WithField("duration", out.Duration.Round(time.Millisecond))
	switch out.Kind {
	case Success:
		entry.Debug("Command finished")
	case ExitError:
		entry.WithField("status", out.ExitStatus).Error("Child process exited with error status")
	case Signaled:
		entry.WithField("signal", signalName(out.Signal)).Errorf("Child process terminated by signal %d", out.Signal)
	case TimedOut:
		entry.Error("Child process timed out and was killed")
	default:
		entry.WithField("kind", out.Kind).Error("Child process terminated abnormally")
	}
}
