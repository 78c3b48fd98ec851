//go:build unix

package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
)

// Detach starts a copy of the current process in a new session, with stdin
// on /dev/null, stdout and stderr on logFile (or /dev/null) and / as the
// working directory. It returns the child's PID; the caller should exit.
func Detach(logFile string) (int, error) {
	exe, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("locate executable: %w", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		return 0, fmt.Errorf("get working directory: %w", err)
	}

	stdin, err := os.Open(os.DevNull)
	if err != nil {
		return 0, err
	}
	defer stdin.Close()

	out, err := openOutput(logFile)
	if err != nil {
		return 0, err
	}
	defer out.Close()

	cmd := exec.Command(exe, os.Args[1:]...)
	cmd.Env = append(os.Environ(), EnvMarker+"=1", EnvWorkDir+"="+wd)
	cmd.Dir = "/"
	cmd.Stdin = stdin
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start detached process: %w", err)
	}
	pid := cmd.Process.Pid
	if err := cmd.Process.Release(); err != nil {
		return pid, err
	}
	return pid, nil
}

// Prepare finishes setup inside the detached child. Read WorkDir before
// calling it.
func Prepare() {
	clearEnv()
	signal.Ignore(syscall.SIGHUP)
	unix.Umask(0)
}
