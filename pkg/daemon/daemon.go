// Package daemon moves ifmond into the background. Go cannot fork safely,
// so the binary re-executes itself in a new session and the parent exits.
package daemon

import (
	"fmt"
	"os"
)

const (
	// EnvMarker is set in the environment of the re-executed child.
	EnvMarker = "IFMOND_DAEMONIZED"
	// EnvWorkDir carries the directory the parent was started from, so the
	// child can resolve relative paths after moving to /.
	EnvWorkDir = "IFMOND_WORKDIR"
)

// Detached reports whether this process is the background child.
func Detached() bool {
	return os.Getenv(EnvMarker) == "1"
}

// WorkDir returns the parent's working directory as passed to the child,
// or "" outside a detached child.
func WorkDir() string {
	if !Detached() {
		return ""
	}
	return os.Getenv(EnvWorkDir)
}

// clearEnv keeps the markers out of the environment of commands the
// daemon runs, so a hook starting ifmond -D still detaches.
func clearEnv() {
	os.Unsetenv(EnvMarker)
	os.Unsetenv(EnvWorkDir)
}

// openOutput opens the destination for the child's stdout and stderr. An
// empty path means /dev/null.
func openOutput(logFile string) (*os.File, error) {
	if logFile == "" {
		return os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	}
	f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
