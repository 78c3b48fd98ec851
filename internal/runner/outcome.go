package runner

import (
	"errors"
	"fmt"
	"time"
)

type Kind string

const (
	Success     Kind = "SUCCESS"
	ExitError   Kind = "EXIT_ERROR"
	Signaled    Kind = "SIGNALED"
	Abnormal    Kind = "ABNORMAL"
	SpawnFailed Kind = "SPAWN_FAILED"
	TimedOut    Kind = "TIMED_OUT"
)

// Outcome describes how a single command invocation ended.
type Outcome struct {
	ID         string        `json:"id"`
	Command    string        `json:"command"`
	Args       []string      `json:"args"`
	Interface  string        `json:"interface"`
	PID        int           `json:"pid,omitempty"`
	Kind       Kind          `json:"kind"`
	ExitStatus int           `json:"exitStatus"`
	Signal     int           `json:"signal,omitempty"`
	Error      string        `json:"error,omitempty"`
	Started    time.Time     `json:"started"`
	Duration   time.Duration `json:"duration"`
}

// OK reports whether the command ran and exited with status 0.
func (o Outcome) OK() bool {
	return o.Kind == Success
}

// Err returns nil on success, otherwise an error describing the outcome.
func (o Outcome) Err() error {
	switch o.Kind {
	case Success:
		return nil
	case ExitError:
		return fmt.Errorf("child process exited with error status %d", o.ExitStatus)
	case Signaled:
		return fmt.Errorf("child process terminated by signal %d (%s)", o.Signal, signalName(o.Signal))
	case SpawnFailed:
		return fmt.Errorf("failed to start %s: %s", o.Command, o.Error)
	case TimedOut:
		return fmt.Errorf("child process timed out after %s", o.Duration.Round(time.Millisecond))
	case Abnormal:
		if o.Error != "" {
			return fmt.Errorf("child process terminated abnormally: %s", o.Error)
		}
		return errors.New("child process terminated abnormally")
	default:
		return fmt.Errorf("unknown outcome %q", o.Kind)
	}
}
