package netmon

import (
	"fmt"
	"time"
)

type ThrottleMode string

const (
	// ThrottleAction polls every tick and gates only the command.
	ThrottleAction ThrottleMode = "action"
	// ThrottlePoll gates the poll itself; changes inside the window are not
	// seen until the next allowed poll.
	ThrottlePoll ThrottleMode = "poll"
)

func ParseThrottleMode(s string) (ThrottleMode, error) {
	switch ThrottleMode(s) {
	case ThrottleAction, ThrottlePoll:
		return ThrottleMode(s), nil
	case "":
		return ThrottleAction, nil
	default:
		return "", fmt.Errorf("unknown throttle mode %q (want %q or %q)", s, ThrottleAction, ThrottlePoll)
	}
}

// Allow reports whether at least throttle has elapsed since last. A zero
// last always allows.
func Allow(now, last time.Time, throttle time.Duration) bool {
	if last.IsZero() {
		return true
	}
	return now.Sub(last) >= throttle
}
