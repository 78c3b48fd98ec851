package netmon

import (
	"time"

	"github.com/dmdmdm-nz/ifmond/internal/runner"
)

type EventType string

const (
	// InterfaceCurrent is only sent to new subscribers, describing the
	// interface tracked at the time they subscribed.
	InterfaceCurrent EventType = "INTERFACE_CURRENT"
	InterfaceChanged EventType = "INTERFACE_CHANGED"
	ActionExecuted   EventType = "ACTION_EXECUTED"
	ActionThrottled  EventType = "ACTION_THROTTLED"
)

type InterfaceEvent struct {
	Type          EventType       `json:"type"`
	InterfaceName string          `json:"interface"`
	Previous      string          `json:"previous,omitempty"`
	Time          time.Time       `json:"time"`
	Outcome       *runner.Outcome `json:"outcome,omitempty"`
}
