package netmon

import "errors"

var (
	// ErrSnapshotUnavailable wraps a failure of the OS interface enumeration.
	ErrSnapshotUnavailable = errors.New("network interfaces unavailable")
	// ErrNoInterfaces is returned by Init when the host reports no interfaces.
	ErrNoInterfaces = errors.New("no interfaces found")
)

type Family int

const (
	FamilyLink Family = iota
	FamilyIPv4
	FamilyIPv6
)

func (f Family) String() string {
	switch f {
	case FamilyLink:
		return "link"
	case FamilyIPv4:
		return "inet"
	case FamilyIPv6:
		return "inet6"
	default:
		return "unknown"
	}
}

// InterfaceAddr is one (interface, address family) pair as enumerated by
// the OS. An interface with several addresses appears several times.
type InterfaceAddr struct {
	Name     string
	Family   Family
	Loopback bool
}

// Source enumerates the host's interfaces in OS order. An empty result is a
// valid snapshot; only a failing OS call returns an error.
type Source interface {
	Snapshot() ([]InterfaceAddr, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() ([]InterfaceAddr, error)

func (f SourceFunc) Snapshot() ([]InterfaceAddr, error) { return f() }
