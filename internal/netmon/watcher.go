package netmon

import "context"

// Watcher listens for OS notifications about links and addresses (netlink
// on Linux, route sockets on macOS) and calls nudge so the monitor polls
// without waiting for the next tick. The poll itself stays authoritative.
type Watcher interface {
	// Start blocks until ctx is cancelled or the subscription fails.
	Start(ctx context.Context, nudge func()) error
}
