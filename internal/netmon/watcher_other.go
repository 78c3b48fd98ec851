//go:build !linux && !darwin

package netmon

import "context"

type tickerOnlyWatcher struct{}

// NewWatcher returns a watcher that never nudges; the monitor relies on its
// poll interval alone.
func NewWatcher() Watcher {
	return tickerOnlyWatcher{}
}

func (tickerOnlyWatcher) Start(ctx context.Context, nudge func()) error {
	<-ctx.Done()
	return nil
}
