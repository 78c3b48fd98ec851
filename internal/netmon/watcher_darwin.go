//go:build darwin

package netmon

import (
	"context"

	log "github.com/sirupsen/logrus"
	"golang.org/x/net/route"
	"golang.org/x/sys/unix"
)

type darwinWatcher struct{}

// NewWatcher creates a macOS-specific watcher using AF_ROUTE sockets.
func NewWatcher() Watcher {
	return darwinWatcher{}
}

func (darwinWatcher) Start(ctx context.Context, nudge func()) error {
	fd, err := unix.Socket(unix.AF_ROUTE, unix.SOCK_RAW, unix.AF_UNSPEC)
	if err != nil {
		return err
	}

	// Close socket when context is cancelled
	go func() {
		<-ctx.Done()
		unix.Close(fd)
	}()

	log.Debug("Route socket watcher started")

	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(fd, buf)
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				log.WithError(err).Warn("Error reading from route socket")
				continue
			}
		}

		msgs, err := route.ParseRIB(route.RIBTypeRoute, buf[:n])
		if err != nil {
			log.WithError(err).Trace("Skipping unparsable routing message")
			continue
		}

		for _, msg := range msgs {
			switch m := msg.(type) {
			case *route.InterfaceMessage:
				log.WithFields(log.Fields{
					"interface": m.Name,
					"index":     m.Index,
					"flags":     m.Flags,
				}).Trace("Interface info message")
				nudge()
			case *route.InterfaceAddrMessage:
				log.WithField("index", m.Index).Trace("Interface address message")
				nudge()
			}
		}
	}
}
