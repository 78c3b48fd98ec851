//go:build linux

package netmon

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

type linuxWatcher struct{}

// NewWatcher creates a Linux-specific watcher using netlink.
func NewWatcher() Watcher {
	return linuxWatcher{}
}

func (linuxWatcher) Start(ctx context.Context, nudge func()) error {
	linkCh := make(chan netlink.LinkUpdate)
	linkDone := make(chan struct{})

	addrCh := make(chan netlink.AddrUpdate)
	addrDone := make(chan struct{})

	if err := netlink.LinkSubscribe(linkCh, linkDone); err != nil {
		return err
	}

	if err := netlink.AddrSubscribe(addrCh, addrDone); err != nil {
		close(linkDone)
		return err
	}

	defer close(linkDone)
	defer close(addrDone)

	log.Debug("Netlink watcher started")

	for {
		select {
		case <-ctx.Done():
			return nil

		case update, ok := <-linkCh:
			if !ok {
				return errors.New("netlink link subscription closed")
			}
			log.WithFields(log.Fields{
				"interface": update.Link.Attrs().Name,
			}).Trace("Link update")
			nudge()

		case update, ok := <-addrCh:
			if !ok {
				return errors.New("netlink address subscription closed")
			}
			if update.LinkAddress.IP.To4() == nil {
				continue
			}
			log.WithFields(log.Fields{
				"index": update.LinkIndex,
				"new":   update.NewAddr,
			}).Trace("IPv4 address update")
			nudge()
		}
	}
}
