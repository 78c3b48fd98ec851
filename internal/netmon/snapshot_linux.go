//go:build linux

package netmon

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
)

type netlinkSource struct{}

// NewSource returns a netlink-backed Source. Entries come in the same
// order getifaddrs(3) reports them: every link first, then addresses in
// kernel dump order (IPv4 before IPv6).
func NewSource() Source {
	return netlinkSource{}
}

func (netlinkSource) Snapshot() ([]InterfaceAddr, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("%w: list links: %w", ErrSnapshotUnavailable, err)
	}

	byIndex := make(map[int]*netlink.LinkAttrs, len(links))
	entries := make([]InterfaceAddr, 0, len(links)*2)
	for _, link := range links {
		attrs := link.Attrs()
		byIndex[attrs.Index] = attrs
		entries = append(entries, InterfaceAddr{
			Name:     attrs.Name,
			Family:   FamilyLink,
			Loopback: attrs.Flags&net.FlagLoopback != 0,
		})
	}

	addrs, err := netlink.AddrList(nil, netlink.FAMILY_ALL)
	if err != nil {
		return nil, fmt.Errorf("%w: list addresses: %w", ErrSnapshotUnavailable, err)
	}

	for _, addr := range addrs {
		attrs, ok := byIndex[addr.LinkIndex]
		if !ok {
			// Link vanished between the two dumps.
			log.WithField("index", addr.LinkIndex).Trace("Skipping address of unknown link")
			continue
		}
		family := FamilyIPv6
		if addr.IP.To4() != nil {
			family = FamilyIPv4
		}
		entries = append(entries, InterfaceAddr{
			Name:     attrs.Name,
			Family:   family,
			Loopback: attrs.Flags&net.FlagLoopback != 0,
		})
	}

	return entries, nil
}
