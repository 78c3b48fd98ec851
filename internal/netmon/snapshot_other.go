//go:build !linux

package netmon

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
)

type netSource struct{}

// NewSource returns a Source backed by the net package. Each interface
// contributes a link entry followed by its addresses, as BSD getifaddrs(3)
// orders them.
func NewSource() Source {
	return netSource{}
}

func (netSource) Snapshot() ([]InterfaceAddr, error) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSnapshotUnavailable, err)
	}

	entries := make([]InterfaceAddr, 0, len(interfaces)*2)
	for _, iface := range interfaces {
		loopback := iface.Flags&net.FlagLoopback != 0
		entries = append(entries, InterfaceAddr{Name: iface.Name, Family: FamilyLink, Loopback: loopback})

		addrs, err := iface.Addrs()
		if err != nil {
			log.WithFields(log.Fields{
				"interface": iface.Name,
			}).WithError(err).Trace("Failed to get interface addresses")
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			family := FamilyIPv6
			if ipNet.IP.To4() != nil {
				family = FamilyIPv4
			}
			entries = append(entries, InterfaceAddr{Name: iface.Name, Family: family, Loopback: loopback})
		}
	}
	return entries, nil
}
