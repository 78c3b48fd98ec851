package api

import (
	"net"
	"os"

	"github.com/dmdmdm-nz/zeroconf"
	log "github.com/sirupsen/logrus"

	"github.com/dmdmdm-nz/ifmond/pkg/version"
)

const (
	ServiceType   = "_ifmond._tcp"
	ServiceDomain = "local."
)

// InstanceName is the default DNS-SD instance name: the host name.
func InstanceName() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "ifmond"
	}
	return host
}

// TXTRecords describes the API to browsers.
func TXTRecords() []string {
	return []string{
		"version=" + version.Version,
		"path=/status",
		"events=/ws/events",
	}
}

// advertise registers the API listener with mDNS on all interfaces. The
// returned func withdraws the registration.
func advertise(instance string, addr net.Addr) (func(), error) {
	tcp, ok := addr.(*net.TCPAddr)
	if !ok {
		return func() {}, nil
	}

	server, err := zeroconf.Register(instance, ServiceType, ServiceDomain, tcp.Port, TXTRecords(), nil)
	if err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{
		"instance": instance,
		"service":  ServiceType,
		"port":     tcp.Port,
	}).Info("Advertising status API")
	return server.Shutdown, nil
}
