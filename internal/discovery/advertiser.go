// Package discovery advertises the status server over mDNS so clients on
// the LAN can find the controller without a configured address.
package discovery

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

// ServiceType is the DNS-SD service type of the status server.
const ServiceType = "_whackamole._tcp"

// Config describes the advertised service.
type Config struct {
	Instance string
	Port     int
	// HostName defaults to the system host name.
	HostName string
	// IPs defaults to the primary private IPv4 address.
	IPs []net.IP
	TXT []string
}

// Advertiser answers mDNS queries for the service until Stop.
type Advertiser struct {
	log logrus.FieldLogger

	mu     sync.Mutex
	server *mdns.Server
}

// PortFromAddr extracts the port of a listen address such as ":80".
func PortFromAddr(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, err
	}
	port, err := strconv.Atoi(p)
	if err != nil || port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port %q", p)
	}
	return port, nil
}

func newService(cfg Config) (*mdns.MDNSService, error) {
	host := cfg.HostName
	if host == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, fmt.Errorf("hostname: %w", err)
		}
		host = h
	}
	if !strings.HasSuffix(host, ".") {
		host += "."
	}
	ips := cfg.IPs
	if len(ips) == 0 {
		ip, err := primaryIP()
		if err != nil {
			return nil, err
		}
		ips = []net.IP{ip}
	}
	return mdns.NewMDNSService(cfg.Instance, ServiceType, "", host, cfg.Port, ips, cfg.TXT)
}

// Start begins advertising.
func Start(cfg Config, log logrus.FieldLogger) (*Advertiser, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	service, err := newService(cfg)
	if err != nil {
		return nil, fmt.Errorf("create mdns service: %w", err)
	}
	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("start mdns server: %w", err)
	}
	log = log.WithField("component", "mdns")
	log.WithFields(logrus.Fields{
		"instance": cfg.Instance,
		"service":  ServiceType,
		"port":     cfg.Port,
		"ips":      service.IPs,
	}).Info("advertising status server")
	return &Advertiser{log: log, server: server}, nil
}

// Stop withdraws the advertisement. It is safe to call more than once.
func (a *Advertiser) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.server == nil {
		return nil
	}
	err := a.server.Shutdown()
	a.server = nil
	if err != nil {
		return fmt.Errorf("stop mdns server: %w", err)
	}
	a.log.Info("mdns advertisement withdrawn")
	return nil
}

// primaryIP returns the first private IPv4 address on an up, non-loopback
// interface, or the first such public address if there is no private one.
func primaryIP() (net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}
	var candidates []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			if ip := ipNet.IP.To4(); ip != nil && !ip.IsLinkLocalUnicast() {
				candidates = append(candidates, ip)
			}
		}
	}
	for _, ip := range candidates {
		if ip.IsPrivate() {
			return ip, nil
		}
	}
	if len(candidates) > 0 {
		return candidates[0], nil
	}
	return nil, errors.New("no suitable IPv4 address")
}
