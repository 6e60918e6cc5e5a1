// Package identity determines who the local host is relative to the
// configured parent node: the set of addresses bound to local interfaces,
// the addresses the outside world sees, and whether any of them is the
// parent's address. The parent runs the same controller on the same
// schedule, so its own invocations must be a guaranteed no-op.
package identity

import (
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultServices are the public-IP lookup endpoints queried to discover the
// host's externally-visible addresses. Each returns the caller's IP as a
// bare string. All lookups are best-effort.
var DefaultServices = []string{
	"https://api.ipify.org",
	"https://ipv4.icanhazip.com",
	"https://ipv6.icanhazip.com",
}

// Info is the resolved identity of the local host.
type Info struct {
	// LocalAddrs are the addresses bound to local interfaces.
	LocalAddrs []net.IP

	// ExternalAddrs are the externally-visible addresses reported by
	// public-IP services. Empty when the host has no working outbound
	// connectivity.
	ExternalAddrs []net.IP
}

// ExternalResolved reports whether at least one externally-visible address
// could be determined. When it is false, the controller cannot distinguish
// "the parent is down" from "my own uplink is down" and must not act on a
// failed probe.
func (i Info) ExternalResolved() bool {
	return len(i.ExternalAddrs) > 0
}

// IsParent reports whether any local or external address equals the parent
// address. Comparison is on parsed, normalized IPs; a parent given as a
// hostname is resolved first.
func (i Info) IsParent(parentAddr string) bool {
	parentIPs := []net.IP{}
	if ip := net.ParseIP(parentAddr); ip != nil {
		parentIPs = append(parentIPs, ip)
	} else if resolved, err := net.LookupIP(parentAddr); err == nil {
		parentIPs = resolved
	}

	for _, pip := range parentIPs {
		for _, ip := range i.LocalAddrs {
			if ip.Equal(pip) {
				return true
			}
		}
		for _, ip := range i.ExternalAddrs {
			if ip.Equal(pip) {
				return true
			}
		}
	}

	return false
}

// Resolver collects the local host's identity. The lookup hooks are fields
// so tests can run without interfaces or network access.
type Resolver struct {
	Services       []string
	HTTPClient     *http.Client
	InterfaceAddrs func() ([]net.Addr, error)

	logger *logrus.Entry
}

// NewResolver returns a Resolver with the default lookup endpoints and a
// bounded HTTP timeout.
func NewResolver(timeout time.Duration, logger *logrus.Entry) *Resolver {
	return &Resolver{
		Services:       DefaultServices,
		HTTPClient:     &http.Client{Timeout: timeout},
		InterfaceAddrs: net.InterfaceAddrs,
		logger:         logger,
	}
}

// Resolve gathers local interface addresses and externally-visible
// addresses. It never fails hard: an unreachable lookup service or a host
// with no interfaces simply yields fewer addresses.
func (r *Resolver) Resolve() Info {
	info := Info{}

	if addrs, err := r.InterfaceAddrs(); err == nil {
		for _, a := range addrs {
			var ip net.IP
			switch v := a.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip != nil {
				info.LocalAddrs = append(info.LocalAddrs, ip)
			}
		}
	} else {
		r.logger.WithError(err).Warning("cannot enumerate local interfaces")
	}

	for _, svc := range r.Services {
		ip := r.fetchPublicIP(svc)
		if ip == nil {
			continue
		}
		if !containsIP(info.ExternalAddrs, ip) {
			info.ExternalAddrs = append(info.ExternalAddrs, ip)
		}
	}

	r.logger.WithFields(logrus.Fields{
		"local":    len(info.LocalAddrs),
		"external": ipStrings(info.ExternalAddrs),
	}).Debug("resolved identity")

	return info
}

func (r *Resolver) fetchPublicIP(service string) net.IP {
	resp, err := r.HTTPClient.Get(service)
	if err != nil {
		r.logger.WithError(err).WithField("service", service).Debug("public-IP lookup failed")
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return nil
	}

	return net.ParseIP(strings.TrimSpace(string(body)))
}

func containsIP(list []net.IP, ip net.IP) bool {
	for _, existing := range list {
		if existing.Equal(ip) {
			return true
		}
	}
	return false
}

func ipStrings(list []net.IP) []string {
	out := make([]string, len(list))
	for i, ip := range list {
		out[i] = ip.String()
	}
	return out
}
