package identity

import (
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chainops/poolguard/src/common"
)

func fixedInterfaceAddrs(addrs ...string) func() ([]net.Addr, error) {
	return func() ([]net.Addr, error) {
		var out []net.Addr
		for _, a := range addrs {
			out = append(out, &net.IPNet{IP: net.ParseIP(a), Mask: net.CIDRMask(24, 32)})
		}
		return out, nil
	}
}

func TestResolve_ExternalFromService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("203.0.113.7\n"))
	}))
	defer srv.Close()

	r := NewResolver(2*time.Second, common.NewTestEntry(t, common.TestLogLevel))
	r.Services = []string{srv.URL}
	r.InterfaceAddrs = fixedInterfaceAddrs("10.0.0.5")

	info := r.Resolve()
	if !info.ExternalResolved() {
		t.Fatal("expected external address to resolve")
	}
	if !info.ExternalAddrs[0].Equal(net.ParseIP("203.0.113.7")) {
		t.Fatalf("bad external addr: %v", info.ExternalAddrs[0])
	}
}

func TestResolve_NoConnectivity(t *testing.T) {
	r := NewResolver(100*time.Millisecond, common.NewTestEntry(t, common.TestLogLevel))
	// A closed local port stands in for a black-holed uplink.
	r.Services = []string{"http://127.0.0.1:1"}
	r.InterfaceAddrs = fixedInterfaceAddrs("10.0.0.5")

	info := r.Resolve()
	if info.ExternalResolved() {
		t.Fatalf("expected no external address, got %v", info.ExternalAddrs)
	}
	if len(info.LocalAddrs) != 1 {
		t.Fatalf("bad local addrs: %v", info.LocalAddrs)
	}
}

func TestIsParent(t *testing.T) {
	for _, c := range []struct {
		name     string
		local    []string
		external []string
		parent   string
		want     bool
	}{
		{"local match", []string{"192.0.2.10"}, nil, "192.0.2.10", true},
		{"external match", []string{"10.0.0.5"}, []string{"198.51.100.4"}, "198.51.100.4", true},
		{"no match", []string{"10.0.0.5"}, []string{"198.51.100.4"}, "192.0.2.99", false},
		{"normalized ipv6", []string{"2001:db8::1"}, nil, "2001:0db8:0000::0001", true},
		{"unresolved external is not parent", []string{"10.0.0.5"}, nil, "192.0.2.1", false},
	} {
		t.Run(c.name, func(t *testing.T) {
			info := Info{}
			for _, a := range c.local {
				info.LocalAddrs = append(info.LocalAddrs, net.ParseIP(a))
			}
			for _, a := range c.external {
				info.ExternalAddrs = append(info.ExternalAddrs, net.ParseIP(a))
			}
			if got := info.IsParent(c.parent); got != c.want {
				t.Fatalf("IsParent(%s) => %v, want %v", c.parent, got, c.want)
			}
		})
	}
}
