// Package netutil classifies addresses as local, private, or multicast —
// the groundwork every parser heuristic and correlator in NetGuard Pro
// builds on (§4.2: "local network space (private RFC1918) and multicast
// are benign by default").
package netutil

import "net"

var privateBlocks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// IsPrivate reports whether addr falls within RFC1918 space (or loopback /
// link-local, which are equally "local" for our purposes).
func IsPrivate(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	for _, n := range privateBlocks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// IsMulticast reports whether addr is a multicast address.
func IsMulticast(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && ip.IsMulticast()
}

// IsLocal reports whether addr should be treated as benign local traffic:
// private address space or multicast.
func IsLocal(addr string) bool {
	return IsPrivate(addr) || IsMulticast(addr)
}
