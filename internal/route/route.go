// Package route answers the routing questions the ARP engine asks: the
// default gateway of an interface, the type and output device of a route,
// and the type of an address.
package route

import (
	"net/netip"

	"firestige.xyz/arpguard/internal/core"
)

// Route is the result of a route lookup.
type Route struct {
	Type    core.RouteType
	Ifindex int
	Gateway netip.Addr
}

// Table is the route/gateway query service.
type Table interface {
	// Gateway returns the default gateway reached through ifindex.
	Gateway(ifindex int) (netip.Addr, bool)
	// Lookup resolves dst as seen from src arriving on ifindex.
	// It returns core.ErrUnreachable when no route exists.
	Lookup(src, dst netip.Addr, ifindex int) (Route, error)
	// AddrType classifies addr against the local address table.
	AddrType(addr netip.Addr) core.RouteType
}

var limitedBroadcast = netip.AddrFrom4([4]byte{255, 255, 255, 255})

// subnetBroadcast returns the directed broadcast address of p.
func subnetBroadcast(p netip.Prefix) netip.Addr {
	a := p.Masked().Addr().As4()
	host := 32 - p.Bits()
	for i := 3; i >= 0 && host > 0; i-- {
		n := host
		if n > 8 {
			n = 8
		}
		a[i] |= byte(1<<n - 1)
		host -= n
	}
	return netip.AddrFrom4(a)
}
