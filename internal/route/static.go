package route

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"firestige.xyz/arpguard/internal/core"
)

// StaticRoute is a configured route through a gateway.
type StaticRoute struct {
	Prefix  netip.Prefix
	Gateway netip.Addr
	Ifindex int
}

// Static is an in-memory route table derived from interface addresses,
// configured routes and per-interface default gateways.
type Static struct {
	mu       sync.RWMutex
	ifaces   map[int]*core.Interface
	gateways map[int]netip.Addr
	routes   []StaticRoute
}

// NewStatic creates an empty static table.
func NewStatic() *Static {
	return &Static{
		ifaces:   make(map[int]*core.Interface),
		gateways: make(map[int]netip.Addr),
	}
}

// AddInterface registers the connected subnets and local addresses of ifi.
func (s *Static) AddInterface(ifi *core.Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ifaces[ifi.Index] = ifi
}

// SetGateway sets the default gateway of ifindex.
func (s *Static) SetGateway(ifindex int, gw netip.Addr) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gateways[ifindex] = gw
}

// AddRoute adds a route to prefix through gw.
func (s *Static) AddRoute(r StaticRoute) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.routes = append(s.routes, r)
	sort.SliceStable(s.routes, func(i, j int) bool {
		return s.routes[i].Prefix.Bits() > s.routes[j].Prefix.Bits()
	})
}

// Gateway implements Table.
func (s *Static) Gateway(ifindex int) (netip.Addr, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	gw, ok := s.gateways[ifindex]
	return gw, ok && gw.IsValid()
}

// AddrType implements Table.
func (s *Static) AddrType(addr netip.Addr) core.RouteType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addrTypeLocked(addr)
}

func (s *Static) addrTypeLocked(addr netip.Addr) core.RouteType {
	switch {
	case addr.IsMulticast():
		return core.RouteMulticast
	case addr.IsUnspecified() || addr == limitedBroadcast:
		return core.RouteBroadcast
	}
	for _, ifi := range s.ifaces {
		for _, a := range ifi.Addrs {
			if a.Prefix.Addr() == addr {
				return core.RouteLocal
			}
			if a.Prefix.Bits() < 31 && subnetBroadcast(a.Prefix) == addr {
				return core.RouteBroadcast
			}
		}
	}
	return core.RouteUnicast
}

// Lookup implements Table.
func (s *Static) Lookup(src, dst netip.Addr, ifindex int) (Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch t := s.addrTypeLocked(dst); t {
	case core.RouteMulticast, core.RouteBroadcast:
		return Route{Type: t, Ifindex: ifindex}, nil
	case core.RouteLocal:
		return Route{Type: core.RouteLocal, Ifindex: s.ownerLocked(dst)}, nil
	}
	if dst.IsLoopback() {
		return Route{}, fmt.Errorf("%w: %s", core.ErrUnreachable, dst)
	}

	// Connected subnets, longest prefix first.
	best, bestBits := 0, -1
	for idx, ifi := range s.ifaces {
		for _, a := range ifi.Addrs {
			if a.Scope == core.ScopeHost {
				continue
			}
			p := a.Prefix.Masked()
			if p.Contains(dst) && (p.Bits() > bestBits || p.Bits() == bestBits && idx < best) {
				best, bestBits = idx, p.Bits()
			}
		}
	}
	if bestBits >= 0 {
		return Route{Type: core.RouteUnicast, Ifindex: best}, nil
	}

	for _, r := range s.routes {
		if r.Prefix.Contains(dst) {
			return Route{Type: core.RouteUnicast, Ifindex: r.Ifindex, Gateway: r.Gateway}, nil
		}
	}

	if gw, ok := s.gateways[ifindex]; ok && gw.IsValid() {
		return Route{Type: core.RouteUnicast, Ifindex: ifindex, Gateway: gw}, nil
	}
	idxs := make([]int, 0, len(s.gateways))
	for idx, gw := range s.gateways {
		if gw.IsValid() {
			idxs = append(idxs, idx)
		}
	}
	if len(idxs) > 0 {
		sort.Ints(idxs)
		return Route{Type: core.RouteUnicast, Ifindex: idxs[0], Gateway: s.gateways[idxs[0]]}, nil
	}
	return Route{}, fmt.Errorf("%w: %s", core.ErrUnreachable, dst)
}

func (s *Static) ownerLocked(addr netip.Addr) int {
	for idx, ifi := range s.ifaces {
		if ifi.Owns(addr) {
			return idx
		}
	}
	return 0
}
