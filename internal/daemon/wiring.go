package daemon

import (
	"fmt"
	"net"
	"net/netip"

	"firestige.xyz/arpguard/internal/config"
	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/engine"
	"firestige.xyz/arpguard/internal/guard"
	"firestige.xyz/arpguard/internal/neigh"
	"firestige.xyz/arpguard/internal/proxy"
	"firestige.xyz/arpguard/internal/route"
	"firestige.xyz/arpguard/internal/solicit"
)

// stack is the packet-processing side of the daemon, built from config.
type stack struct {
	ifaces     *core.Interfaces
	routes     route.Table
	bindings   *neigh.Table
	registry   *guard.Registry
	proxyTable *proxy.Table
	queue      *proxy.Queue
	store      *config.Store
	engine     *engine.Engine
	policy     *solicit.Policy
}

func buildStack(cfg *config.GlobalConfig) (*stack, error) {
	rt, err := cfg.Runtime()
	if err != nil {
		return nil, err
	}

	ifis, routes, err := buildRoutes(cfg)
	if err != nil {
		return nil, err
	}
	s := &stack{
		ifaces:     core.NewInterfaces(ifis...),
		routes:     routes,
		bindings:   neigh.New(neighParams(cfg.Neigh)),
		registry:   guard.NewRegistry(cfg.Guard.AttackerCapacity),
		proxyTable: proxy.NewTable(),
		queue:      proxy.NewQueue(cfg.Proxy.QueueLen),
		store:      config.NewStore(rt),
	}
	if err := s.loadProxyEntries(cfg.Proxy.Entries); err != nil {
		return nil, err
	}

	s.engine = engine.New(engine.Deps{
		Interfaces: s.ifaces,
		Routes:     s.routes,
		Bindings:   s.bindings,
		Guard:      guard.New(s.routes, s.bindings, s.registry),
		Proxy:      proxy.NewResolver(s.proxyTable),
		Queue:      s.queue,
		Config:     s.store,
	})
	s.policy = solicit.NewPolicy(s.routes, s.bindings)
	return s, nil
}

func neighParams(nc config.NeighConfig) neigh.Params {
	return neigh.Params{
		LockTime:    nc.LockTime,
		GCStaleTime: nc.GCStaleTime,
		RetransTime: nc.RetransTime,
		UcastProbes: nc.UcastProbes,
		McastProbes: nc.McastProbes,
		AppProbes:   nc.AppProbes,
	}
}

// buildRoutes describes the configured interfaces and creates the route
// backend serving them.
func buildRoutes(cfg *config.GlobalConfig) ([]*core.Interface, route.Table, error) {
	switch cfg.Routes.Backend {
	case "static":
		return buildStatic(cfg)
	case "netlink":
		return buildNetlink(cfg)
	default:
		return nil, nil, fmt.Errorf("%w: unsupported routes.backend: %s", core.ErrConfigInvalid, cfg.Routes.Backend)
	}
}

func buildStatic(cfg *config.GlobalConfig) ([]*core.Interface, route.Table, error) {
	st := route.NewStatic()
	ifis := make([]*core.Interface, 0, len(cfg.Interfaces))
	byName := make(map[string]int, len(cfg.Interfaces))

	for _, ic := range cfg.Interfaces {
		ifi, err := staticInterface(ic)
		if err != nil {
			return nil, nil, fmt.Errorf("interface %s: %w", ic.Name, err)
		}
		st.AddInterface(ifi)
		if ic.Gateway != "" {
			st.SetGateway(ifi.Index, netip.MustParseAddr(ic.Gateway))
		}
		ifis = append(ifis, ifi)
		byName[ifi.Name] = ifi.Index
	}

	for _, rc := range cfg.Routes.Static {
		r := route.StaticRoute{
			Prefix:  netip.MustParsePrefix(rc.Prefix).Masked(),
			Ifindex: byName[rc.Interface],
		}
		if rc.Gateway != "" {
			gw, err := netip.ParseAddr(rc.Gateway)
			if err != nil {
				return nil, nil, fmt.Errorf("%w: static route %s gateway: %v", core.ErrConfigInvalid, rc.Prefix, err)
			}
			r.Gateway = gw
		}
		st.AddRoute(r)
	}
	return ifis, st, nil
}

// staticInterface builds an interface from its configured description.
func staticInterface(ic config.InterfaceConfig) (*core.Interface, error) {
	media, err := core.ParseMedia(ic.Media)
	if err != nil {
		return nil, err
	}
	hw, err := net.ParseMAC(ic.HardwareAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: hardware_addr: %v", core.ErrConfigInvalid, err)
	}
	ifi := &core.Interface{
		Name:         ic.Name,
		Index:        ic.Index,
		Media:        media,
		HardwareAddr: hw,
	}
	for _, a := range ic.Addresses {
		p, err := netip.ParsePrefix(a)
		if err != nil {
			return nil, fmt.Errorf("%w: address %q: %v", core.ErrConfigInvalid, a, err)
		}
		if !p.Addr().Is4() {
			return nil, fmt.Errorf("%w: address %s is not IPv4", core.ErrConfigInvalid, a)
		}
		scope := core.ScopeUniverse
		if p.Addr().IsLoopback() {
			scope = core.ScopeHost
		}
		ifi.Addrs = append(ifi.Addrs, core.Address{Prefix: p, Scope: scope})
	}
	return ifi, nil
}

func buildNetlink(cfg *config.GlobalConfig) ([]*core.Interface, route.Table, error) {
	nl, err := route.NewNetlink()
	if err != nil {
		return nil, nil, err
	}
	ifis := make([]*core.Interface, 0, len(cfg.Interfaces))
	overrides := make(map[int]netip.Addr)

	for _, ic := range cfg.Interfaces {
		ifi, err := route.Discover(ic.Name)
		if err != nil {
			return nil, nil, err
		}
		if ic.Media != "" {
			if ifi.Media, err = core.ParseMedia(ic.Media); err != nil {
				return nil, nil, err
			}
		}
		if ic.Gateway != "" {
			overrides[ifi.Index] = netip.MustParseAddr(ic.Gateway)
		}
		ifis = append(ifis, ifi)
	}

	if len(overrides) == 0 {
		return ifis, nl, nil
	}
	return ifis, &pinnedGateways{Table: nl, gateways: overrides}, nil
}

// pinnedGateways answers Gateway from configuration for the interfaces that
// name one and from the wrapped table for the rest.
type pinnedGateways struct {
	route.Table
	gateways map[int]netip.Addr
}

func (p *pinnedGateways) Gateway(ifindex int) (netip.Addr, bool) {
	if gw, ok := p.gateways[ifindex]; ok {
		return gw, true
	}
	return p.Table.Gateway(ifindex)
}

// proxyEntry converts a configured entry. An empty interface matches all.
func (s *stack) proxyEntry(addr netip.Addr, iface string) (proxy.Entry, error) {
	e := proxy.Entry{Addr: addr, Interface: iface}
	if iface != "" {
		ifi, ok := s.ifaces.ByName(iface)
		if !ok {
			return proxy.Entry{}, fmt.Errorf("%w: %s", core.ErrInterfaceNotFound, iface)
		}
		e.Ifindex = ifi.Index
	}
	return e, nil
}

func (s *stack) loadProxyEntries(entries []config.ProxyEntryConfig) error {
	for _, pe := range entries {
		addr, err := netip.ParseAddr(pe.Address)
		if err != nil {
			return fmt.Errorf("%w: proxy entry %q: %v", core.ErrConfigInvalid, pe.Address, err)
		}
		e, err := s.proxyEntry(addr, pe.Interface)
		if err != nil {
			return err
		}
		if err := s.proxyTable.Add(e); err != nil {
			return err
		}
	}
	return nil
}
