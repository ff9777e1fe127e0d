package daemon

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"os"
	"time"

	"firestige.xyz/arpguard/internal/command"
	"firestige.xyz/arpguard/internal/config"
	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/engine"
	"firestige.xyz/arpguard/internal/metrics"
	"firestige.xyz/arpguard/internal/neigh"
	"firestige.xyz/arpguard/internal/proxy"
)

// Daemon implements command.Controller.
var _ command.Controller = (*Daemon)(nil)

func (d *Daemon) Status() command.StatusInfo {
	rt := d.store.Load()
	names := make([]string, 0)
	for _, ifi := range d.ifaces.List() {
		names = append(names, ifi.Name)
	}
	return command.StatusInfo{
		Version:          engine.Version,
		Hostname:         d.hostname(),
		PID:              os.Getpid(),
		Interfaces:       names,
		GuardEnabled:     rt.Guard.Enabled,
		ConfigGeneration: rt.Generation,
		UptimeSec:        int64(time.Since(d.started).Seconds()),
	}
}

// hostname reads the node name under d.mu since Reload swaps the config.
func (d *Daemon) hostname() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.config.Node.Hostname
}

func (d *Daemon) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"bindings":          d.bindings.Len(),
		"attackers":         d.registry.Len(),
		"proxy_entries":     d.proxyTable.Len(),
		"proxy_queue":       d.queue.Len(),
		"proxy_dropped":     d.queue.Dropped(),
		"config_generation": d.store.Load().Generation,
	}
	if d.dispatcher != nil {
		stats["dispatcher"] = d.dispatcher.Stats()
	}
	return stats
}

func (d *Daemon) Shutdown() {
	d.TriggerShutdown()
}

func (d *Daemon) Flags(scope string) (map[string]interface{}, error) {
	return d.store.Load().Flags(scope)
}

// SetFlags publishes a new runtime snapshot with values applied to scope.
func (d *Daemon) SetFlags(scope string, values map[string]interface{}) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rt, err := d.store.Update(func(r *config.Runtime) error {
		return r.SetFlags(scope, values)
	})
	if err != nil {
		return 0, err
	}
	if scope == "guard" {
		d.registry.Resize(rt.Guard.AttackerCapacity)
	}
	metrics.ConfigGeneration.Set(float64(rt.Generation))
	return rt.Generation, nil
}

// ifindex resolves an interface name; empty means all interfaces.
func (d *Daemon) ifindex(name string) (int, error) {
	if name == "" {
		return 0, nil
	}
	ifi, ok := d.ifaces.ByName(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", core.ErrInterfaceNotFound, name)
	}
	return ifi.Index, nil
}

func (d *Daemon) neighborInfo(b neigh.Binding) command.NeighborInfo {
	n := command.NeighborInfo{
		Address:   b.Addr.String(),
		State:     b.State.String(),
		Updated:   b.Updated,
		Confirmed: b.Confirmed,
		Probes:    b.Probes,
	}
	if ifi, ok := d.ifaces.ByIndex(b.Ifindex); ok {
		n.Interface = ifi.Name
	}
	if len(b.HardwareAddr) > 0 {
		n.HardwareAddr = b.HardwareAddr.String()
	}
	return n
}

func (d *Daemon) Neighbors(iface string) ([]command.NeighborInfo, error) {
	idx, err := d.ifindex(iface)
	if err != nil {
		return nil, err
	}
	out := make([]command.NeighborInfo, 0)
	for _, b := range d.bindings.List() {
		if idx != 0 && b.Ifindex != idx {
			continue
		}
		out = append(out, d.neighborInfo(b))
	}
	return out, nil
}

func (d *Daemon) AddNeighbor(iface string, addr netip.Addr, hw net.HardwareAddr, permanent bool) error {
	ifi, ok := d.ifaces.ByName(iface)
	if !ok {
		return fmt.Errorf("%w: %s", core.ErrInterfaceNotFound, iface)
	}
	if len(hw) != ifi.AddrLen() {
		return fmt.Errorf("%w: %s needs a %d byte hardware address", core.ErrLengthMismatch, iface, ifi.AddrLen())
	}
	return d.bindings.Add(addr, ifi.Index, hw, permanent)
}

func (d *Daemon) FlushNeighbors(iface string) (int, error) {
	idx, err := d.ifindex(iface)
	if err != nil {
		return 0, err
	}
	return d.bindings.Flush(idx), nil
}

func (d *Daemon) ProxyEntries() []proxy.Entry {
	return d.proxyTable.List()
}

func (d *Daemon) AddProxyEntry(addr netip.Addr, iface string) error {
	e, err := d.proxyEntry(addr, iface)
	if err != nil {
		return err
	}
	return d.proxyTable.Add(e)
}

func (d *Daemon) DeleteProxyEntry(addr netip.Addr, iface string) error {
	idx, err := d.ifindex(iface)
	if err != nil {
		return err
	}
	return d.proxyTable.Delete(addr, idx)
}

func (d *Daemon) Attackers() []command.AttackerInfo {
	list := d.registry.List()
	out := make([]command.AttackerInfo, len(list))
	for i, a := range list {
		out[i] = command.AttackerInfo{
			HardwareAddr: a.HardwareAddr.String(),
			Gateway:      a.Gateway.String(),
			Interface:    a.Interface,
			FirstSeen:    a.FirstSeen,
			LastSeen:     a.LastSeen,
			Hits:         a.Hits,
		}
	}
	return out
}

// ClearAttackers forgets hw, or every attacker when hw is nil.
func (d *Daemon) ClearAttackers(hw net.HardwareAddr) int {
	if len(hw) == 0 {
		return d.registry.Clear()
	}
	if d.registry.Forget(hw) {
		return 1
	}
	return 0
}

func (d *Daemon) Resolve(ctx context.Context, iface string, addr netip.Addr) (command.NeighborInfo, error) {
	ifi, ok := d.ifaces.ByName(iface)
	if !ok {
		return command.NeighborInfo{}, fmt.Errorf("%w: %s", core.ErrInterfaceNotFound, iface)
	}
	if d.prober == nil {
		return command.NeighborInfo{}, fmt.Errorf("prober not running")
	}
	announce := d.store.Load().For(ifi.Name).ArpAnnounce
	b, err := d.prober.Resolve(ctx, ifi, announce, addr)
	if err != nil {
		return command.NeighborInfo{}, err
	}
	return d.neighborInfo(b), nil
}
