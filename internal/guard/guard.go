// Package guard detects hosts that try to take over the default gateway's
// binding and quarantines them.
//
// The guard compares every claim for the gateway address with the binding
// currently cached for it, so the first binding learned for the gateway is
// trusted until contradicted.
package guard

import (
	"bytes"
	"log/slog"
	"net"
	"net/netip"

	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/neigh"
)

// Kind classifies a finding.
type Kind uint8

const (
	KindNone Kind = iota
	// KindGatewayMismatch: a claim for the gateway address disagrees with
	// the cached gateway binding.
	KindGatewayMismatch
	// KindKnownAttacker: a recorded attacker claims the gateway address.
	KindKnownAttacker
	// KindImpersonation: the host whose address the gateway binding holds
	// asks for the gateway, proving the binding is forged.
	KindImpersonation
)

func (k Kind) String() string {
	switch k {
	case KindGatewayMismatch:
		return "gateway_mismatch"
	case KindKnownAttacker:
		return "known_attacker"
	case KindImpersonation:
		return "impersonation"
	default:
		return "none"
	}
}

// Finding is the outcome of a guard check.
type Finding struct {
	Kind        Kind
	Trigger     core.Operation
	Interface   string
	Gateway     netip.Addr
	SenderIP    netip.Addr
	SenderHW    net.HardwareAddr
	BoundHW     net.HardwareAddr
	Invalidated bool
}

// Detected reports whether the packet must be dropped.
func (f Finding) Detected() bool {
	return f.Kind != KindNone
}

// Gateways resolves the default gateway of an interface.
type Gateways interface {
	Gateway(ifindex int) (netip.Addr, bool)
}

// Bindings is the part of the binding cache the guard needs.
type Bindings interface {
	Get(addr netip.Addr, ifindex int) (neigh.Binding, bool)
	Invalidate(addr netip.Addr, ifindex int) bool
}

// Guard runs the gateway checks.
type Guard struct {
	gateways  Gateways
	bindings  Bindings
	attackers *Registry
}

// New creates a guard.
func New(gateways Gateways, bindings Bindings, attackers *Registry) *Guard {
	return &Guard{gateways: gateways, bindings: bindings, attackers: attackers}
}

// Attackers exposes the attacker registry.
func (g *Guard) Attackers() *Registry {
	return g.attackers
}

// bound returns the gateway binding when it carries a usable hardware address.
func (g *Guard) bound(gw netip.Addr, ifindex int) (neigh.Binding, bool) {
	b, ok := g.bindings.Get(gw, ifindex)
	if !ok || core.IsZeroHardwareAddr(b.HardwareAddr) {
		return neigh.Binding{}, false
	}
	return b, true
}

// CheckGatewayUpdate vets a request or reply that would update the binding
// of senderIP to senderHW.
func (g *Guard) CheckGatewayUpdate(ifi *core.Interface, op core.Operation, senderIP netip.Addr, senderHW net.HardwareAddr) Finding {
	gw, ok := g.gateways.Gateway(ifi.Index)
	if !ok || senderIP != gw {
		return Finding{}
	}

	f := Finding{
		Trigger:   op,
		Interface: ifi.Name,
		Gateway:   gw,
		SenderIP:  senderIP,
		SenderHW:  senderHW,
	}

	if g.attackers.Seen(senderHW) {
		f.Kind = KindKnownAttacker
		if b, ok := g.bound(gw, ifi.Index); ok {
			f.BoundHW = b.HardwareAddr
			if bytes.Equal(b.HardwareAddr, senderHW) && b.State != core.StatePermanent {
				f.Invalidated = g.bindings.Invalidate(gw, ifi.Index)
			}
		}
		return f
	}

	b, ok := g.bound(gw, ifi.Index)
	if !ok || bytes.Equal(b.HardwareAddr, senderHW) {
		return Finding{}
	}
	f.Kind = KindGatewayMismatch
	f.BoundHW = b.HardwareAddr
	return f
}

// CheckRequestToGateway vets a request asking for the gateway address.
// A request whose sender hardware address is the one cached for the gateway
// comes from the host that poisoned the binding: it is recorded as an
// attacker and the gateway binding is invalidated. A PERMANENT binding was
// pinned by the administrator and cannot have been poisoned, so a sender
// carrying its address is never recorded.
func (g *Guard) CheckRequestToGateway(ifi *core.Interface, targetIP, senderIP netip.Addr, senderHW net.HardwareAddr) Finding {
	gw, ok := g.gateways.Gateway(ifi.Index)
	if !ok || senderIP == targetIP || targetIP != gw {
		return Finding{}
	}

	b, ok := g.bound(gw, ifi.Index)
	if !ok || b.State == core.StatePermanent || !bytes.Equal(b.HardwareAddr, senderHW) {
		return Finding{}
	}
	bound := b.HardwareAddr

	if g.attackers.Record(senderHW, gw, ifi.Name) {
		slog.Warn("gateway impersonation detected, attacker recorded",
			"interface", ifi.Name,
			"gateway", gw,
			"attacker_ip", senderIP,
			"attacker_hw", senderHW,
		)
	}

	return Finding{
		Kind:        KindImpersonation,
		Trigger:     core.OpRequest,
		Interface:   ifi.Name,
		Gateway:     gw,
		SenderIP:    senderIP,
		SenderHW:    senderHW,
		BoundHW:     bound,
		Invalidated: g.bindings.Invalidate(gw, ifi.Index),
	}
}
