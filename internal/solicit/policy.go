// Package solicit decides how the engine probes for an unresolved binding:
// which source address to announce, where to send the request, and when to
// give up on the wire and hand the binding to the application.
package solicit

import (
	"fmt"
	"net"
	"net/netip"

	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/core/codec"
	"firestige.xyz/arpguard/internal/neigh"
)

// Announce modes, as configured by arp_announce.
const (
	AnnounceAny     = 0
	AnnounceSubnet  = 1
	AnnouncePrimary = 2
)

// Phase is the kind of solicitation a probe count maps to.
type Phase uint8

const (
	PhaseUnicast Phase = iota
	PhaseBroadcast
	PhaseNotify
	PhaseExhausted
)

func (p Phase) String() string {
	switch p {
	case PhaseUnicast:
		return "unicast"
	case PhaseBroadcast:
		return "broadcast"
	case PhaseNotify:
		return "notify"
	default:
		return "exhausted"
	}
}

// Solicitation is one probing step. Payload and Dest are set only for the
// unicast and broadcast phases.
type Solicitation struct {
	Phase   Phase
	Probe   int
	Iface   string
	Source  netip.Addr
	Target  netip.Addr
	Dest    net.HardwareAddr
	Payload []byte
}

// AddrTypes classifies addresses from the local routing point of view.
type AddrTypes interface {
	AddrType(addr netip.Addr) core.RouteType
}

// Policy chooses source addresses and probe phases.
type Policy struct {
	addrTypes AddrTypes
	bindings  *neigh.Table
}

// NewPolicy creates a solicitation policy.
func NewPolicy(addrTypes AddrTypes, bindings *neigh.Table) *Policy {
	return &Policy{addrTypes: addrTypes, bindings: bindings}
}

// Source picks the sender protocol address for a request for target.
// trigger is the source address of the packet that caused the solicitation,
// or the zero Addr when there is none.
func (p *Policy) Source(ifi *core.Interface, announce int, target, trigger netip.Addr) (netip.Addr, bool) {
	if trigger.IsValid() && p.addrTypes.AddrType(trigger) == core.RouteLocal {
		switch announce {
		case AnnounceAny:
			return trigger, true
		case AnnounceSubnet:
			if ifi.OnLink(target, trigger) {
				return trigger, true
			}
		}
	}
	return ifi.SelectAddr(target, core.ScopeLink)
}

// PhaseFor maps the number of probes already sent to a phase. The unicast
// phase needs a usable hardware hint; without one it broadcasts instead.
func PhaseFor(probes int, params neigh.Params, haveHint bool) Phase {
	switch {
	case probes < params.UcastProbes:
		if haveHint {
			return PhaseUnicast
		}
		return PhaseBroadcast
	case probes < params.UcastProbes+params.McastProbes:
		return PhaseBroadcast
	case probes < params.UcastProbes+params.McastProbes+params.AppProbes:
		return PhaseNotify
	default:
		return PhaseExhausted
	}
}

// Next counts a probe for target on ifi and returns what to do with it.
// When the budget is exhausted the binding is moved to FAILED.
func (p *Policy) Next(ifi *core.Interface, announce int, target, trigger netip.Addr) (Solicitation, error) {
	e := p.bindings.LookupOrCreate(target, ifi.Index)
	n, hint := p.bindings.NextProbe(e)

	s := Solicitation{
		Phase:  PhaseFor(n, p.bindings.Params(), hint != nil),
		Probe:  n,
		Iface:  ifi.Name,
		Target: target,
	}

	switch s.Phase {
	case PhaseExhausted:
		if err := p.bindings.Update(e, nil, core.StateFailed, neigh.FlagOverride); err != nil {
			return s, fmt.Errorf("fail binding %s: %w", target, err)
		}
		return s, nil
	case PhaseNotify:
		return s, nil
	case PhaseUnicast:
		s.Dest = hint
	default:
		s.Dest = ifi.BroadcastAddr()
	}

	src, ok := p.Source(ifi, announce, target, trigger)
	if !ok {
		return s, fmt.Errorf("%w: no source address on %s for %s", core.ErrUnreachable, ifi.Name, target)
	}
	s.Source = src

	payload, err := codec.Encode(core.OpRequest, src, target, nil, nil, ifi)
	if err != nil {
		return s, err
	}
	s.Payload = payload
	return s, nil
}
