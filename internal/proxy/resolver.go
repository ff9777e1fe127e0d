// Package proxy decides when the engine answers requests on behalf of other
// hosts, and holds proxy replies that must wait out a random delay.
package proxy

import (
	"net/netip"

	"firestige.xyz/arpguard/internal/config"
)

// Grant names the rule that authorized a proxy reply.
type Grant uint8

const (
	GrantNone Grant = iota
	GrantMedium
	GrantPrivateVLAN
	GrantTable
)

func (g Grant) String() string {
	switch g {
	case GrantMedium:
		return "medium"
	case GrantPrivateVLAN:
		return "private_vlan"
	case GrantTable:
		return "table"
	default:
		return "none"
	}
}

// Granted reports whether a proxy reply is allowed.
func (g Grant) Granted() bool {
	return g != GrantNone
}

// Request describes a request whose target routes through OutIfindex.
// Out is only meaningful when OutKnown is set.
type Request struct {
	Ifindex    int
	In         config.InterfaceSettings
	OutIfindex int
	Out        config.InterfaceSettings
	OutKnown   bool
	SenderIP   netip.Addr
	TargetIP   netip.Addr
}

// Resolver evaluates proxy grants against the static proxy table.
type Resolver struct {
	table *Table
}

// NewResolver creates a resolver.
func NewResolver(table *Table) *Resolver {
	return &Resolver{table: table}
}

// Table returns the static proxy table.
func (r *Resolver) Table() *Table {
	return r.table
}

// Authorize returns the first grant that allows answering req.
func (r *Resolver) Authorize(req Request) Grant {
	switch {
	case mediumAllows(req):
		return GrantMedium
	case privateVLANAllows(req):
		return GrantPrivateVLAN
	case req.OutIfindex != req.Ifindex && r.table.Lookup(req.TargetIP, req.Ifindex):
		return GrantTable
	}
	return GrantNone
}

// mediumAllows proxies between interfaces attached to different media.
// A medium id of 0 always proxies and -1 never does.
func mediumAllows(req Request) bool {
	if req.OutIfindex == req.Ifindex || !req.In.ProxyARP {
		return false
	}
	in := req.In.MediumID
	switch in {
	case 0:
		return true
	case -1:
		return false
	}
	out := -1
	if req.OutKnown {
		out = req.Out.MediumID
	}
	return out != in && out != -1
}

// privateVLANAllows answers hosts on the same isolated segment (RFC 3069).
func privateVLANAllows(req Request) bool {
	if req.OutIfindex != req.Ifindex || req.SenderIP == req.TargetIP {
		return false
	}
	return req.In.ProxyARPPVLAN
}
