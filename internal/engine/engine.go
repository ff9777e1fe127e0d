// Package engine classifies inbound ARP messages and decides, for each one,
// whether to answer, proxy, update the binding cache or drop it.
//
// Processing is a short transaction over one packet: every stage reads the
// same configuration snapshot and the result is returned as a Decision. The
// engine never transmits; the transport sends Decision.Replies.
package engine

import (
	"errors"
	"log/slog"
	"net"
	"net/netip"

	"firestige.xyz/arpguard/internal/config"
	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/core/codec"
	"firestige.xyz/arpguard/internal/guard"
	"firestige.xyz/arpguard/internal/neigh"
	"firestige.xyz/arpguard/internal/proxy"
	"firestige.xyz/arpguard/internal/route"
)

// Version identifies the engine build. Set with -ldflags at release time.
var Version = "0.1.0"

// Engine is the resolution decision engine.
type Engine struct {
	ifaces   *core.Interfaces
	routes   route.Table
	bindings *neigh.Table
	guard    *guard.Guard
	proxy    *proxy.Resolver
	queue    *proxy.Queue
	store    *config.Store
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Interfaces *core.Interfaces
	Routes     route.Table
	Bindings   *neigh.Table
	Guard      *guard.Guard
	Proxy      *proxy.Resolver
	Queue      *proxy.Queue
	Config     *config.Store
}

// New creates an engine.
func New(d Deps) *Engine {
	return &Engine{
		ifaces:   d.Interfaces,
		routes:   d.Routes,
		bindings: d.Bindings,
		guard:    d.Guard,
		proxy:    d.Proxy,
		queue:    d.Queue,
		store:    d.Config,
	}
}

// txn carries one packet through the stages.
type txn struct {
	*Engine
	rt  *config.Runtime
	set config.InterfaceSettings
	ifi *core.Interface
	in  Inbound
	pkt codec.Packet
	sha net.HardwareAddr
	d   Decision
}

// Process runs the pipeline for one inbound message.
func (e *Engine) Process(in Inbound) Decision {
	ifi, ok := e.ifaces.ByIndex(in.Ifindex)
	if !ok {
		return Decision{Verdict: Drop, Reason: ReasonUnknownInterface}
	}
	if ifi.NoARP || in.PacketType == core.PacketOtherHost || in.PacketType == core.PacketOutgoing {
		return Decision{Verdict: Drop, Reason: ReasonFiltered, Iface: ifi.Name}
	}

	pkt, err := codec.Decode(in.Payload, ifi)
	if err != nil {
		slog.Debug("dropping malformed arp packet", "interface", ifi.Name, "error", err)
		return Decision{Verdict: Drop, Reason: ReasonMalformed, Iface: ifi.Name}
	}

	rt := e.store.Load()
	t := &txn{
		Engine: e,
		rt:     rt,
		set:    rt.For(ifi.Name),
		ifi:    ifi,
		in:     in,
		pkt:    pkt,
		sha:    pkt.SenderHW,
		d:      Decision{Iface: ifi.Name, Packet: pkt},
	}
	if rt.Guard.Verbose {
		t.logPacket()
	}

	t.run()

	slog.Debug("arp decision",
		"interface", ifi.Name,
		"op", pkt.Operation,
		"sender_ip", pkt.SenderIP,
		"target_ip", pkt.TargetIP,
		"verdict", t.d.Verdict,
		"reason", t.d.Reason,
		"replies", len(t.d.Replies))
	return t.d
}

func (t *txn) logPacket() {
	slog.Info("arp packet",
		"interface", t.ifi.Name,
		"media", t.ifi.Media,
		"op", t.pkt.Operation,
		"hrd", t.pkt.HardwareType,
		"pro", t.pkt.ProtocolType,
		"sender_hw", t.pkt.SenderHW,
		"sender_ip", t.pkt.SenderIP,
		"target_hw", t.pkt.TargetHW,
		"target_ip", t.pkt.TargetIP,
		"packet_type", t.in.PacketType,
		"locally_enqueued", t.in.LocallyEnqueued)
}

func (t *txn) finish(v Verdict, r Reason) bool {
	t.d.Verdict, t.d.Reason = v, r
	return true
}

// run executes the stages in order until one of them settles the packet.
func (t *txn) run() {
	stages := []func() bool{
		t.sanity,
		t.dhcpProbe,
		t.requestToGateway,
		t.request,
		t.requestGuard,
		t.replyGuard,
	}
	for _, stage := range stages {
		if stage() {
			return
		}
	}
	t.update()
}

// sanity drops requests for multicast or loopback targets and, when the
// interface refuses them, gratuitous announcements.
func (t *txn) sanity() bool {
	tip := t.pkt.TargetIP
	if tip.IsMulticast() || (!t.set.RouteLocalnet && tip.IsLoopback()) {
		return t.finish(Drop, ReasonMartian)
	}
	if t.pkt.SenderIP == tip && t.set.DropGratuitous {
		return t.finish(Drop, ReasonGratuitous)
	}
	if t.ifi.Media == core.MediaDLCI {
		t.sha = t.ifi.BroadcastAddr()
	}
	return false
}

// dhcpProbe answers duplicate address detection probes (sender 0.0.0.0)
// for local addresses without learning anything from them.
func (t *txn) dhcpProbe() bool {
	if !t.pkt.SenderIP.IsUnspecified() {
		return false
	}
	t.d.Reason = ReasonDHCPProbe
	if t.pkt.Operation == core.OpRequest &&
		t.routes.AddrType(t.pkt.TargetIP) == core.RouteLocal &&
		!t.ignore() {
		t.reply()
	}
	return t.finish(Accept, t.d.Reason)
}

// requestToGateway looks for the poisoned gateway binding asking for the
// gateway itself.
func (t *txn) requestToGateway() bool {
	if !t.rt.Guard.Enabled || t.pkt.Operation != core.OpRequest {
		return false
	}
	f := t.guard.CheckRequestToGateway(t.ifi, t.pkt.TargetIP, t.pkt.SenderIP, t.sha)
	if !f.Detected() {
		return false
	}
	t.d.Findings = append(t.d.Findings, f)
	return t.finish(Drop, ReasonGuard)
}

// request handles requests for local addresses and proxied addresses.
func (t *txn) request() bool {
	if t.pkt.Operation != core.OpRequest {
		return false
	}
	r, err := t.routes.Lookup(t.pkt.SenderIP, t.pkt.TargetIP, t.ifi.Index)
	if err != nil {
		return false
	}

	if r.Type == core.RouteLocal {
		return t.requestLocal()
	}
	if t.set.Forwarding {
		return t.requestProxy(r)
	}
	return false
}

func (t *txn) requestLocal() bool {
	if t.ignore() || (t.set.ArpFilter && t.filter()) {
		return t.finish(Accept, ReasonIgnored)
	}
	if t.rt.Guard.Enabled && t.rt.Guard.IgnoreGatewayUpdateOnRequest && t.checkGatewayUpdate() {
		return t.finish(Drop, ReasonGuard)
	}
	t.bindings.Event(t.pkt.SenderIP, t.ifi.Index, t.sha)
	t.d.Reason = ReasonReplied
	t.reply()
	return t.finish(Accept, t.d.Reason)
}

func (t *txn) requestProxy(r route.Route) bool {
	if t.rt.Guard.Enabled && t.rt.Guard.IgnoreProxyARP {
		return t.finish(Drop, ReasonProxyDisabled)
	}
	if r.Type != core.RouteUnicast {
		return false
	}

	req := proxy.Request{
		Ifindex:    t.ifi.Index,
		In:         t.set,
		OutIfindex: r.Ifindex,
		SenderIP:   t.pkt.SenderIP,
		TargetIP:   t.pkt.TargetIP,
	}
	if out, ok := t.ifaces.ByIndex(r.Ifindex); ok {
		req.Out, req.OutKnown = t.rt.For(out.Name), true
	}
	if !t.proxy.Authorize(req).Granted() {
		return false
	}

	t.bindings.Event(t.pkt.SenderIP, t.ifi.Index, t.sha)

	if t.in.LocallyEnqueued || t.in.PacketType == core.PacketHost || t.set.ProxyDelay == 0 {
		t.d.Reason = ReasonProxied
		t.reply()
		return t.finish(Accept, t.d.Reason)
	}

	err := t.queue.Enqueue(proxy.Pending{
		Payload:    t.in.Payload,
		Interface:  t.ifi.Name,
		Ifindex:    t.ifi.Index,
		PacketType: t.in.PacketType,
	}, t.set.ProxyDelay)
	if errors.Is(err, core.ErrQueueFull) {
		return t.finish(Drop, ReasonProxyQueueFull)
	}
	t.d.Deferred = true
	return t.finish(Accept, ReasonProxyDeferred)
}

// requestGuard vets requests that were not answered but would still update
// the sender's binding, such as announcements from the gateway address.
func (t *txn) requestGuard() bool {
	if t.pkt.Operation != core.OpRequest ||
		!t.rt.Guard.Enabled || !t.rt.Guard.IgnoreGatewayUpdateOnRequest {
		return false
	}
	if t.checkGatewayUpdate() {
		return t.finish(Drop, ReasonGuard)
	}
	return false
}

// replyGuard vets replies claiming the gateway address.
func (t *txn) replyGuard() bool {
	if t.pkt.Operation != core.OpReply ||
		!t.rt.Guard.Enabled || !t.rt.Guard.IgnoreGatewayUpdateOnReply {
		return false
	}
	if t.checkGatewayUpdate() {
		return t.finish(Drop, ReasonGuard)
	}
	return false
}

func (t *txn) checkGatewayUpdate() bool {
	f := t.guard.CheckGatewayUpdate(t.ifi, t.pkt.Operation, t.pkt.SenderIP, t.sha)
	if !f.Detected() {
		return false
	}
	slog.Warn("gateway update refused",
		"interface", t.ifi.Name,
		"kind", f.Kind,
		"trigger", f.Trigger,
		"gateway", f.Gateway,
		"sender_hw", f.SenderHW,
		"bound_hw", f.BoundHW)
	t.d.Findings = append(t.d.Findings, f)
	return true
}

// update applies what the packet tells about its sender to the cache.
func (t *txn) update() {
	sip := t.pkt.SenderIP
	entry, ok := t.bindings.Lookup(sip, t.ifi.Index)

	garp := false
	if t.set.ArpAccept {
		unicast := t.routes.AddrType(sip) == core.RouteUnicast
		garp = t.pkt.Operation == core.OpRequest && t.pkt.TargetIP == sip && unicast
		if !ok && ((t.pkt.Operation == core.OpReply && unicast) || garp) {
			entry, ok = t.bindings.LookupOrCreate(sip, t.ifi.Index), true
		}
	}
	if !ok {
		t.finish(Accept, ReasonNoBinding)
		return
	}

	state := core.StateReachable
	if t.pkt.Operation != core.OpReply || t.in.PacketType != core.PacketHost {
		state = core.StateStale
	}
	var flags neigh.Flags
	if t.bindings.Overridable(entry) || garp {
		flags |= neigh.FlagOverride
	}

	switch err := t.bindings.Update(entry, t.sha, state, flags); {
	case err == nil:
		t.finish(Accept, ReasonUpdated)
	case errors.Is(err, core.ErrBindingLocked):
		t.finish(Accept, ReasonLocked)
	default:
		slog.Debug("binding not updated", "interface", t.ifi.Name, "addr", sip, "error", err)
		t.finish(Accept, ReasonNoBinding)
	}
}

// reply answers the request with the interface's own hardware address.
func (t *txn) reply() {
	payload, err := codec.Encode(core.OpReply, t.pkt.TargetIP, t.pkt.SenderIP, nil, t.sha, t.ifi)
	if err != nil {
		slog.Error("failed to build arp reply", "interface", t.ifi.Name, "target_ip", t.pkt.TargetIP, "error", err)
		t.d.Reason = ReasonReplyFailed
		return
	}
	t.d.Replies = append(t.d.Replies, Reply{Ifindex: t.ifi.Index, Dest: t.sha, Payload: payload})
}

// ignore applies arp_ignore to a request for the local target address.
func (t *txn) ignore() bool {
	sip, tip := t.pkt.SenderIP, t.pkt.TargetIP
	var scope core.Scope
	switch t.set.ArpIgnore {
	case 1:
		sip, scope = netip.Addr{}, core.ScopeHost
	case 2:
		scope = core.ScopeHost
	case 3:
		sip, scope = netip.Addr{}, core.ScopeLink
	case 8:
		return true
	default:
		return false
	}
	return !t.ifi.ConfirmAddr(sip, tip, scope)
}

// filter applies arp_filter: the reply must leave through the interface the
// request arrived on.
func (t *txn) filter() bool {
	r, err := t.routes.Lookup(t.pkt.TargetIP, t.pkt.SenderIP, 0)
	return err != nil || r.Ifindex != t.ifi.Index
}
