package engine

import (
	"net"

	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/core/codec"
	"firestige.xyz/arpguard/internal/guard"
)

// Verdict tells the transport what to do with the inbound frame.
type Verdict uint8

const (
	// Accept consumes the frame.
	Accept Verdict = iota
	// Drop discards the frame.
	Drop
)

func (v Verdict) String() string {
	if v == Drop {
		return "drop"
	}
	return "accept"
}

// Reason names the stage that decided a packet's fate.
type Reason string

const (
	ReasonUnknownInterface Reason = "unknown_interface"
	ReasonFiltered         Reason = "filtered"
	ReasonMalformed        Reason = "malformed"
	ReasonMartian          Reason = "martian"
	ReasonGratuitous       Reason = "gratuitous"
	ReasonDHCPProbe        Reason = "dhcp_probe"
	ReasonGuard            Reason = "guard"
	ReasonIgnored          Reason = "ignored"
	ReasonReplied          Reason = "replied"
	ReasonProxyDisabled    Reason = "proxy_disabled"
	ReasonProxied          Reason = "proxied"
	ReasonProxyDeferred    Reason = "proxy_deferred"
	ReasonProxyQueueFull   Reason = "proxy_queue_full"
	ReasonUpdated          Reason = "updated"
	ReasonLocked           Reason = "locked"
	ReasonNoBinding        Reason = "no_binding"
	ReasonReplyFailed      Reason = "reply_failed"
)

// Reply is an ARP message the transport must send.
type Reply struct {
	Ifindex int
	Dest    net.HardwareAddr
	Payload []byte
}

// Decision is the outcome of processing one inbound packet.
type Decision struct {
	Verdict  Verdict
	Reason   Reason
	Iface    string
	Packet   codec.Packet
	Replies  []Reply
	Deferred bool
	Findings []guard.Finding
}

// Detected reports whether the guard flagged the packet.
func (d Decision) Detected() bool {
	for _, f := range d.Findings {
		if f.Detected() {
			return true
		}
	}
	return false
}

// Inbound is a received ARP message.
type Inbound struct {
	Payload    []byte
	Ifindex    int
	PacketType core.PacketType
	// LocallyEnqueued marks a request replayed from the proxy queue.
	LocallyEnqueued bool
}
