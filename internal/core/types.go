package core

import (
	"fmt"
	"strings"
)

// Operation is the ARP opcode.
type Operation uint16

const (
	OpRequest Operation = 1
	OpReply   Operation = 2
)

func (o Operation) String() string {
	switch o {
	case OpRequest:
		return "request"
	case OpReply:
		return "reply"
	default:
		return fmt.Sprintf("op(%d)", uint16(o))
	}
}

// Media is the link type of an interface, numbered like ARPHRD_*.
type Media uint16

const (
	MediaNetROM   Media = 0
	MediaEthernet Media = 1
	MediaAX25     Media = 3
	MediaIEEE802  Media = 6
	MediaDLCI     Media = 15
	MediaIEEE1394 Media = 24
	MediaFDDI     Media = 774
)

var mediaNames = map[Media]string{
	MediaNetROM:   "netrom",
	MediaEthernet: "ethernet",
	MediaAX25:     "ax25",
	MediaIEEE802:  "ieee802",
	MediaDLCI:     "dlci",
	MediaIEEE1394: "ieee1394",
	MediaFDDI:     "fddi",
}

func (m Media) String() string {
	if name, ok := mediaNames[m]; ok {
		return name
	}
	return fmt.Sprintf("media(%d)", uint16(m))
}

// ParseMedia converts a configured media name to its Media value.
// An empty name means Ethernet.
func ParseMedia(name string) (Media, error) {
	if name == "" {
		return MediaEthernet, nil
	}
	for m, n := range mediaNames {
		if strings.EqualFold(n, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown media %q", ErrConfigInvalid, name)
}

// State is the state of a binding in the neighbor cache.
type State uint8

const (
	StateUnresolved State = iota
	StateStale
	StateReachable
	StatePermanent
	StateFailed
	StateNoARP
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "UNRESOLVED"
	case StateStale:
		return "STALE"
	case StateReachable:
		return "REACHABLE"
	case StatePermanent:
		return "PERMANENT"
	case StateFailed:
		return "FAILED"
	case StateNoARP:
		return "NOARP"
	default:
		return fmt.Sprintf("STATE(%d)", uint8(s))
	}
}

// Valid reports whether a binding in this state carries a usable hardware address.
func (s State) Valid() bool {
	switch s {
	case StatePermanent, StateNoARP, StateReachable, StateStale:
		return true
	}
	return false
}

// Connected reports whether the state asserts reachability.
func (s State) Connected() bool {
	switch s {
	case StatePermanent, StateNoARP, StateReachable:
		return true
	}
	return false
}

// RouteType classifies a route lookup result.
type RouteType uint8

const (
	RouteUnicast RouteType = iota + 1
	RouteLocal
	RouteBroadcast
	RouteMulticast
	RouteUnreachable
)

func (t RouteType) String() string {
	switch t {
	case RouteUnicast:
		return "unicast"
	case RouteLocal:
		return "local"
	case RouteBroadcast:
		return "broadcast"
	case RouteMulticast:
		return "multicast"
	case RouteUnreachable:
		return "unreachable"
	default:
		return "unspec"
	}
}

// PacketType tells how a frame reached the interface.
type PacketType uint8

const (
	PacketHost PacketType = iota
	PacketBroadcast
	PacketMulticast
	PacketOtherHost
	PacketOutgoing
)

func (p PacketType) String() string {
	switch p {
	case PacketHost:
		return "host"
	case PacketBroadcast:
		return "broadcast"
	case PacketMulticast:
		return "multicast"
	case PacketOtherHost:
		return "otherhost"
	case PacketOutgoing:
		return "outgoing"
	default:
		return "unknown"
	}
}

// Scope is an address scope, ordered like RT_SCOPE_*.
type Scope uint8

const (
	ScopeUniverse Scope = 0
	ScopeLink     Scope = 253
	ScopeHost     Scope = 254
)
