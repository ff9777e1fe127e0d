//go:build !linux

package route

import (
	"errors"
	"net/netip"

	"firestige.xyz/arpguard/internal/core"
)

var errNetlinkUnsupported = errors.New("arpguard: netlink route table requires linux")

// Netlink is unavailable off Linux.
type Netlink struct{}

// NewNetlink always fails off Linux.
func NewNetlink() (*Netlink, error) {
	return nil, errNetlinkUnsupported
}

func (n *Netlink) Gateway(int) (netip.Addr, bool) { return netip.Addr{}, false }

func (n *Netlink) Lookup(_, dst netip.Addr, _ int) (Route, error) {
	return Route{}, core.ErrUnreachable
}

func (n *Netlink) AddrType(netip.Addr) core.RouteType { return core.RouteUnicast }

// Discover always fails off Linux.
func Discover(name string) (*core.Interface, error) {
	return nil, errNetlinkUnsupported
}
