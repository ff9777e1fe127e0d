//go:build linux

package route

import (
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"

	"firestige.xyz/arpguard/internal/core"
)

// Netlink answers route queries from the kernel FIB.
type Netlink struct{}

// NewNetlink creates a kernel-backed route table.
func NewNetlink() (*Netlink, error) {
	return &Netlink{}, nil
}

// Gateway implements Table.
func (n *Netlink) Gateway(ifindex int) (netip.Addr, bool) {
	link, err := netlink.LinkByIndex(ifindex)
	if err != nil {
		return netip.Addr{}, false
	}
	routes, err := netlink.RouteList(link, netlink.FAMILY_V4)
	if err != nil {
		return netip.Addr{}, false
	}
	for _, r := range routes {
		if !isDefault(r.Dst) || r.Gw == nil {
			continue
		}
		if gw, ok := netip.AddrFromSlice(r.Gw.To4()); ok {
			return gw, true
		}
	}
	return netip.Addr{}, false
}

func isDefault(dst *net.IPNet) bool {
	if dst == nil {
		return true
	}
	ones, _ := dst.Mask.Size()
	return ones == 0 && dst.IP.IsUnspecified()
}

// Lookup implements Table.
func (n *Netlink) Lookup(src, dst netip.Addr, ifindex int) (Route, error) {
	routes, err := netlink.RouteGet(net.IP(dst.AsSlice()))
	if err != nil || len(routes) == 0 {
		return Route{}, fmt.Errorf("%w: %s: %v", core.ErrUnreachable, dst, err)
	}
	r := routes[0]
	out := Route{Type: fromKernelType(r.Type), Ifindex: r.LinkIndex}
	if out.Type == core.RouteUnreachable {
		return Route{}, fmt.Errorf("%w: %s", core.ErrUnreachable, dst)
	}
	if r.Gw != nil {
		out.Gateway, _ = netip.AddrFromSlice(r.Gw.To4())
	}
	return out, nil
}

// AddrType implements Table.
func (n *Netlink) AddrType(addr netip.Addr) core.RouteType {
	switch {
	case addr.IsMulticast():
		return core.RouteMulticast
	case addr.IsUnspecified() || addr == limitedBroadcast:
		return core.RouteBroadcast
	}
	routes, err := netlink.RouteGet(net.IP(addr.AsSlice()))
	if err != nil || len(routes) == 0 {
		return core.RouteUnicast
	}
	switch t := fromKernelType(routes[0].Type); t {
	case core.RouteLocal, core.RouteBroadcast, core.RouteMulticast:
		return t
	}
	return core.RouteUnicast
}

func fromKernelType(t int) core.RouteType {
	switch t {
	case unix.RTN_LOCAL:
		return core.RouteLocal
	case unix.RTN_BROADCAST:
		return core.RouteBroadcast
	case unix.RTN_MULTICAST:
		return core.RouteMulticast
	case unix.RTN_UNREACHABLE, unix.RTN_BLACKHOLE, unix.RTN_PROHIBIT:
		return core.RouteUnreachable
	default:
		return core.RouteUnicast
	}
}

// Discover describes the named link from kernel state.
func Discover(name string) (*core.Interface, error) {
	link, err := netlink.LinkByName(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrInterfaceNotFound, name, err)
	}
	attrs := link.Attrs()

	ifi := &core.Interface{
		Name:         attrs.Name,
		Index:        attrs.Index,
		Media:        mediaFromEncap(attrs.EncapType),
		HardwareAddr: attrs.HardwareAddr,
		NoARP:        attrs.RawFlags&unix.IFF_NOARP != 0,
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("list addresses of %s: %w", name, err)
	}
	for _, a := range addrs {
		ip, ok := netip.AddrFromSlice(a.IP.To4())
		if !ok {
			continue
		}
		bits, _ := a.Mask.Size()
		ifi.Addrs = append(ifi.Addrs, core.Address{
			Prefix: netip.PrefixFrom(ip, bits),
			Scope:  core.Scope(a.Scope),
		})
	}
	return ifi, nil
}

func mediaFromEncap(encap string) core.Media {
	switch strings.ToLower(encap) {
	case "ieee802.11", "ieee802":
		return core.MediaIEEE802
	case "fddi":
		return core.MediaFDDI
	case "ax25":
		return core.MediaAX25
	case "netrom":
		return core.MediaNetROM
	case "ieee1394":
		return core.MediaIEEE1394
	case "dlci":
		return core.MediaDLCI
	default:
		return core.MediaEthernet
	}
}
