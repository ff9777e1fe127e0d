package core

import (
	"bytes"
	"net"
	"net/netip"
	"sort"
	"sync"
)

// Address is an IPv4 address configured on an interface.
type Address struct {
	Prefix netip.Prefix
	Scope  Scope
}

// Interface describes a network interface the engine serves.
// The first entry of Addrs is the primary address.
type Interface struct {
	Name         string
	Index        int
	Media        Media
	HardwareAddr net.HardwareAddr
	Broadcast    net.HardwareAddr
	Addrs        []Address
	NoARP        bool
}

// AddrLen is the hardware address length of the interface.
func (i *Interface) AddrLen() int {
	return len(i.HardwareAddr)
}

// BroadcastAddr returns the link broadcast address, all ones when unset.
func (i *Interface) BroadcastAddr() net.HardwareAddr {
	if len(i.Broadcast) == i.AddrLen() && i.AddrLen() > 0 {
		return i.Broadcast
	}
	return bytes.Repeat([]byte{0xff}, i.AddrLen())
}

// Owns reports whether addr is configured on the interface.
func (i *Interface) Owns(addr netip.Addr) bool {
	for _, a := range i.Addrs {
		if a.Prefix.Addr() == addr {
			return true
		}
	}
	return false
}

// Primary returns the primary address of the interface.
func (i *Interface) Primary() (netip.Addr, bool) {
	if len(i.Addrs) == 0 {
		return netip.Addr{}, false
	}
	return i.Addrs[0].Prefix.Addr(), true
}

// OnLink reports whether a and b share a subnet configured on the interface.
// An invalid b only requires a to be on-link.
func (i *Interface) OnLink(a, b netip.Addr) bool {
	for _, ad := range i.Addrs {
		p := ad.Prefix.Masked()
		if p.Contains(a) && (!b.IsValid() || p.Contains(b)) {
			return true
		}
	}
	return false
}

// ConfirmAddr reports whether local is configured on the interface with a
// scope no wider than scope and, when src is given, src lies in its subnet.
func (i *Interface) ConfirmAddr(src, local netip.Addr, scope Scope) bool {
	for _, a := range i.Addrs {
		if a.Prefix.Addr() != local || a.Scope > scope {
			continue
		}
		if !src.IsValid() || src.IsUnspecified() || a.Prefix.Masked().Contains(src) {
			return true
		}
	}
	return false
}

// SelectAddr picks a source address for talking to dst, preferring an
// address on the same subnet and falling back to the first address whose
// scope is no wider than scope.
func (i *Interface) SelectAddr(dst netip.Addr, scope Scope) (netip.Addr, bool) {
	var fallback netip.Addr
	for _, a := range i.Addrs {
		if a.Scope > scope {
			continue
		}
		if dst.IsValid() && a.Prefix.Masked().Contains(dst) {
			return a.Prefix.Addr(), true
		}
		if !fallback.IsValid() {
			fallback = a.Prefix.Addr()
		}
	}
	return fallback, fallback.IsValid()
}

// IsZeroHardwareAddr reports whether hw is empty or all zeros.
func IsZeroHardwareAddr(hw net.HardwareAddr) bool {
	for _, b := range hw {
		if b != 0 {
			return false
		}
	}
	return true
}

// Interfaces is the set of interfaces served by the daemon.
type Interfaces struct {
	mu      sync.RWMutex
	byIndex map[int]*Interface
	byName  map[string]*Interface
}

// NewInterfaces creates a set holding ifis.
func NewInterfaces(ifis ...*Interface) *Interfaces {
	s := &Interfaces{
		byIndex: make(map[int]*Interface),
		byName:  make(map[string]*Interface),
	}
	for _, ifi := range ifis {
		s.Add(ifi)
	}
	return s
}

// Add registers ifi, replacing an interface with the same index or name.
func (s *Interfaces) Add(ifi *Interface) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byIndex[ifi.Index]; ok {
		delete(s.byName, old.Name)
	}
	if old, ok := s.byName[ifi.Name]; ok {
		delete(s.byIndex, old.Index)
	}
	s.byIndex[ifi.Index] = ifi
	s.byName[ifi.Name] = ifi
}

// ByIndex returns the interface with the given index.
func (s *Interfaces) ByIndex(index int) (*Interface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ifi, ok := s.byIndex[index]
	return ifi, ok
}

// ByName returns the named interface.
func (s *Interfaces) ByName(name string) (*Interface, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ifi, ok := s.byName[name]
	return ifi, ok
}

// List returns the interfaces ordered by index.
func (s *Interfaces) List() []*Interface {
	s.mu.RLock()
	out := make([]*Interface, 0, len(s.byIndex))
	for _, ifi := range s.byIndex {
		out = append(out, ifi)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}
