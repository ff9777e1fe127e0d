package guard

import (
	"bytes"
	"net"
	"net/netip"
	"sync"
	"time"
)

// Attacker is a hardware address proven to impersonate a gateway.
type Attacker struct {
	HardwareAddr net.HardwareAddr
	Gateway      netip.Addr
	Interface    string
	FirstSeen    time.Time
	LastSeen     time.Time
	Hits         uint64
}

// Registry is a bounded, least-recently-seen-evicting set of attackers
// keyed by hardware address.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	entries  []*Attacker // oldest first
	now      func() time.Time
}

// NewRegistry creates a registry holding at most capacity attackers.
func NewRegistry(capacity int) *Registry {
	if capacity < 1 {
		capacity = 1
	}
	return &Registry{capacity: capacity, now: time.Now}
}

func (r *Registry) indexLocked(hw net.HardwareAddr) int {
	for i, a := range r.entries {
		if bytes.Equal(a.HardwareAddr, hw) {
			return i
		}
	}
	return -1
}

// Record adds or refreshes hw, evicting the least recently seen attacker
// when full. It reports whether hw was new.
func (r *Registry) Record(hw net.HardwareAddr, gw netip.Addr, iface string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if i := r.indexLocked(hw); i >= 0 {
		a := r.entries[i]
		a.LastSeen, a.Gateway, a.Interface = now, gw, iface
		a.Hits++
		r.entries = append(append(r.entries[:i], r.entries[i+1:]...), a)
		return false
	}

	if len(r.entries) >= r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity+1:]
	}
	r.entries = append(r.entries, &Attacker{
		HardwareAddr: append(net.HardwareAddr(nil), hw...),
		Gateway:      gw,
		Interface:    iface,
		FirstSeen:    now,
		LastSeen:     now,
		Hits:         1,
	})
	return true
}

// Seen counts another claim from a recorded attacker. It reports whether hw
// is recorded.
func (r *Registry) Seen(hw net.HardwareAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(hw)
	if i < 0 {
		return false
	}
	a := r.entries[i]
	a.LastSeen = r.now()
	a.Hits++
	r.entries = append(append(r.entries[:i], r.entries[i+1:]...), a)
	return true
}

// Contains reports whether hw is recorded.
func (r *Registry) Contains(hw net.HardwareAddr) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.indexLocked(hw) >= 0
}

// Forget removes hw.
func (r *Registry) Forget(hw net.HardwareAddr) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := r.indexLocked(hw)
	if i < 0 {
		return false
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	return true
}

// Clear removes every attacker and returns how many there were.
func (r *Registry) Clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.entries)
	r.entries = nil
	return n
}

// Resize changes the capacity, evicting the oldest entries if needed.
func (r *Registry) Resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capacity = capacity
	if len(r.entries) > capacity {
		r.entries = r.entries[len(r.entries)-capacity:]
	}
}

// List returns copies of the recorded attackers, most recent last.
func (r *Registry) List() []Attacker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Attacker, len(r.entries))
	for i, a := range r.entries {
		out[i] = *a
		out[i].HardwareAddr = append(net.HardwareAddr(nil), a.HardwareAddr...)
	}
	return out
}

// Len returns the number of recorded attackers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
