// Package neigh implements the IPv4 neighbor binding cache.
//
// Entries are stored in a go-cache keyed by interface index and address.
// Each entry carries its own mutex, so read-modify-write of a binding is
// linearizable per key while unrelated bindings update concurrently.
package neigh

import (
	"bytes"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"firestige.xyz/arpguard/internal/core"
)

// Flags modify how Update treats an existing binding.
type Flags uint8

const (
	// FlagOverride allows replacing a valid hardware address.
	FlagOverride Flags = 1 << iota
	// FlagAdmin allows modifying PERMANENT and NOARP bindings.
	FlagAdmin
)

// Params are the cache timing and probing parameters.
type Params struct {
	LockTime    time.Duration
	GCStaleTime time.Duration
	RetransTime time.Duration
	UcastProbes int
	McastProbes int
	AppProbes   int
}

// DefaultParams mirror the classic IPv4 ARP table defaults.
func DefaultParams() Params {
	return Params{
		LockTime:    time.Second,
		GCStaleTime: 60 * time.Second,
		RetransTime: time.Second,
		UcastProbes: 3,
		McastProbes: 3,
	}
}

// Binding is a point-in-time copy of an entry.
type Binding struct {
	Addr         netip.Addr
	Ifindex      int
	HardwareAddr net.HardwareAddr
	State        core.State
	Updated      time.Time
	Confirmed    time.Time
	Probes       int
}

// Entry is a live binding. Access its fields through Table methods.
type Entry struct {
	mu        sync.Mutex
	addr      netip.Addr
	ifindex   int
	hw        net.HardwareAddr
	state     core.State
	updated   time.Time
	confirmed time.Time
	probes    int
}

// Snapshot copies the entry under its lock.
func (e *Entry) Snapshot() Binding {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Entry) snapshotLocked() Binding {
	return Binding{
		Addr:         e.addr,
		Ifindex:      e.ifindex,
		HardwareAddr: append(net.HardwareAddr(nil), e.hw...),
		State:        e.state,
		Updated:      e.updated,
		Confirmed:    e.confirmed,
		Probes:       e.probes,
	}
}

// Table is the binding cache.
type Table struct {
	params Params
	items  *cache.Cache
	now    func() time.Time
}

// Option configures a Table.
type Option func(*Table)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Table) { t.now = now }
}

// New creates a binding cache. Dynamic entries expire after GCStaleTime
// without an update.
func New(p Params, opts ...Option) *Table {
	if p.GCStaleTime <= 0 {
		p.GCStaleTime = DefaultParams().GCStaleTime
	}
	t := &Table{
		params: p,
		items:  cache.New(p.GCStaleTime, p.GCStaleTime/2),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Params returns the table parameters.
func (t *Table) Params() Params {
	return t.params
}

func key(addr netip.Addr, ifindex int) string {
	return fmt.Sprintf("%d/%s", ifindex, addr)
}

func (t *Table) expiration(state core.State) time.Duration {
	if state == core.StatePermanent || state == core.StateNoARP {
		return cache.NoExpiration
	}
	return cache.DefaultExpiration
}

// touch re-arms the expiry of e. Caller holds e.mu.
func (t *Table) touch(e *Entry) {
	t.items.Set(key(e.addr, e.ifindex), e, t.expiration(e.state))
}

// Lookup returns the entry for addr on ifindex.
func (t *Table) Lookup(addr netip.Addr, ifindex int) (*Entry, bool) {
	v, ok := t.items.Get(key(addr, ifindex))
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// Get returns a snapshot of the binding for addr on ifindex.
func (t *Table) Get(addr netip.Addr, ifindex int) (Binding, bool) {
	e, ok := t.Lookup(addr, ifindex)
	if !ok {
		return Binding{}, false
	}
	return e.Snapshot(), true
}

// LookupOrCreate returns the entry for addr, creating an UNRESOLVED one.
func (t *Table) LookupOrCreate(addr netip.Addr, ifindex int) *Entry {
	k := key(addr, ifindex)
	for {
		if v, ok := t.items.Get(k); ok {
			return v.(*Entry)
		}
		e := &Entry{addr: addr, ifindex: ifindex, state: core.StateUnresolved, updated: t.now()}
		if err := t.items.Add(k, e, cache.DefaultExpiration); err == nil {
			return e
		}
	}
}

// Update applies a new hardware address and state to e.
//
// A nil hw keeps the current address. A valid entry holding a different
// address is only replaced when FlagOverride is set; otherwise the update
// time is refreshed and ErrBindingLocked is returned.
func (t *Table) Update(e *Entry, hw net.HardwareAddr, state core.State, flags Flags) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	old := e.state
	if flags&FlagAdmin == 0 && (old == core.StatePermanent || old == core.StateNoARP) {
		return core.ErrBindingPermanent
	}

	now := t.now()
	if !state.Valid() {
		e.state = state
		e.updated = now
		t.touch(e)
		return nil
	}

	if hw == nil {
		if !old.Valid() {
			return core.ErrNoHardwareAddr
		}
		hw = e.hw
	}

	if state.Connected() {
		e.confirmed = now
	}
	e.updated = now

	same := bytes.Equal(hw, e.hw)
	if old.Valid() {
		if !same && flags&FlagOverride == 0 {
			t.touch(e)
			return core.ErrBindingLocked
		}
		if same && state == core.StateStale && old.Connected() {
			state = old
		}
	}

	e.state = state
	if state.Connected() {
		e.probes = 0
	}
	if !same {
		e.hw = append(net.HardwareAddr(nil), hw...)
	}
	t.touch(e)
	return nil
}

// Event records an address pair seen in a request: the sender's binding is
// created if needed and moved to STALE with override.
func (t *Table) Event(addr netip.Addr, ifindex int, hw net.HardwareAddr) *Entry {
	e := t.LookupOrCreate(addr, ifindex)
	_ = t.Update(e, hw, core.StateStale, FlagOverride)
	return e
}

// Overridable reports whether the lock time of e has elapsed.
func (t *Table) Overridable(e *Entry) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return t.now().Sub(e.updated) > t.params.LockTime
}

// Invalidate forces the binding for addr into FAILED and drops its hardware
// address. NOARP and PERMANENT bindings are left alone. It reports whether a
// binding changed.
func (t *Table) Invalidate(addr netip.Addr, ifindex int) bool {
	e, ok := t.Lookup(addr, ifindex)
	if !ok {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == core.StateNoARP || e.state == core.StatePermanent {
		return false
	}
	e.state = core.StateFailed
	e.hw = nil
	e.updated = t.now()
	t.touch(e)
	return true
}

// NextProbe counts a solicitation for e and returns the number of probes
// sent before it, plus the current hardware address when it is usable as a
// unicast hint.
func (t *Table) NextProbe(e *Entry) (int, net.HardwareAddr) {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.probes
	e.probes++
	var hint net.HardwareAddr
	if e.state.Valid() && !core.IsZeroHardwareAddr(e.hw) {
		hint = append(net.HardwareAddr(nil), e.hw...)
	}
	return n, hint
}

// ResetProbes restarts the solicitation budget of e.
func (t *Table) ResetProbes(e *Entry) {
	e.mu.Lock()
	e.probes = 0
	e.mu.Unlock()
}

// Add installs an administrative binding.
func (t *Table) Add(addr netip.Addr, ifindex int, hw net.HardwareAddr, permanent bool) error {
	state := core.StateStale
	if permanent {
		state = core.StatePermanent
	}
	e := t.LookupOrCreate(addr, ifindex)
	return t.Update(e, hw, state, FlagOverride|FlagAdmin)
}

// Delete removes the binding for addr.
func (t *Table) Delete(addr netip.Addr, ifindex int) error {
	k := key(addr, ifindex)
	if _, ok := t.items.Get(k); !ok {
		return core.ErrBindingNotFound
	}
	t.items.Delete(k)
	return nil
}

// Flush removes dynamic bindings on ifindex, or on all interfaces when
// ifindex is 0. It returns the number removed.
func (t *Table) Flush(ifindex int) int {
	n := 0
	for k, item := range t.items.Items() {
		e := item.Object.(*Entry)
		b := e.Snapshot()
		if ifindex != 0 && b.Ifindex != ifindex {
			continue
		}
		if b.State == core.StatePermanent || b.State == core.StateNoARP {
			continue
		}
		t.items.Delete(k)
		n++
	}
	return n
}

// List returns snapshots of all live bindings ordered by interface and address.
func (t *Table) List() []Binding {
	items := t.items.Items()
	out := make([]Binding, 0, len(items))
	for _, item := range items {
		out = append(out, item.Object.(*Entry).Snapshot())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Ifindex != out[j].Ifindex {
			return out[i].Ifindex < out[j].Ifindex
		}
		return out[i].Addr.Less(out[j].Addr)
	})
	return out
}

// Len returns the number of live bindings.
func (t *Table) Len() int {
	return t.items.ItemCount()
}
