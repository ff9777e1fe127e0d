package proxy

import (
	"fmt"
	"net/netip"
	"sort"
	"sync"

	"firestige.xyz/arpguard/internal/core"
)

// Entry publishes Addr for proxying. Ifindex 0 matches every interface.
type Entry struct {
	Addr      netip.Addr `json:"addr"`
	Ifindex   int        `json:"ifindex"`
	Interface string     `json:"interface,omitempty"`
}

type entryKey struct {
	addr    netip.Addr
	ifindex int
}

// Table holds the statically published proxy addresses.
type Table struct {
	mu      sync.RWMutex
	entries map[entryKey]Entry
}

// NewTable creates an empty proxy table.
func NewTable() *Table {
	return &Table{entries: make(map[entryKey]Entry)}
}

// Add publishes e, replacing an entry with the same key.
func (t *Table) Add(e Entry) error {
	if !e.Addr.Is4() {
		return fmt.Errorf("%w: proxy address %s is not IPv4", core.ErrConfigInvalid, e.Addr)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries[entryKey{e.Addr, e.Ifindex}] = e
	return nil
}

// Delete withdraws the entry for addr on ifindex.
func (t *Table) Delete(addr netip.Addr, ifindex int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := entryKey{addr, ifindex}
	if _, ok := t.entries[k]; !ok {
		return fmt.Errorf("%w: %s", core.ErrProxyEntryNotFound, addr)
	}
	delete(t.entries, k)
	return nil
}

// Lookup reports whether addr is published on ifindex or on every interface.
func (t *Table) Lookup(addr netip.Addr, ifindex int) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if _, ok := t.entries[entryKey{addr, ifindex}]; ok {
		return true
	}
	_, ok := t.entries[entryKey{addr, 0}]
	return ok
}

// List returns the entries ordered by address and interface.
func (t *Table) List() []Entry {
	t.mu.RLock()
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr.Less(out[j].Addr)
		}
		return out[i].Ifindex < out[j].Ifindex
	})
	return out
}

// Len returns the number of entries.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}
