package neigh

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpguard/internal/core"
)

var (
	hwA = net.HardwareAddr{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}
	hwB = net.HardwareAddr{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb}
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTable() (*Table, *fakeClock) {
	clk := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	return New(DefaultParams(), WithClock(clk.Now)), clk
}

func TestLookupOrCreate(t *testing.T) {
	tbl, _ := newTestTable()
	addr := netip.MustParseAddr("10.0.0.7")

	_, ok := tbl.Lookup(addr, 2)
	assert.False(t, ok)

	e := tbl.LookupOrCreate(addr, 2)
	assert.Same(t, e, tbl.LookupOrCreate(addr, 2))
	assert.Equal(t, core.StateUnresolved, e.Snapshot().State)

	_, ok = tbl.Lookup(addr, 3)
	assert.False(t, ok, "bindings are per interface")
}

func TestUpdateFirstReplyWins(t *testing.T) {
	tbl, clk := newTestTable()
	e := tbl.LookupOrCreate(netip.MustParseAddr("10.0.0.7"), 2)

	require.NoError(t, tbl.Update(e, hwA, core.StateReachable, 0))
	first := e.Snapshot()
	assert.Equal(t, hwA, first.HardwareAddr)

	clk.Advance(100 * time.Millisecond)
	require.NoError(t, tbl.Update(e, hwA, core.StateReachable, 0))
	second := e.Snapshot()
	assert.True(t, second.Updated.After(first.Updated), "same address refreshes the timestamp")

	clk.Advance(100 * time.Millisecond)
	err := tbl.Update(e, hwB, core.StateReachable, 0)
	assert.ErrorIs(t, err, core.ErrBindingLocked)
	third := e.Snapshot()
	assert.Equal(t, hwA, third.HardwareAddr)
	assert.True(t, third.Updated.After(second.Updated), "a locked update is still recorded")

	require.NoError(t, tbl.Update(e, hwB, core.StateReachable, FlagOverride))
	assert.Equal(t, hwB, e.Snapshot().HardwareAddr)
}

func TestUpdateKeepsReachableOnStaleRefresh(t *testing.T) {
	tbl, _ := newTestTable()
	e := tbl.LookupOrCreate(netip.MustParseAddr("10.0.0.7"), 2)

	require.NoError(t, tbl.Update(e, hwA, core.StateReachable, 0))
	require.NoError(t, tbl.Update(e, hwA, core.StateStale, FlagOverride))
	assert.Equal(t, core.StateReachable, e.Snapshot().State)

	require.NoError(t, tbl.Update(e, hwB, core.StateStale, FlagOverride))
	assert.Equal(t, core.StateStale, e.Snapshot().State)
}

func TestUpdatePermanentNeedsAdmin(t *testing.T) {
	tbl, _ := newTestTable()
	addr := netip.MustParseAddr("10.0.0.254")
	require.NoError(t, tbl.Add(addr, 2, hwA, true))

	e, ok := tbl.Lookup(addr, 2)
	require.True(t, ok)
	assert.ErrorIs(t, tbl.Update(e, hwB, core.StateReachable, FlagOverride), core.ErrBindingPermanent)
	assert.NoError(t, tbl.Update(e, hwB, core.StatePermanent, FlagOverride|FlagAdmin))
	assert.Equal(t, hwB, e.Snapshot().HardwareAddr)
}

func TestUpdateWithoutAddress(t *testing.T) {
	tbl, _ := newTestTable()
	e := tbl.LookupOrCreate(netip.MustParseAddr("10.0.0.7"), 2)

	assert.ErrorIs(t, tbl.Update(e, nil, core.StateReachable, 0), core.ErrNoHardwareAddr)

	require.NoError(t, tbl.Update(e, hwA, core.StateStale, 0))
	require.NoError(t, tbl.Update(e, nil, core.StateReachable, 0))
	assert.Equal(t, hwA, e.Snapshot().HardwareAddr)
}

func TestEventAndOverridable(t *testing.T) {
	tbl, clk := newTestTable()
	addr := netip.MustParseAddr("10.0.0.7")

	e := tbl.Event(addr, 2, hwA)
	b := e.Snapshot()
	assert.Equal(t, core.StateStale, b.State)
	assert.Equal(t, hwA, b.HardwareAddr)

	assert.False(t, tbl.Overridable(e))
	clk.Advance(1500 * time.Millisecond)
	assert.True(t, tbl.Overridable(e))
}

func TestInvalidate(t *testing.T) {
	tbl, _ := newTestTable()
	gw := netip.MustParseAddr("10.0.0.254")

	assert.False(t, tbl.Invalidate(gw, 2))

	tbl.Event(gw, 2, hwB)
	assert.True(t, tbl.Invalidate(gw, 2))
	b, ok := tbl.Lookup(gw, 2)
	require.True(t, ok)
	snap := b.Snapshot()
	assert.Equal(t, core.StateFailed, snap.State)
	assert.True(t, core.IsZeroHardwareAddr(snap.HardwareAddr))

	// A failed binding accepts a fresh address without override.
	require.NoError(t, tbl.Update(b, hwA, core.StateReachable, 0))
	assert.Equal(t, hwA, b.Snapshot().HardwareAddr)

	// Pinned bindings only change through the admin path.
	require.NoError(t, tbl.Update(b, hwA, core.StatePermanent, FlagOverride|FlagAdmin))
	assert.False(t, tbl.Invalidate(gw, 2))
	snap = b.Snapshot()
	assert.Equal(t, core.StatePermanent, snap.State)
	assert.Equal(t, hwA, snap.HardwareAddr)
}

func TestNextProbe(t *testing.T) {
	tbl, _ := newTestTable()
	e := tbl.LookupOrCreate(netip.MustParseAddr("10.0.0.7"), 2)

	n, hint := tbl.NextProbe(e)
	assert.Equal(t, 0, n)
	assert.Nil(t, hint)

	require.NoError(t, tbl.Update(e, hwA, core.StateStale, 0))
	n, hint = tbl.NextProbe(e)
	assert.Equal(t, 1, n)
	assert.Equal(t, hwA, hint)

	require.NoError(t, tbl.Update(e, hwA, core.StateReachable, 0))
	n, _ = tbl.NextProbe(e)
	assert.Equal(t, 0, n, "confirmation resets the probe count")
}

func TestFlushListDelete(t *testing.T) {
	tbl, _ := newTestTable()
	tbl.Event(netip.MustParseAddr("10.0.0.9"), 2, hwA)
	tbl.Event(netip.MustParseAddr("10.0.0.3"), 2, hwB)
	tbl.Event(netip.MustParseAddr("10.1.0.3"), 3, hwB)
	require.NoError(t, tbl.Add(netip.MustParseAddr("10.0.0.254"), 2, hwA, true))

	list := tbl.List()
	require.Len(t, list, 4)
	assert.Equal(t, netip.MustParseAddr("10.0.0.3"), list[0].Addr)
	assert.Equal(t, 3, list[3].Ifindex)

	assert.Equal(t, 2, tbl.Flush(2))
	assert.Equal(t, 2, tbl.Len())

	assert.NoError(t, tbl.Delete(netip.MustParseAddr("10.1.0.3"), 3))
	assert.ErrorIs(t, tbl.Delete(netip.MustParseAddr("10.1.0.3"), 3), core.ErrBindingNotFound)
}

func TestConcurrentUpdates(t *testing.T) {
	tbl := New(DefaultParams())
	addr := netip.MustParseAddr("10.0.0.7")

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			hw := hwA
			if i%2 == 1 {
				hw = hwB
			}
			e := tbl.LookupOrCreate(addr, 2)
			_ = tbl.Update(e, hw, core.StateStale, FlagOverride)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, tbl.Len())
	e, ok := tbl.Lookup(addr, 2)
	require.True(t, ok)
	got := e.Snapshot().HardwareAddr
	assert.True(t, got.String() == hwA.String() || got.String() == hwB.String())
}
