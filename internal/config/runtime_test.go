package config

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpguard/internal/core"
)

func testRuntime() *Runtime {
	return &Runtime{
		Guard: GuardConfig{Enabled: true, IgnoreGatewayUpdateOnReply: true, AttackerCapacity: 4},
		Interfaces: map[string]InterfaceSettings{
			"eth0": {ArpIgnore: 1},
			"eth1": {},
		},
	}
}

func TestStoreUpdateIsCopyOnWrite(t *testing.T) {
	store := NewStore(testRuntime())
	before := store.Load()

	next, err := store.Update(func(rt *Runtime) error {
		return rt.SetFlags("eth0", map[string]interface{}{"arp_accept": "true"})
	})
	require.NoError(t, err)

	assert.False(t, before.For("eth0").ArpAccept, "published snapshots never change")
	assert.True(t, next.For("eth0").ArpAccept)
	assert.Equal(t, before.Generation+1, next.Generation)
	assert.Same(t, next, store.Load())
}

func TestStoreUpdateFailureKeepsSnapshot(t *testing.T) {
	store := NewStore(testRuntime())
	before := store.Load()

	_, err := store.Update(func(rt *Runtime) error {
		return rt.SetFlags("eth0", map[string]interface{}{"arp_ignore": 12})
	})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	assert.Same(t, before, store.Load())
}

func TestSetFlagsScopes(t *testing.T) {
	rt := testRuntime()

	require.NoError(t, rt.SetFlags("guard", map[string]interface{}{"verbose": true, "enabled": false}))
	assert.True(t, rt.Guard.Verbose)
	assert.False(t, rt.Guard.Enabled)
	assert.True(t, rt.Guard.IgnoreGatewayUpdateOnReply)

	require.NoError(t, rt.SetFlags("defaults", map[string]interface{}{"proxy_delay": "250ms"}))
	assert.Equal(t, "250ms", rt.Defaults.ProxyDelay.String())

	assert.ErrorIs(t, rt.SetFlags("eth7", map[string]interface{}{"arp_accept": true}), core.ErrInterfaceNotFound)
	assert.ErrorIs(t, rt.SetFlags("guard", map[string]interface{}{"bogus": 1}), core.ErrConfigInvalid)
	assert.ErrorIs(t, rt.SetFlags("guard", map[string]interface{}{"attacker_capacity": 0}), core.ErrConfigInvalid)
}

func TestFlags(t *testing.T) {
	rt := testRuntime()

	guard, err := rt.Flags("guard")
	require.NoError(t, err)
	assert.Equal(t, true, guard["enabled"])
	assert.Equal(t, 4, guard["attacker_capacity"])

	eth0, err := rt.Flags("eth0")
	require.NoError(t, err)
	assert.Equal(t, 1, eth0["arp_ignore"])
	assert.Equal(t, "0s", eth0["proxy_delay"])

	_, err = rt.Flags("eth9")
	assert.ErrorIs(t, err, core.ErrInterfaceNotFound)

	assert.Equal(t, []string{"eth0", "eth1"}, rt.InterfaceNames())
}

func TestStoreConcurrentUpdates(t *testing.T) {
	store := NewStore(testRuntime())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Update(func(rt *Runtime) error {
				rt.Guard.AttackerCapacity++
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 24, store.Load().Guard.AttackerCapacity)
	assert.Equal(t, uint64(20), store.Load().Generation)
}
