package engine

import (
	"net"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpguard/internal/config"
	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/core/codec"
	"firestige.xyz/arpguard/internal/guard"
	"firestige.xyz/arpguard/internal/neigh"
	"firestige.xyz/arpguard/internal/proxy"
	"firestige.xyz/arpguard/internal/route"
)

var (
	localIP   = netip.MustParseAddr("10.0.0.5")
	gatewayIP = netip.MustParseAddr("10.0.0.254")
	hostIP    = netip.MustParseAddr("10.0.0.77")
	remoteIP  = netip.MustParseAddr("192.168.1.50")

	hwAA = net.HardwareAddr{0xaa, 0xaa, 0xaa, 0xaa, 0xaa, 0xaa}
	hwBB = net.HardwareAddr{0xbb, 0xbb, 0xbb, 0xbb, 0xbb, 0xbb}
	hwCC = net.HardwareAddr{0xcc, 0xcc, 0xcc, 0xcc, 0xcc, 0xcc}
	hwDD = net.HardwareAddr{0xdd, 0xdd, 0xdd, 0xdd, 0xdd, 0xdd}
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	eth0, eth1 *core.Interface
	bindings   *neigh.Table
	guard      *guard.Guard
	proxies    *proxy.Table
	queue      *proxy.Queue
	store      *config.Store
	clock      *clock
	engine     *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	eth0 := &core.Interface{
		Name: "eth0", Index: 2, Media: core.MediaEthernet,
		HardwareAddr: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		Addrs: []core.Address{
			{Prefix: netip.MustParsePrefix("10.0.0.1/24")},
			{Prefix: netip.MustParsePrefix("10.0.0.5/24")},
		},
	}
	eth1 := &core.Interface{
		Name: "eth1", Index: 3, Media: core.MediaEthernet,
		HardwareAddr: net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x66},
		Addrs:        []core.Address{{Prefix: netip.MustParsePrefix("192.168.1.1/24")}},
	}

	routes := route.NewStatic()
	routes.AddInterface(eth0)
	routes.AddInterface(eth1)
	routes.SetGateway(eth0.Index, gatewayIP)

	clk := &clock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	bindings := neigh.New(neigh.DefaultParams(), neigh.WithClock(clk.Now))
	g := guard.New(routes, bindings, guard.NewRegistry(4))
	proxies := proxy.NewTable()
	queue := proxy.NewQueue(1)

	store := config.NewStore(&config.Runtime{
		Guard: config.GuardConfig{
			Enabled:                      true,
			IgnoreGatewayUpdateOnRequest: true,
			IgnoreGatewayUpdateOnReply:   true,
			IgnoreProxyARP:               true,
			AttackerCapacity:             4,
		},
		Interfaces: map[string]config.InterfaceSettings{"eth0": {}, "eth1": {}},
	})

	return &fixture{
		eth0: eth0, eth1: eth1,
		bindings: bindings, guard: g, proxies: proxies, queue: queue,
		store: store, clock: clk,
		engine: New(Deps{
			Interfaces: core.NewInterfaces(eth0, eth1),
			Routes:     routes,
			Bindings:   bindings,
			Guard:      g,
			Proxy:      proxy.NewResolver(proxies),
			Queue:      queue,
			Config:     store,
		}),
	}
}

func (f *fixture) set(t *testing.T, scope string, values map[string]interface{}) {
	t.Helper()
	_, err := f.store.Update(func(rt *config.Runtime) error { return rt.SetFlags(scope, values) })
	require.NoError(t, err)
}

func (f *fixture) bind(t *testing.T, addr netip.Addr, hw net.HardwareAddr) {
	t.Helper()
	e := f.bindings.LookupOrCreate(addr, f.eth0.Index)
	require.NoError(t, f.bindings.Update(e, hw, core.StateReachable, neigh.FlagOverride))
}

func (f *fixture) binding(t *testing.T, addr netip.Addr) neigh.Binding {
	t.Helper()
	b, ok := f.bindings.Get(addr, f.eth0.Index)
	require.True(t, ok, "binding for %s", addr)
	return b
}

func encode(t *testing.T, ifi *core.Interface, op core.Operation, sip, tip netip.Addr, sha, tha net.HardwareAddr) []byte {
	t.Helper()
	b, err := codec.Encode(op, sip, tip, sha, tha, ifi)
	require.NoError(t, err)
	return b
}

func (f *fixture) request(t *testing.T, sip, tip netip.Addr, sha net.HardwareAddr, pt core.PacketType) Decision {
	t.Helper()
	return f.engine.Process(Inbound{
		Payload:    encode(t, f.eth0, core.OpRequest, sip, tip, sha, nil),
		Ifindex:    f.eth0.Index,
		PacketType: pt,
	})
}

func (f *fixture) reply(t *testing.T, sip netip.Addr, sha net.HardwareAddr, pt core.PacketType) Decision {
	t.Helper()
	return f.engine.Process(Inbound{
		Payload:    encode(t, f.eth0, core.OpReply, sip, localIP, sha, f.eth0.HardwareAddr),
		Ifindex:    f.eth0.Index,
		PacketType: pt,
	})
}

func decodeReply(t *testing.T, ifi *core.Interface, r Reply) codec.Packet {
	t.Helper()
	pkt, err := codec.Decode(r.Payload, ifi)
	require.NoError(t, err)
	require.Equal(t, core.OpReply, pkt.Operation)
	return pkt
}

func TestRequestForLocalAddress(t *testing.T) {
	f := newFixture(t)

	d := f.request(t, hostIP, localIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, ReasonReplied, d.Reason)
	require.Len(t, d.Replies, 1)
	assert.Equal(t, hwCC, d.Replies[0].Dest)

	pkt := decodeReply(t, f.eth0, d.Replies[0])
	assert.Equal(t, f.eth0.HardwareAddr, pkt.SenderHW)
	assert.Equal(t, localIP, pkt.SenderIP)
	assert.Equal(t, hwCC, pkt.TargetHW)
	assert.Equal(t, hostIP, pkt.TargetIP)

	b := f.binding(t, hostIP)
	assert.Equal(t, hwCC, b.HardwareAddr)
	assert.Equal(t, core.StateStale, b.State)
}

func TestIgnorePolicy(t *testing.T) {
	tests := []struct {
		name    string
		ignore  int
		sender  netip.Addr
		target  netip.Addr
		replied bool
	}{
		{"mode 0 replies", 0, hostIP, localIP, true},
		{"mode 1 local to interface", 1, hostIP, localIP, true},
		{"mode 1 address of another interface", 1, hostIP, netip.MustParseAddr("192.168.1.1"), false},
		{"mode 2 sender on subnet", 2, hostIP, localIP, true},
		{"mode 2 sender off subnet", 2, netip.MustParseAddr("172.16.0.9"), localIP, false},
		{"mode 5 reserved replies", 5, hostIP, localIP, true},
		{"mode 8 never replies", 8, hostIP, localIP, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.set(t, "eth0", map[string]interface{}{"arp_ignore": tt.ignore})

			d := f.request(t, tt.sender, tt.target, hwCC, core.PacketBroadcast)
			assert.Equal(t, Accept, d.Verdict)
			if tt.replied {
				assert.Len(t, d.Replies, 1)
				f.binding(t, tt.sender)
				return
			}
			assert.Equal(t, ReasonIgnored, d.Reason)
			assert.Empty(t, d.Replies)
			assert.Equal(t, 0, f.bindings.Len(), "suppressed requests teach nothing")
		})
	}
}

func TestRouteFilter(t *testing.T) {
	f := newFixture(t)
	f.set(t, "eth1", map[string]interface{}{"arp_filter": true})

	// Sender reachable back through eth1: answered.
	d := f.engine.Process(Inbound{
		Payload:    encode(t, f.eth1, core.OpRequest, netip.MustParseAddr("192.168.1.20"), localIP, hwCC, nil),
		Ifindex:    f.eth1.Index,
		PacketType: core.PacketBroadcast,
	})
	assert.Len(t, d.Replies, 1)

	// Sender routed back through eth0: filtered.
	d = f.engine.Process(Inbound{
		Payload:    encode(t, f.eth1, core.OpRequest, hostIP, localIP, hwCC, nil),
		Ifindex:    f.eth1.Index,
		PacketType: core.PacketBroadcast,
	})
	assert.Equal(t, ReasonIgnored, d.Reason)
	assert.Empty(t, d.Replies)
}

func TestDHCPProbe(t *testing.T) {
	f := newFixture(t)
	unspecified := netip.IPv4Unspecified()

	d := f.request(t, unspecified, localIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, ReasonDHCPProbe, d.Reason)
	require.Len(t, d.Replies, 1)

	pkt := decodeReply(t, f.eth0, d.Replies[0])
	assert.Equal(t, localIP, pkt.SenderIP)
	assert.Equal(t, f.eth0.HardwareAddr, pkt.SenderHW)
	assert.Equal(t, unspecified, pkt.TargetIP)
	assert.Equal(t, hwCC, pkt.TargetHW)
	assert.Equal(t, 0, f.bindings.Len(), "no binding for 0.0.0.0")

	// Not ours: consumed silently.
	d = f.request(t, unspecified, hostIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, Accept, d.Verdict)
	assert.Empty(t, d.Replies)

	f.set(t, "eth0", map[string]interface{}{"arp_ignore": 8})
	d = f.request(t, unspecified, localIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, Accept, d.Verdict)
	assert.Empty(t, d.Replies)
}

func TestSanityFilter(t *testing.T) {
	f := newFixture(t)

	d := f.request(t, hostIP, netip.MustParseAddr("127.0.0.1"), hwCC, core.PacketBroadcast)
	assert.Equal(t, Drop, d.Verdict)
	assert.Equal(t, ReasonMartian, d.Reason)

	d = f.request(t, hostIP, netip.MustParseAddr("224.0.0.1"), hwCC, core.PacketBroadcast)
	assert.Equal(t, ReasonMartian, d.Reason)

	f.set(t, "eth0", map[string]interface{}{"route_localnet": true})
	d = f.request(t, hostIP, netip.MustParseAddr("127.0.0.1"), hwCC, core.PacketBroadcast)
	assert.Equal(t, Accept, d.Verdict)

	f.set(t, "eth0", map[string]interface{}{"drop_gratuitous": true})
	d = f.request(t, hostIP, hostIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, Drop, d.Verdict)
	assert.Equal(t, ReasonGratuitous, d.Reason)
}

func TestRejectsBeforeParsing(t *testing.T) {
	f := newFixture(t)
	payload := encode(t, f.eth0, core.OpRequest, hostIP, localIP, hwCC, nil)

	d := f.engine.Process(Inbound{Payload: payload[:10], Ifindex: f.eth0.Index})
	assert.Equal(t, Drop, d.Verdict)
	assert.Equal(t, ReasonMalformed, d.Reason)

	d = f.engine.Process(Inbound{Payload: payload, Ifindex: 99})
	assert.Equal(t, ReasonUnknownInterface, d.Reason)

	d = f.engine.Process(Inbound{Payload: payload, Ifindex: f.eth0.Index, PacketType: core.PacketOtherHost})
	assert.Equal(t, ReasonFiltered, d.Reason)

	bad := append([]byte(nil), payload...)
	bad[7] = 9 // operation
	d = f.engine.Process(Inbound{Payload: bad, Ifindex: f.eth0.Index})
	assert.Equal(t, ReasonMalformed, d.Reason)
}

func TestFirstReplyWins(t *testing.T) {
	f := newFixture(t)
	f.set(t, "eth0", map[string]interface{}{"arp_accept": true})

	d := f.reply(t, hostIP, hwCC, core.PacketHost)
	assert.Equal(t, ReasonUpdated, d.Reason)
	first := f.binding(t, hostIP)
	assert.Equal(t, core.StateReachable, first.State)

	f.clock.Advance(100 * time.Millisecond)
	d = f.reply(t, hostIP, hwDD, core.PacketHost)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, ReasonLocked, d.Reason)
	assert.Equal(t, hwCC, f.binding(t, hostIP).HardwareAddr)

	f.clock.Advance(100 * time.Millisecond)
	d = f.reply(t, hostIP, hwCC, core.PacketHost)
	assert.Equal(t, ReasonUpdated, d.Reason)
	again := f.binding(t, hostIP)
	assert.Equal(t, hwCC, again.HardwareAddr)
	assert.True(t, again.Updated.After(first.Updated))

	f.clock.Advance(2 * time.Second)
	f.reply(t, hostIP, hwDD, core.PacketBroadcast)
	b := f.binding(t, hostIP)
	assert.Equal(t, hwDD, b.HardwareAddr)
	assert.Equal(t, core.StateStale, b.State, "broadcast replies do not assert reachability")
}

func TestUnsolicitedReplyIgnoredWithoutAccept(t *testing.T) {
	f := newFixture(t)

	d := f.reply(t, hostIP, hwCC, core.PacketHost)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, ReasonNoBinding, d.Reason)
	assert.Equal(t, 0, f.bindings.Len())
}

func TestGratuitousRequestCreatesBinding(t *testing.T) {
	f := newFixture(t)
	garpIP := netip.MustParseAddr("10.0.0.88")

	d := f.request(t, garpIP, garpIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, ReasonNoBinding, d.Reason, "not accepted without arp_accept")

	f.set(t, "eth0", map[string]interface{}{"arp_accept": true})
	d = f.request(t, garpIP, garpIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, ReasonUpdated, d.Reason)
	assert.Empty(t, d.Replies)
	b := f.binding(t, garpIP)
	assert.Equal(t, hwCC, b.HardwareAddr)
	assert.Equal(t, core.StateStale, b.State)

	// An announcement overrides inside the lock window.
	d = f.request(t, garpIP, garpIP, hwDD, core.PacketBroadcast)
	assert.Equal(t, ReasonUpdated, d.Reason)
	assert.Equal(t, hwDD, f.binding(t, garpIP).HardwareAddr)
}

func TestGatewayMismatchScenario(t *testing.T) {
	f := newFixture(t)
	f.bind(t, gatewayIP, hwAA)

	d := f.reply(t, gatewayIP, hwBB, core.PacketHost)
	assert.Equal(t, Drop, d.Verdict)
	assert.Equal(t, ReasonGuard, d.Reason)
	require.Len(t, d.Findings, 1)
	assert.Equal(t, guard.KindGatewayMismatch, d.Findings[0].Kind)
	assert.True(t, d.Detected())
	assert.Equal(t, hwAA, f.binding(t, gatewayIP).HardwareAddr)

	d = f.reply(t, gatewayIP, hwAA, core.PacketHost)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, ReasonUpdated, d.Reason)
	assert.False(t, d.Detected())

	// A request from the forged gateway for a local address is refused too.
	d = f.request(t, gatewayIP, localIP, hwBB, core.PacketBroadcast)
	assert.Equal(t, Drop, d.Verdict)
	assert.Empty(t, d.Replies)
	assert.Equal(t, hwAA, f.binding(t, gatewayIP).HardwareAddr)
}

func TestGatewayAnnouncementFromKnownAttacker(t *testing.T) {
	f := newFixture(t)
	f.set(t, "eth0", map[string]interface{}{"arp_accept": true})
	f.bind(t, gatewayIP, hwAA)
	f.guard.Attackers().Record(hwBB, gatewayIP, f.eth0.Name)
	f.clock.Advance(5 * time.Second)

	d := f.request(t, gatewayIP, gatewayIP, hwBB, core.PacketBroadcast)
	assert.Equal(t, Drop, d.Verdict)
	assert.Equal(t, ReasonGuard, d.Reason)
	require.Len(t, d.Findings, 1)
	assert.Equal(t, guard.KindKnownAttacker, d.Findings[0].Kind)

	b := f.binding(t, gatewayIP)
	assert.Equal(t, hwAA, b.HardwareAddr)
	assert.Equal(t, core.StateReachable, b.State)
}

func TestGatewayRequestForOtherHostMismatch(t *testing.T) {
	f := newFixture(t)
	f.bind(t, gatewayIP, hwAA)
	f.clock.Advance(5 * time.Second)

	d := f.request(t, gatewayIP, hostIP, hwBB, core.PacketBroadcast)
	assert.Equal(t, Drop, d.Verdict)
	assert.Equal(t, ReasonGuard, d.Reason)
	assert.Empty(t, d.Replies)
	require.Len(t, d.Findings, 1)
	assert.Equal(t, guard.KindGatewayMismatch, d.Findings[0].Kind)
	assert.Equal(t, hwAA, f.binding(t, gatewayIP).HardwareAddr)

	// The true gateway asking for a neighbour still refreshes its binding.
	d = f.request(t, gatewayIP, hostIP, hwAA, core.PacketBroadcast)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, ReasonUpdated, d.Reason)

	// Without the request check the forged request reaches the cache.
	f.set(t, "guard", map[string]interface{}{"ignore_gateway_update_on_request": false})
	f.clock.Advance(5 * time.Second)
	d = f.request(t, gatewayIP, hostIP, hwBB, core.PacketBroadcast)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, hwBB, f.binding(t, gatewayIP).HardwareAddr)
}

func TestPinnedGatewayIsNotQuarantined(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.bindings.Add(gatewayIP, f.eth0.Index, hwAA, true))

	// A forged request carrying the pinned address.
	d := f.request(t, hostIP, gatewayIP, hwAA, core.PacketBroadcast)
	assert.Empty(t, d.Findings)
	assert.Equal(t, 0, f.guard.Attackers().Len())
	b := f.binding(t, gatewayIP)
	assert.Equal(t, core.StatePermanent, b.State)
	assert.Equal(t, hwAA, b.HardwareAddr)

	d = f.reply(t, gatewayIP, hwAA, core.PacketHost)
	assert.Equal(t, Accept, d.Verdict)
	assert.False(t, d.Detected())
}

func TestImpersonationQuarantine(t *testing.T) {
	f := newFixture(t)
	f.bind(t, gatewayIP, hwBB) // poisoned

	// The poisoner asks for the gateway from its own address.
	d := f.request(t, hostIP, gatewayIP, hwBB, core.PacketBroadcast)
	assert.Equal(t, Drop, d.Verdict)
	require.Len(t, d.Findings, 1)
	assert.Equal(t, guard.KindImpersonation, d.Findings[0].Kind)
	assert.True(t, f.guard.Attackers().Contains(hwBB))
	b := f.binding(t, gatewayIP)
	assert.Equal(t, core.StateFailed, b.State)
	assert.True(t, core.IsZeroHardwareAddr(b.HardwareAddr))

	// Every further claim from the attacker is dropped.
	d = f.reply(t, gatewayIP, hwBB, core.PacketHost)
	assert.Equal(t, Drop, d.Verdict)
	assert.Equal(t, guard.KindKnownAttacker, d.Findings[0].Kind)
	d = f.request(t, gatewayIP, localIP, hwBB, core.PacketBroadcast)
	assert.Equal(t, Drop, d.Verdict)
	assert.Equal(t, core.StateFailed, f.binding(t, gatewayIP).State)

	// Clearing the record restores normal processing.
	f.guard.Attackers().Clear()
	d = f.reply(t, gatewayIP, hwBB, core.PacketHost)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, hwBB, f.binding(t, gatewayIP).HardwareAddr)
}

func TestTrueGatewayRebindsAfterQuarantine(t *testing.T) {
	f := newFixture(t)
	f.bind(t, gatewayIP, hwBB)
	f.request(t, hostIP, gatewayIP, hwBB, core.PacketBroadcast)

	d := f.reply(t, gatewayIP, hwAA, core.PacketHost)
	assert.Equal(t, ReasonUpdated, d.Reason)
	b := f.binding(t, gatewayIP)
	assert.Equal(t, hwAA, b.HardwareAddr)
	assert.Equal(t, core.StateReachable, b.State)
}

func TestGuardDisabled(t *testing.T) {
	f := newFixture(t)
	f.set(t, "guard", map[string]interface{}{"enabled": false})
	f.bind(t, gatewayIP, hwAA)

	d := f.reply(t, gatewayIP, hwBB, core.PacketHost)
	assert.Equal(t, Accept, d.Verdict)
	assert.Empty(t, d.Findings)
	assert.Equal(t, ReasonLocked, d.Reason)

	f.clock.Advance(2 * time.Second)
	f.reply(t, gatewayIP, hwBB, core.PacketHost)
	assert.Equal(t, hwBB, f.binding(t, gatewayIP).HardwareAddr)
}

func TestProxy(t *testing.T) {
	f := newFixture(t)
	f.set(t, "eth0", map[string]interface{}{"forwarding": true, "proxy_arp": true})

	d := f.request(t, hostIP, remoteIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, Drop, d.Verdict)
	assert.Equal(t, ReasonProxyDisabled, d.Reason)

	f.set(t, "guard", map[string]interface{}{"ignore_proxy_arp": false})
	d = f.request(t, hostIP, remoteIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, ReasonProxied, d.Reason)
	require.Len(t, d.Replies, 1)
	pkt := decodeReply(t, f.eth0, d.Replies[0])
	assert.Equal(t, remoteIP, pkt.SenderIP)
	assert.Equal(t, f.eth0.HardwareAddr, pkt.SenderHW)
	assert.Equal(t, hwCC, f.binding(t, hostIP).HardwareAddr)
}

func TestProxyDelayed(t *testing.T) {
	f := newFixture(t)
	f.set(t, "guard", map[string]interface{}{"ignore_proxy_arp": false})
	f.set(t, "eth0", map[string]interface{}{"forwarding": true, "proxy_arp": true, "proxy_delay": "800ms"})

	d := f.request(t, hostIP, remoteIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, ReasonProxyDeferred, d.Reason)
	assert.True(t, d.Deferred)
	assert.Empty(t, d.Replies)
	assert.Equal(t, 1, f.queue.Len())

	d = f.request(t, hostIP, remoteIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, Drop, d.Verdict)
	assert.Equal(t, ReasonProxyQueueFull, d.Reason)

	d = f.request(t, hostIP, remoteIP, hwCC, core.PacketHost)
	assert.Equal(t, ReasonProxied, d.Reason, "unicast requests are answered at once")

	pending := f.queue.Drain(time.Now().Add(time.Second))
	require.Len(t, pending, 1)
	d = f.engine.Process(Inbound{
		Payload:         pending[0].Payload,
		Ifindex:         pending[0].Ifindex,
		PacketType:      pending[0].PacketType,
		LocallyEnqueued: true,
	})
	assert.Equal(t, ReasonProxied, d.Reason)
	assert.Len(t, d.Replies, 1)
}

func TestProxyNotAuthorized(t *testing.T) {
	f := newFixture(t)
	f.set(t, "guard", map[string]interface{}{"ignore_proxy_arp": false})
	f.set(t, "eth0", map[string]interface{}{"forwarding": true})

	d := f.request(t, hostIP, remoteIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, Accept, d.Verdict)
	assert.Equal(t, ReasonNoBinding, d.Reason)
	assert.Empty(t, d.Replies)

	require.NoError(t, f.proxies.Add(proxy.Entry{Addr: remoteIP, Ifindex: f.eth0.Index}))
	d = f.request(t, hostIP, remoteIP, hwCC, core.PacketBroadcast)
	assert.Equal(t, ReasonProxied, d.Reason)
}

func TestDLCISenderIsBroadcast(t *testing.T) {
	f := newFixture(t)
	dlci := &core.Interface{
		Name: "dlci0", Index: 2, Media: core.MediaDLCI,
		HardwareAddr: net.HardwareAddr{0x01, 0x02},
		Broadcast:    net.HardwareAddr{0xff, 0xfe},
		Addrs:        f.eth0.Addrs,
	}
	f.engine.ifaces.Add(dlci)

	d := f.engine.Process(Inbound{
		Payload:    encode(t, dlci, core.OpRequest, hostIP, localIP, net.HardwareAddr{0x33, 0x44}, nil),
		Ifindex:    dlci.Index,
		PacketType: core.PacketBroadcast,
	})
	require.Len(t, d.Replies, 1)
	assert.Equal(t, dlci.Broadcast, d.Replies[0].Dest)
}
