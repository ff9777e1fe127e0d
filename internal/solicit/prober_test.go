package solicit

import (
	"context"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"firestige.xyz/arpguard/internal/core"
	"firestige.xyz/arpguard/internal/neigh"
)

type mockTransmitter struct {
	mock.Mock
}

func (m *mockTransmitter) Transmit(ifindex int, dst net.HardwareAddr, payload []byte) error {
	args := m.Called(ifindex, dst, payload)
	return args.Error(0)
}

func fastParams() neigh.Params {
	p := neigh.DefaultParams()
	p.RetransTime = time.Millisecond
	p.UcastProbes, p.McastProbes, p.AppProbes = 1, 2, 1
	return p
}

func TestResolveExhausts(t *testing.T) {
	policy, table, ifi := testPolicy(fastParams())
	target := netip.MustParseAddr("10.0.0.60")

	tx := new(mockTransmitter)
	tx.On("Transmit", ifi.Index, ifi.BroadcastAddr(), mock.Anything).Return(nil)

	var notified []Solicitation
	prober := NewProber(policy, table, tx, func(s Solicitation) { notified = append(notified, s) })

	b, err := prober.Resolve(context.Background(), ifi, AnnounceAny, target)
	assert.ErrorIs(t, err, core.ErrUnreachable)
	assert.Equal(t, core.StateFailed, b.State)
	tx.AssertNumberOfCalls(t, "Transmit", 3)
	require.Len(t, notified, 1)
	assert.Equal(t, PhaseNotify, notified[0].Phase)
}

func TestResolveConfirmed(t *testing.T) {
	policy, table, ifi := testPolicy(fastParams())
	target := netip.MustParseAddr("10.0.0.61")
	peer := net.HardwareAddr{0x02, 0, 0, 0, 0, 0x61}

	tx := new(mockTransmitter)
	tx.On("Transmit", ifi.Index, mock.Anything, mock.Anything).Return(nil).Run(func(mock.Arguments) {
		e := table.LookupOrCreate(target, ifi.Index)
		_ = table.Update(e, peer, core.StateReachable, neigh.FlagOverride)
	})

	b, err := NewProber(policy, table, tx, nil).Resolve(context.Background(), ifi, AnnounceAny, target)
	require.NoError(t, err)
	assert.Equal(t, core.StateReachable, b.State)
	assert.Equal(t, peer, b.HardwareAddr)
	tx.AssertNumberOfCalls(t, "Transmit", 1)
}

func TestResolveAlreadyConnected(t *testing.T) {
	policy, table, ifi := testPolicy(fastParams())
	target := netip.MustParseAddr("10.0.0.62")
	require.NoError(t, table.Add(target, ifi.Index, net.HardwareAddr{0x02, 0, 0, 0, 0, 0x62}, true))

	tx := new(mockTransmitter)
	b, err := NewProber(policy, table, tx, nil).Resolve(context.Background(), ifi, AnnounceAny, target)
	require.NoError(t, err)
	assert.Equal(t, core.StatePermanent, b.State)
	tx.AssertNotCalled(t, "Transmit", mock.Anything, mock.Anything, mock.Anything)
}

func TestResolveCancelled(t *testing.T) {
	policy, table, ifi := testPolicy(fastParams())
	tx := new(mockTransmitter)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewProber(policy, table, tx, nil).Resolve(ctx, ifi, AnnounceAny, netip.MustParseAddr("10.0.0.63"))
	assert.ErrorIs(t, err, context.Canceled)
}
