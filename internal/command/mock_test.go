package command

import (
	"context"
	"net"
	"net/netip"

	"github.com/stretchr/testify/mock"

	"firestige.xyz/arpguard/internal/proxy"
)

type mockController struct {
	mock.Mock
}

func (m *mockController) Status() StatusInfo {
	return m.Called().Get(0).(StatusInfo)
}

func (m *mockController) Stats() map[string]interface{} {
	return m.Called().Get(0).(map[string]interface{})
}

func (m *mockController) Reload() error {
	return m.Called().Error(0)
}

func (m *mockController) Shutdown() {
	m.Called()
}

func (m *mockController) Flags(scope string) (map[string]interface{}, error) {
	args := m.Called(scope)
	flags, _ := args.Get(0).(map[string]interface{})
	return flags, args.Error(1)
}

func (m *mockController) SetFlags(scope string, values map[string]interface{}) (uint64, error) {
	args := m.Called(scope, values)
	return args.Get(0).(uint64), args.Error(1)
}

func (m *mockController) Neighbors(iface string) ([]NeighborInfo, error) {
	args := m.Called(iface)
	list, _ := args.Get(0).([]NeighborInfo)
	return list, args.Error(1)
}

func (m *mockController) AddNeighbor(iface string, addr netip.Addr, hw net.HardwareAddr, permanent bool) error {
	return m.Called(iface, addr, hw, permanent).Error(0)
}

func (m *mockController) FlushNeighbors(iface string) (int, error) {
	args := m.Called(iface)
	return args.Int(0), args.Error(1)
}

func (m *mockController) ProxyEntries() []proxy.Entry {
	return m.Called().Get(0).([]proxy.Entry)
}

func (m *mockController) AddProxyEntry(addr netip.Addr, iface string) error {
	return m.Called(addr, iface).Error(0)
}

func (m *mockController) DeleteProxyEntry(addr netip.Addr, iface string) error {
	return m.Called(addr, iface).Error(0)
}

func (m *mockController) Attackers() []AttackerInfo {
	return m.Called().Get(0).([]AttackerInfo)
}

func (m *mockController) ClearAttackers(hw net.HardwareAddr) int {
	return m.Called(hw).Int(0)
}

func (m *mockController) Resolve(ctx context.Context, iface string, addr netip.Addr) (NeighborInfo, error) {
	args := m.Called(iface, addr)
	return args.Get(0).(NeighborInfo), args.Error(1)
}

var mockAnyHW = mock.AnythingOfType("net.HardwareAddr")
