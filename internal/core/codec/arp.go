package codec

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/arpguard/internal/core"
)

// fixedHeaderLen covers hrd, pro, hln, pln and op.
const fixedHeaderLen = 8

// Packet is a decoded IPv4 ARP message.
type Packet struct {
	Operation    core.Operation
	HardwareType uint16
	ProtocolType uint16
	SenderHW     net.HardwareAddr
	SenderIP     netip.Addr
	TargetHW     net.HardwareAddr
	TargetIP     netip.Addr
}

// Len returns the wire length of an ARP message for hardware address length hln.
func Len(hln int) int {
	return fixedHeaderLen + 2*hln + 2*4
}

// Encode builds an ARP message for ifi. A nil senderHW means the interface
// address; a nil targetHW is written as zeros.
func Encode(op core.Operation, senderIP, targetIP netip.Addr, senderHW, targetHW net.HardwareAddr, ifi *core.Interface) ([]byte, error) {
	hln := ifi.AddrLen()
	if senderHW == nil {
		senderHW = ifi.HardwareAddr
	}
	if targetHW == nil {
		targetHW = make(net.HardwareAddr, hln)
	}
	if len(senderHW) != hln || len(targetHW) != hln {
		return nil, fmt.Errorf("%w: hardware address length %d/%d on %s (want %d)",
			core.ErrBuildFailed, len(senderHW), len(targetHW), ifi.Name, hln)
	}
	if !senderIP.Is4() || !targetIP.Is4() {
		return nil, fmt.Errorf("%w: non-IPv4 protocol address", core.ErrBuildFailed)
	}

	hrd, pro := typesFor(ifi.Media)
	sip, tip := senderIP.As4(), targetIP.As4()
	arp := &layers.ARP{
		AddrType:          layers.LinkType(hrd),
		Protocol:          layers.EthernetType(pro),
		HwAddressSize:     uint8(hln),
		ProtAddressSize:   4,
		Operation:         uint16(op),
		SourceHwAddress:   senderHW,
		SourceProtAddress: sip[:],
		DstHwAddress:      targetHW,
		DstProtAddress:    tip[:],
	}

	buf := gopacket.NewSerializeBuffer()
	if err := arp.SerializeTo(buf, gopacket.SerializeOptions{}); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBuildFailed, err)
	}
	out := buf.Bytes()
	// LinkType is narrower than the wire field on some gopacket releases.
	binary.BigEndian.PutUint16(out[0:2], hrd)
	return out, nil
}

// Decode parses an ARP message received on ifi.
func Decode(data []byte, ifi *core.Interface) (Packet, error) {
	hln := ifi.AddrLen()
	if len(data) < Len(hln) {
		return Packet{}, fmt.Errorf("%w: %d bytes, need %d", core.ErrTruncated, len(data), Len(hln))
	}

	hrd := binary.BigEndian.Uint16(data[0:2])
	pro := binary.BigEndian.Uint16(data[2:4])
	if int(data[4]) != hln || data[5] != 4 {
		return Packet{}, fmt.Errorf("%w: hln=%d pln=%d on %s", core.ErrLengthMismatch, data[4], data[5], ifi.Name)
	}
	if !accepts(ifi.Media, hrd, pro) {
		return Packet{}, fmt.Errorf("%w: hrd=%d pro=%#04x on %s media", core.ErrUnsupportedMedia, hrd, pro, ifi.Media)
	}
	op := core.Operation(binary.BigEndian.Uint16(data[6:8]))
	if op != core.OpRequest && op != core.OpReply {
		return Packet{}, fmt.Errorf("%w: %s", core.ErrUnsupportedOp, op)
	}

	var arp layers.ARP
	if err := arp.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return Packet{}, fmt.Errorf("%w: %v", core.ErrTruncated, err)
	}

	// Capture buffers are reused; keep copies.
	pkt := Packet{
		Operation:    op,
		HardwareType: hrd,
		ProtocolType: pro,
		SenderHW:     append(net.HardwareAddr(nil), arp.SourceHwAddress...),
		TargetHW:     append(net.HardwareAddr(nil), arp.DstHwAddress...),
	}
	pkt.SenderIP, _ = netip.AddrFromSlice(arp.SourceProtAddress)
	pkt.TargetIP, _ = netip.AddrFromSlice(arp.DstProtAddress)
	return pkt, nil
}
