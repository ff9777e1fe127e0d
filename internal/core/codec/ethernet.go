package codec

import (
	"bytes"
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"firestige.xyz/arpguard/internal/core"
)

// EthernetHeader is the link header in front of an ARP message.
type EthernetHeader struct {
	Dst       net.HardwareAddr
	Src       net.HardwareAddr
	EtherType uint16
	VLANs     []uint16
}

// ParseFrame splits an Ethernet frame into header and payload, skipping
// 802.1Q/QinQ tags.
func ParseFrame(data []byte) (EthernetHeader, []byte, error) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return EthernetHeader{}, nil, fmt.Errorf("%w: %v", core.ErrTruncated, err)
	}

	h := EthernetHeader{Dst: eth.DstMAC, Src: eth.SrcMAC}
	etherType, payload := eth.EthernetType, eth.Payload

	var tag layers.Dot1Q
	for etherType == layers.EthernetTypeDot1Q || etherType == layers.EthernetTypeQinQ {
		if err := tag.DecodeFromBytes(payload, gopacket.NilDecodeFeedback); err != nil {
			return h, nil, fmt.Errorf("%w: %v", core.ErrTruncated, err)
		}
		h.VLANs = append(h.VLANs, tag.VLANIdentifier)
		etherType, payload = tag.Type, tag.Payload
	}
	h.EtherType = uint16(etherType)

	return h, payload, nil
}

// IsARP reports whether the header carries an ARP payload.
func (h EthernetHeader) IsARP() bool {
	return layers.EthernetType(h.EtherType) == layers.EthernetTypeARP
}

// Frame wraps an ARP message in an Ethernet header addressed to dst.
func Frame(src, dst net.HardwareAddr, arp []byte) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       src,
		DstMAC:       dst,
		EthernetType: layers.EthernetTypeARP,
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{}, eth, gopacket.Payload(arp)); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrBuildFailed, err)
	}
	return buf.Bytes(), nil
}

// Classify derives how a frame reached ifi from its destination address.
func Classify(h EthernetHeader, ifi *core.Interface) core.PacketType {
	switch {
	case len(h.Src) > 0 && bytes.Equal(h.Src, ifi.HardwareAddr):
		return core.PacketOutgoing
	case bytes.Equal(h.Dst, ifi.HardwareAddr):
		return core.PacketHost
	case bytes.Equal(h.Dst, ifi.BroadcastAddr()):
		return core.PacketBroadcast
	case len(h.Dst) > 0 && h.Dst[0]&0x01 != 0:
		return core.PacketMulticast
	default:
		return core.PacketOtherHost
	}
}
