// Package codec builds and parses ARP messages and the Ethernet frames that carry them.
package codec

import "firestige.xyz/arpguard/internal/core"

const (
	protoIPv4   uint16 = 0x0800
	protoAX25IP uint16 = 0x00cc

	hwEthernet uint16 = uint16(core.MediaEthernet)
	hwIEEE802  uint16 = uint16(core.MediaIEEE802)
)

// typesFor returns the hardware and protocol type written for media m.
// Unknown media fall back to the generic encoding.
func typesFor(m core.Media) (hrd, pro uint16) {
	switch m {
	case core.MediaAX25:
		return uint16(core.MediaAX25), protoAX25IP
	case core.MediaNetROM:
		return uint16(core.MediaNetROM), protoAX25IP
	case core.MediaFDDI:
		return hwEthernet, protoIPv4
	default:
		return uint16(m), protoIPv4
	}
}

// accepts reports whether a received hardware/protocol pair is legal on media m.
func accepts(m core.Media, hrd, pro uint16) bool {
	switch m {
	case core.MediaEthernet, core.MediaIEEE802, core.MediaFDDI:
		return (hrd == hwEthernet || hrd == hwIEEE802) && pro == protoIPv4
	case core.MediaAX25:
		return hrd == uint16(core.MediaAX25) && pro == protoAX25IP
	case core.MediaNetROM:
		return hrd == uint16(core.MediaNetROM) && pro == protoAX25IP
	default:
		return hrd == uint16(m) && pro == protoIPv4
	}
}
