// Package capture moves ARP frames between the wire and the engine: one
// AF_PACKET link per interface, and a dispatcher that spreads packets over
// workers so that packets about the same sender are handled in order.
package capture

import "github.com/google/gopacket"

// Link receives and transmits raw frames on one interface.
// *afpacket.TPacket satisfies it.
type Link interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	WritePacketData(data []byte) error
	Close()
}
