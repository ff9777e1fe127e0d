//go:build linux

package capture

import (
	"errors"
	"fmt"
	"os"

	"github.com/google/gopacket/afpacket"

	"firestige.xyz/arpguard/internal/config"
)

// OpenLink opens an AF_PACKET ring on the named interface that only
// delivers ARP frames.
func OpenLink(name string, cfg config.CaptureConfig) (Link, error) {
	frameSize, blockSize, numBlocks, err := ringGeometry(cfg.BufferSizeMB, cfg.SnapLen, os.Getpagesize())
	if err != nil {
		return nil, err
	}

	tp, err := afpacket.NewTPacket(
		afpacket.OptInterface(name),
		afpacket.OptFrameSize(frameSize),
		afpacket.OptBlockSize(blockSize),
		afpacket.OptNumBlocks(numBlocks),
		afpacket.OptPollTimeout(cfg.PollTimeout),
		afpacket.SocketRaw,
		afpacket.TPacketVersion3,
	)
	if err != nil {
		return nil, fmt.Errorf("open af_packet on %s: %w", name, err)
	}

	filter, err := arpFilter(cfg.SnapLen)
	if err != nil {
		tp.Close()
		return nil, err
	}
	if err := tp.SetBPF(filter); err != nil {
		tp.Close()
		return nil, fmt.Errorf("attach arp filter on %s: %w", name, err)
	}
	return tp, nil
}

// isTimeout reports whether a read ended because the poll timeout expired.
func isTimeout(err error) bool {
	return errors.Is(err, afpacket.ErrTimeout)
}
