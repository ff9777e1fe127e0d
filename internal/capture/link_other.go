//go:build !linux

package capture

import (
	"fmt"
	"runtime"

	"firestige.xyz/arpguard/internal/config"
)

// OpenLink is only available on Linux.
func OpenLink(name string, _ config.CaptureConfig) (Link, error) {
	return nil, fmt.Errorf("af_packet capture on %s is not supported on %s", name, runtime.GOOS)
}

func isTimeout(error) bool { return false }
