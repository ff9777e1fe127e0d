package capture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingGeometry(t *testing.T) {
	tests := []struct {
		name     string
		bufferMB int
		snapLen  int
	}{
		{"arp sized frames", 2, 128},
		{"ethernet mtu", 8, 1518},
		{"jumbo", 16, 9000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, block, n, err := ringGeometry(tt.bufferMB, tt.snapLen, 4096)
			require.NoError(t, err)
			assert.Zero(t, frame%tpacketAlignment)
			assert.GreaterOrEqual(t, frame, tt.snapLen+tpacketHdrLen)
			assert.Zero(t, block%4096)
			assert.Zero(t, block%frame)
			assert.LessOrEqual(t, block, maxBlockSize)
			assert.GreaterOrEqual(t, n, 1)
		})
	}
}

func TestRingGeometryInvalid(t *testing.T) {
	_, _, _, err := ringGeometry(0, 128, 4096)
	assert.Error(t, err)
	_, _, _, err = ringGeometry(1, 0, 4096)
	assert.Error(t, err)
	_, _, _, err = ringGeometry(1, 128, 4095)
	assert.Error(t, err)
}
