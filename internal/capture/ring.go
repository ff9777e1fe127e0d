package capture

import "fmt"

const (
	tpacketAlignment = 16 // TPACKET_ALIGNMENT
	tpacketHdrLen    = 52 // TPACKET3_HDRLEN, rounded
	maxBlockSize     = 4 << 20
)

// ringGeometry sizes an AF_PACKET ring of about bufferMB megabytes for
// frames of snapLen bytes. The frame size is a multiple of
// TPACKET_ALIGNMENT and the block size a multiple of both the page size
// and the frame size.
func ringGeometry(bufferMB, snapLen, pageSize int) (frameSize, blockSize, numBlocks int, err error) {
	if bufferMB <= 0 {
		return 0, 0, 0, fmt.Errorf("buffer size must be positive, got %d MB", bufferMB)
	}
	if snapLen <= 0 {
		return 0, 0, 0, fmt.Errorf("snap length must be positive, got %d", snapLen)
	}
	if pageSize <= 0 || pageSize%tpacketAlignment != 0 {
		return 0, 0, 0, fmt.Errorf("page size must be a positive multiple of %d, got %d", tpacketAlignment, pageSize)
	}

	frameSize = align(tpacketHdrLen+snapLen, tpacketAlignment)

	blockSize = lcm(pageSize, frameSize)
	if blockSize > maxBlockSize {
		// Fall back to whole frames per page-aligned block.
		perBlock := maxBlockSize / frameSize
		if perBlock < 1 {
			perBlock = 1
		}
		blockSize = align(perBlock*frameSize, pageSize)
		for blockSize%frameSize != 0 && perBlock > 1 {
			perBlock--
			blockSize = align(perBlock*frameSize, pageSize)
		}
	}

	numBlocks = (bufferMB << 20) / blockSize
	if numBlocks < 1 {
		numBlocks = 1
	}
	return frameSize, blockSize, numBlocks, nil
}

func align(n, to int) int {
	return (n + to - 1) / to * to
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

func lcm(a, b int) int {
	if a == 0 || b == 0 {
		return 0
	}
	return a / gcd(a, b) * b
}
