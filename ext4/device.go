package ext4

import (
	"io"

	"golang.org/x/xerrors"
)

// BlockDevice is the single positioned-read primitive the core depends on.
// Anything backing an ext4 image — an *os.File, a partition window, an
// in-memory buffer — need only satisfy io.ReaderAt. Per the design note on
// cursor vs. positioned I/O duality, the facade builds every other access
// pattern (whole-block reads, sequential scans) on top of this one.
type BlockDevice = io.ReaderAt

// readAt fills buf from offset, surfacing short reads as a typed IOError.
func readAt(r BlockDevice, offset int64, buf []byte) error {
	n, err := r.ReadAt(buf, offset)
	if err != nil && !(err == io.EOF && n == len(buf)) {
		return newError(IOError, "read_at", xerrors.Errorf("offset %d: %w", offset, err))
	}
	return nil
}

// readBlock reads a single filesystem block identified by its block number.
func readBlock(r BlockDevice, blockSize int64, blockNumber int64) ([]byte, error) {
	buf := make([]byte, blockSize)
	if err := readAt(r, blockNumber*blockSize, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
