package blockfile

import "errors"

// Error kinds raised while reading a raw blkNNNNN.dat block.
var (
	// ErrTruncatedInput means the file ended before a required field
	// (magic, size, or header) could be read in full.
	ErrTruncatedInput = errors.New("blockfile: truncated input")
	// ErrMagicMismatch means the four bytes at the expected offset are
	// not the network's magic value — the caller's (file, offset) pair
	// from the canonical-chain resolver is wrong, or the file is corrupt.
	ErrMagicMismatch = errors.New("blockfile: magic bytes do not match network magic")
	// ErrHashMismatch means the header decoded cleanly but its
	// double-SHA256 does not equal the hash the caller expected.
	ErrHashMismatch = errors.New("blockfile: parsed header hash does not match expected hash")
)
