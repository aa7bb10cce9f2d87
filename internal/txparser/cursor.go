package txparser

import (
	"encoding/binary"

	"github.com/pivx-project/chainindex/pkg/codec"
	"github.com/pivx-project/chainindex/pkg/types"
)

// cursor is a read position into an in-memory block's post-header
// bytes. Every transaction field in this package is a fixed-size or
// length-prefixed read from a buffer the caller already has in hand
// (the block-file reader hands back a cursor positioned right after
// the header; the initial indexer reads the remaining declared block
// size into memory before calling into this package), mirroring the
// slice-and-offset style pkg/codec and internal/blockindex already use
// rather than reading one byte at a time off a stream.
type cursor struct {
	data []byte
	pos  int
}

func newCursor(data []byte) *cursor {
	return &cursor{data: data}
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.data) {
		return nil, ErrTruncatedInput
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) skip(n int) error {
	_, err := c.bytes(n)
	return err
}

func (c *cursor) u16le() (uint16, error) {
	b, err := c.bytes(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (c *cursor) u32le() (uint32, error) {
	b, err := c.bytes(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (c *cursor) i64le() (int64, error) {
	b, err := c.bytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

// compactSize decodes a Bitcoin-family wire varint at the cursor.
func (c *cursor) compactSize() (uint64, error) {
	v, n, err := codec.ReadCompactSize(c.data[c.pos:])
	if err != nil {
		return 0, ErrTruncatedInput
	}
	c.pos += n
	return v, nil
}

// script reads a compact-size length-prefixed byte string.
func (c *cursor) script() ([]byte, error) {
	n, err := c.compactSize()
	if err != nil {
		return nil, err
	}
	b, err := c.bytes(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// hash32 reads 32 bytes in their on-disk (internal) byte order.
func (c *cursor) hash32() (types.Hash, error) {
	b, err := c.bytes(32)
	if err != nil {
		return types.Hash{}, err
	}
	return types.HashFromInternal(b)
}

// reversed32 reads 32 bytes and byte-reverses them, for the Sapling
// hash-shaped fields (cv, anchor, nullifier, rk, cmu, ephemeral key)
// that are stored in display (reversed) order rather than the wire
// order they're read in.
func (c *cursor) reversed32() ([32]byte, error) {
	b, err := c.bytes(32)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	for i, v := range b {
		out[31-i] = v
	}
	return out, nil
}

func (c *cursor) array64() ([64]byte, error) {
	b, err := c.bytes(64)
	if err != nil {
		return [64]byte{}, err
	}
	var out [64]byte
	copy(out[:], b)
	return out, nil
}

func (c *cursor) array192() ([192]byte, error) {
	b, err := c.bytes(192)
	if err != nil {
		return [192]byte{}, err
	}
	var out [192]byte
	copy(out[:], b)
	return out, nil
}

func (c *cursor) array580() ([580]byte, error) {
	b, err := c.bytes(580)
	if err != nil {
		return [580]byte{}, err
	}
	var out [580]byte
	copy(out[:], b)
	return out, nil
}

func (c *cursor) array80() ([80]byte, error) {
	b, err := c.bytes(80)
	if err != nil {
		return [80]byte{}, err
	}
	var out [80]byte
	copy(out[:], b)
	return out, nil
}
