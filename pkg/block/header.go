package block

import (
	"encoding/binary"
	"fmt"

	"github.com/pivx-project/chainindex/pkg/codec"
	"github.com/pivx-project/chainindex/pkg/types"
)

// legacyHeaderSize is the pre-accumulator-checkpoint header length.
// extendedHeaderSize adds one trailing 32-byte root (accumulator
// checkpoint or final Sapling root, depending on era).
const (
	legacyHeaderSize   = 80
	extendedHeaderSize = 112
)

// HeaderSize returns the on-disk header length for a given block version.
// Versions below 4 use the legacy 80-byte header; version 7 is a one-off
// exception that also stays at 80 bytes; everything else in the extended
// range carries one extra 32-byte root.
func HeaderSize(version uint32) int {
	if version < 4 || version == 7 {
		return legacyHeaderSize
	}
	return extendedHeaderSize
}

// Header is a raw block header as stored on disk. ExtraRoot holds the
// trailing 32-byte field extended-format headers carry; its exact meaning
// (zerocoin accumulator checkpoint vs. final Sapling root) is an era
// convention the indexer does not need to interpret.
type Header struct {
	Version    uint32     `json:"version"`
	PrevHash   types.Hash `json:"prev_hash"`
	MerkleRoot types.Hash `json:"merkle_root"`
	Time       uint32     `json:"time"`
	Bits       uint32     `json:"bits"`
	Nonce      uint32     `json:"nonce"`
	ExtraRoot  *types.Hash `json:"extra_root,omitempty"`
}

// Encode serializes the header to its canonical on-disk byte layout.
func (h *Header) Encode() []byte {
	size := HeaderSize(h.Version)
	buf := make([]byte, 0, size)
	buf = binary.LittleEndian.AppendUint32(buf, h.Version)
	buf = append(buf, h.PrevHash.Bytes()...)
	buf = append(buf, h.MerkleRoot.Bytes()...)
	buf = binary.LittleEndian.AppendUint32(buf, h.Time)
	buf = binary.LittleEndian.AppendUint32(buf, h.Bits)
	buf = binary.LittleEndian.AppendUint32(buf, h.Nonce)
	if size == extendedHeaderSize {
		if h.ExtraRoot != nil {
			buf = append(buf, h.ExtraRoot.Bytes()...)
		} else {
			buf = append(buf, make([]byte, types.HashSize)...)
		}
	}
	return buf
}

// DecodeHeader parses a raw on-disk header of the given length (80 or
// 112 bytes, per HeaderSize).
func DecodeHeader(data []byte) (*Header, error) {
	if len(data) != legacyHeaderSize && len(data) != extendedHeaderSize {
		return nil, fmt.Errorf("block: header must be %d or %d bytes, got %d", legacyHeaderSize, extendedHeaderSize, len(data))
	}
	h := &Header{}
	h.Version = binary.LittleEndian.Uint32(data[0:4])
	prevHash, err := types.HashFromInternal(data[4:36])
	if err != nil {
		return nil, err
	}
	h.PrevHash = prevHash
	merkleRoot, err := types.HashFromInternal(data[36:68])
	if err != nil {
		return nil, err
	}
	h.MerkleRoot = merkleRoot
	h.Time = binary.LittleEndian.Uint32(data[68:72])
	h.Bits = binary.LittleEndian.Uint32(data[72:76])
	h.Nonce = binary.LittleEndian.Uint32(data[76:80])
	if len(data) == extendedHeaderSize {
		extra, err := types.HashFromInternal(data[80:112])
		if err != nil {
			return nil, err
		}
		h.ExtraRoot = &extra
	}
	return h, nil
}

// Hash returns the double-SHA256 block hash of the raw header bytes.
func (h *Header) Hash() (types.Hash, error) {
	digest := codec.Sha256d(h.Encode())
	return types.HashFromInternal(digest[:])
}
