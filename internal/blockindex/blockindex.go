// Package blockindex implements the canonical-chain resolver: it
// reads the node's on-disk block-index store and reconstructs the best
// chain by accumulated chainwork, the same rule the node itself uses to
// pick a tip.
package blockindex

import (
	"math/big"
	"sort"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/pivx-project/chainindex/pkg/codec"
	"github.com/pivx-project/chainindex/pkg/types"
)

// blockHaveData and blockHaveUndo are CDiskBlockIndex status bits that
// gate whether a file/data-position pair (and an undo position) follow
// the header-adjacent fields in the index record.
const (
	blockHaveData = 8
	blockHaveUndo = 16
)

// Entry is one block as known to the index store, with its position in
// the canonical chain once resolved.
type Entry struct {
	Height     int32
	Hash       types.Hash // internal byte order
	PrevHash   types.Hash // internal byte order
	Bits       uint32
	File       uint32
	HasFile    bool
	DataPos    uint64
	HasDataPos bool
	Chainwork  *big.Int
}

// ReadChain opens the node's block-index store at dbPath, parses every
// CDiskBlockIndex record, computes chainwork, and returns the canonical
// chain from genesis to the highest-chainwork tip, in ascending height
// order. genesisHash is the expected internal-order hash of height 0,
// used as the chainwork computation's root.
//
// A walk that cannot reach genesis does not error: it returns the
// longest reachable prefix and reports partial=true.
func ReadChain(dbPath string, genesisHash types.Hash) (chain []Entry, partial bool, err error) {
	db, err := leveldb.OpenFile(dbPath, &opt.Options{ReadOnly: true})
	if err != nil {
		return nil, false, err
	}
	defer db.Close()

	byHash := make(map[types.Hash]*Entry)
	byHeight := make(map[int32][]types.Hash)

	iter := db.NewIterator(util.BytesPrefix([]byte("b")), nil)
	for iter.Next() {
		key := iter.Key()
		if len(key) != 33 {
			continue
		}
		var hash types.Hash
		copy(hash[:], key[1:])

		entry, perr := parseDiskBlockIndex(iter.Value())
		if perr != nil {
			continue
		}
		entry.Hash = hash
		byHash[hash] = entry
		byHeight[entry.Height] = append(byHeight[entry.Height], hash)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, false, err
	}

	if len(byHeight) == 0 {
		return nil, false, nil
	}

	var maxHeight int32
	for h := range byHeight {
		if h > maxHeight {
			maxHeight = h
		}
	}

	// Chainwork is the node's own proof-of-work/proof-of-stake weight:
	// chainwork(h) = chainwork(h-1) + 2^256/(target(bits)+1). Starting
	// from genesis and walking heights ascending avoids recursion over
	// what is otherwise a DAG of prev-hash edges.
	if genesis, ok := byHash[genesisHash]; ok {
		genesis.Chainwork = blockProof(genesis.Bits)
	}
	for height := int32(1); height <= maxHeight; height++ {
		for _, hash := range byHeight[height] {
			entry := byHash[hash]
			parent, ok := byHash[entry.PrevHash]
			if !ok || parent.Chainwork == nil {
				continue
			}
			entry.Chainwork = new(big.Int).Add(parent.Chainwork, blockProof(entry.Bits))
		}
	}

	// The tip is the highest-chainwork block among the top ~100 heights,
	// tolerating stale/orphaned siblings at those heights.
	tip := bestTip(byHash, byHeight, maxHeight)
	if tip == nil {
		return nil, false, nil
	}

	chain = make([]Entry, 0, tip.Height+1)
	current := tip
	for {
		chain = append(chain, *current)
		if current.PrevHash.IsZero() {
			break
		}
		parent, ok := byHash[current.PrevHash]
		if !ok {
			partial = true
			break
		}
		current = parent
	}

	sort.Slice(chain, func(i, j int) bool { return chain[i].Height < chain[j].Height })
	return chain, partial, nil
}

const tipSearchWindow = 100

func bestTip(byHash map[types.Hash]*Entry, byHeight map[int32][]types.Hash, maxHeight int32) *Entry {
	var best *Entry
	low := maxHeight - tipSearchWindow
	if low < 0 {
		low = 0
	}
	for height := maxHeight; height >= low; height-- {
		for _, hash := range byHeight[height] {
			entry := byHash[hash]
			if entry.Chainwork == nil {
				continue
			}
			if best == nil || entry.Chainwork.Cmp(best.Chainwork) > 0 {
				best = entry
			}
		}
	}
	if best != nil {
		return best
	}
	// Fallback: no block in the search window carries chainwork (e.g. a
	// disconnected genesis). Use the first block at max height.
	if hashes := byHeight[maxHeight]; len(hashes) > 0 {
		return byHash[hashes[0]]
	}
	return nil
}

// blockProof computes 2^256 / (target(bits)+1), the node's "work" a
// single block contributes to chainwork.
func blockProof(bits uint32) *big.Int {
	target := compactToTarget(bits)
	if target.Sign() == 0 {
		return big.NewInt(0)
	}
	denom := new(big.Int).Add(target, big.NewInt(1))
	num := new(big.Int).Lsh(big.NewInt(1), 256)
	return new(big.Int).Div(num, denom)
}

// compactToTarget expands the node's compact "nBits" difficulty
// encoding into a 256-bit target.
func compactToTarget(bits uint32) *big.Int {
	size := bits >> 24
	word := bits & 0x007fffff
	target := new(big.Int).SetUint64(uint64(word))
	if size <= 3 {
		return target.Rsh(target, uint(8*(3-size)))
	}
	return target.Lsh(target, uint(8*(size-3)))
}

// parseDiskBlockIndex decodes a CDiskBlockIndex record: serialization
// version, height, status, tx count, optional file/data-position (when
// BLOCK_HAVE_DATA|BLOCK_HAVE_UNDO), optional undo position, then a
// version-length header carrying prev_hash and nBits.
func parseDiskBlockIndex(value []byte) (*Entry, error) {
	c := cursor{data: value}

	if _, err := c.varintSigned(); err != nil { // nSerVersion
		return nil, err
	}
	height, err := c.varint() // nHeight
	if err != nil {
		return nil, err
	}
	status, err := c.varint() // nStatus
	if err != nil {
		return nil, err
	}
	if _, err := c.varint(); err != nil { // nTx
		return nil, err
	}

	entry := &Entry{Height: int32(height)}

	if status&(blockHaveData|blockHaveUndo) != 0 {
		file, err := c.varintSigned() // nFile
		if err != nil {
			return nil, err
		}
		if file >= 0 {
			entry.File = uint32(file)
			entry.HasFile = true
		}
	}
	if status&blockHaveData != 0 {
		pos, err := c.varint() // nDataPos
		if err != nil {
			return nil, err
		}
		entry.DataPos = pos
		entry.HasDataPos = true
	}
	if status&blockHaveUndo != 0 {
		if _, err := c.varint(); err != nil { // nUndoPos
			return nil, err
		}
	}

	if _, err := c.bytes(4); err != nil { // nFlags
		return nil, err
	}
	if _, err := c.bytes(4); err != nil { // nVersion (block header version, unused here)
		return nil, err
	}
	if _, err := c.vector(); err != nil { // vStakeModifier
		return nil, err
	}
	prevHash, err := c.bytes(32) // hashPrev, internal order
	if err != nil {
		return nil, err
	}
	copy(entry.PrevHash[:], prevHash)
	if _, err := c.bytes(32); err != nil { // hashMerkleRoot, unused for chainwork
		return nil, err
	}
	if _, err := c.bytes(4); err != nil { // nTime, unused for chainwork
		return nil, err
	}
	bitsBytes, err := c.bytes(4)
	if err != nil {
		return nil, err
	}
	entry.Bits = uint32(bitsBytes[0]) | uint32(bitsBytes[1])<<8 | uint32(bitsBytes[2])<<16 | uint32(bitsBytes[3])<<24

	return entry, nil
}

// cursor walks a CDiskBlockIndex byte slice, tracking the read offset.
type cursor struct {
	data []byte
	pos  int
}

func (c *cursor) varint() (uint64, error) {
	v, n, err := codec.ReadCoreVarint(c.data[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += n
	return v, nil
}

func (c *cursor) varintSigned() (int64, error) {
	v, n, err := codec.ReadCoreVarintSigned(c.data[c.pos:])
	if err != nil {
		return 0, err
	}
	c.pos += n
	return v, nil
}

func (c *cursor) bytes(n int) ([]byte, error) {
	if c.pos+n > len(c.data) {
		return nil, codec.ErrTruncatedInput
	}
	b := c.data[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

func (c *cursor) vector() ([]byte, error) {
	size, err := c.varint()
	if err != nil {
		return nil, err
	}
	return c.bytes(int(size))
}
