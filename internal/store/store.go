// Package store implements the indexed store and its atomic writer:
// a key-value database partitioned into six logical column families,
// each realized as a byte-prefixed namespace over a single underlying
// Badger instance. There is no engine-level column-family concept here —
// segregation is achieved the same way internal/storage.PrefixDB isolates
// sub-chains, by disjoint key prefixes rather than separate LSM trees.
package store

import (
	"encoding/binary"

	"github.com/pivx-project/chainindex/internal/storage"
)

// CF names one of the six logical column families.
type CF byte

const (
	// CFBlocks holds raw block headers, keyed by internal-order block hash.
	CFBlocks CF = iota + 1
	// CFTransactions holds transaction headers and raw bytes, keyed by
	// internal-order txid (Hash.Bytes()), not the display order.
	CFTransactions
	// CFAddrIndex holds per-address transaction history and the received/
	// sent aggregate counters.
	CFAddrIndex
	// CFUTXO holds the per-address unspent-output lists.
	CFUTXO
	// CFChainMetadata holds the canonical height/hash mapping, the
	// block-to-transaction index, and block undo records.
	CFChainMetadata
	// CFChainState holds the chain-state singleton keys and the
	// height-keyed duplicate-detection and processing-marker entries.
	CFChainState
)

var allCFs = [...]CF{CFBlocks, CFTransactions, CFAddrIndex, CFUTXO, CFChainMetadata, CFChainState}

// Key tags within a column family.
var (
	TagHeightToHash   = []byte("h|") // chain_metadata: height(BE4) -> hash
	TagHashToHeight   = []byte("i|") // chain_metadata: hash -> height(BE4)
	TagBlockTxIndex   = []byte("B|") // chain_metadata: height(BE4)|tx_index(BE4) -> txid hex
	TagUndoRecord     = []byte("addr_undo|")
	TagAddrHistory    = []byte("t|") // addr_index: address -> concatenated txids
	TagAddrReceived   = []byte("r|") // addr_index: address -> i64 cumulative received
	TagAddrSent       = []byte("s|") // addr_index: address -> i64 cumulative sent
	TagUTXOList       = []byte("a|") // utxo: address -> concatenated (txid,vout) entries
	TagDuplicateCheck = []byte("H|") // chain_state: height(BE4) -> canonical hash
	TagProcessing     = []byte("P|") // chain_state: height(BE4) -> processing marker
)

// Singleton chain_state keys (no tag, no suffix).
const (
	KeySyncHeight           = "sync_height"
	KeyNetworkHeight        = "network_height"
	KeyAddressIndexComplete = "address_index_complete"
	KeyEnrichmentHeight     = "enrichment_height"
)

// HeightBytes encodes a height as a 4-byte big-endian key component, so
// that lexicographic key ordering matches height ordering.
func HeightBytes(height int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(height))
	return b[:]
}

// HeightKey builds tag|height.
func HeightKey(tag []byte, height int32) []byte {
	out := make([]byte, 0, len(tag)+4)
	out = append(out, tag...)
	out = append(out, HeightBytes(height)...)
	return out
}

// HeightIndexKey builds tag|height|index, where index is itself a
// 4-byte big-endian value (the block-to-transaction index's tx_index).
func HeightIndexKey(tag []byte, height int32, index uint32) []byte {
	out := make([]byte, 0, len(tag)+8)
	out = append(out, tag...)
	out = append(out, HeightBytes(height)...)
	var ib [4]byte
	binary.BigEndian.PutUint32(ib[:], index)
	out = append(out, ib[:]...)
	return out
}

// TagKey builds tag|key for an arbitrary byte-slice key (an address or a
// hash).
func TagKey(tag []byte, key []byte) []byte {
	out := make([]byte, 0, len(tag)+len(key))
	out = append(out, tag...)
	out = append(out, key...)
	return out
}

// Sentinel heights a transaction record's height field carries in place
// of a positive canonical height.
const (
	HeightOrphan     int32 = -1
	HeightUnresolved int32 = -2
)

// EncodeTxRecord builds the transactions column family's value: tx
// version (2 bytes BE), height (4 bytes BE, one of HeightOrphan/
// HeightUnresolved/a positive canonical height), then the raw
// transaction bytes verbatim.
func EncodeTxRecord(version uint16, height int32, raw []byte) []byte {
	out := make([]byte, 0, 6+len(raw))
	out = append(out, byte(version>>8), byte(version))
	out = append(out, HeightBytes(height)...)
	out = append(out, raw...)
	return out
}

// DecodeTxRecord splits a transactions column family value back into
// its version, height, and raw transaction bytes.
func DecodeTxRecord(v []byte) (version uint16, height int32, raw []byte, ok bool) {
	if len(v) < 6 {
		return 0, 0, nil, false
	}
	version = uint16(v[0])<<8 | uint16(v[1])
	height = int32(binary.BigEndian.Uint32(v[2:6]))
	raw = v[6:]
	return version, height, raw, true
}

func (cf CF) prefix() []byte { return []byte{byte(cf)} }

func cfKey(cf CF, key []byte) []byte {
	out := make([]byte, 1+len(key))
	out[0] = byte(cf)
	copy(out[1:], key)
	return out
}

// Store is the indexed store. It serves point reads directly; all
// writes are funneled through a Batch so that a block's mutations
// land atomically across every column family they touch.
type Store struct {
	inner storage.DB
	cfs   map[CF]*storage.PrefixDB
}

// New wraps inner with the six fixed column families.
func New(inner storage.DB) *Store {
	cfs := make(map[CF]*storage.PrefixDB, len(allCFs))
	for _, cf := range allCFs {
		cfs[cf] = storage.NewPrefixDB(inner, cf.prefix())
	}
	return &Store{inner: inner, cfs: cfs}
}

// Get retrieves a value from the given column family.
func (s *Store) Get(cf CF, key []byte) ([]byte, error) {
	return s.cfs[cf].Get(key)
}

// Has reports whether a key exists in the given column family.
func (s *Store) Has(cf CF, key []byte) (bool, error) {
	return s.cfs[cf].Has(key)
}

// ForEach iterates keys under prefix within a column family. Keys passed
// to fn have the column family's own byte-prefix stripped.
func (s *Store) ForEach(cf CF, prefix []byte, fn func(key, value []byte) error) error {
	return s.cfs[cf].ForEach(prefix, fn)
}

// MultiGet batches point lookups for a single column family, skipping
// keys that don't exist rather than failing the whole call. It issues
// one point Get per key. It backs xpub's BatchHasHistory, which tests a
// batch of candidate addresses in one call.
func (s *Store) MultiGet(cf CF, keys [][]byte) (map[string][]byte, error) {
	cfdb := s.cfs[cf]
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		v, err := cfdb.Get(k)
		if err != nil {
			continue
		}
		out[string(k)] = v
	}
	return out, nil
}

// DefaultFlushThreshold is the pending-operation count at or above which
// ShouldFlush reports true, absent an explicit override.
const DefaultFlushThreshold = 2000

// NewBatch creates an atomic writer over the full keyspace, able to
// stage puts/deletes across every column family and commit them in one
// underlying transaction. threshold <= 0 selects DefaultFlushThreshold.
func (s *Store) NewBatch(threshold int) *Batch {
	if threshold <= 0 {
		threshold = DefaultFlushThreshold
	}
	newRaw := func() storage.Batch {
		if batcher, ok := s.inner.(storage.Batcher); ok {
			return batcher.NewBatch()
		}
		return &sequentialBatch{db: s.inner}
	}
	return &Batch{newRaw: newRaw, raw: newRaw(), threshold: threshold}
}

// Batch is the atomic writer. Put and Delete are fire-and-forget:
// they stage an operation and return only encoding/staging errors, never
// a commit error. Flush is the sole point at which writes reach the
// store, and it does so in one atomic transaction.
type Batch struct {
	newRaw    func() storage.Batch
	raw       storage.Batch
	pending   int
	threshold int
}

// Put stages a write to the given column family.
func (b *Batch) Put(cf CF, key, value []byte) error {
	if err := b.raw.Put(cfKey(cf, key), value); err != nil {
		return err
	}
	b.pending++
	return nil
}

// Delete stages a removal from the given column family.
func (b *Batch) Delete(cf CF, key []byte) error {
	if err := b.raw.Delete(cfKey(cf, key)); err != nil {
		return err
	}
	b.pending++
	return nil
}

// ShouldFlush reports whether the pending operation count has crossed
// the configured threshold. Callers check this between blocks and flush
// proactively rather than letting a batch grow unbounded.
func (b *Batch) ShouldFlush() bool {
	return b.pending >= b.threshold
}

// Pending returns the number of operations staged since the last Flush.
func (b *Batch) Pending() int {
	return b.pending
}

// Flush commits every staged operation in one atomic transaction. A
// no-op when nothing is pending. After Flush, the batch is ready to
// accept new operations for the next atomic commit.
func (b *Batch) Flush() error {
	if b.pending == 0 {
		return nil
	}
	if err := b.raw.Commit(); err != nil {
		return err
	}
	b.pending = 0
	b.raw = b.newRaw()
	return nil
}

// sequentialBatch is the non-atomic fallback used when the underlying DB
// doesn't implement storage.Batcher (e.g. the in-memory test database).
// It mirrors internal/storage's prefixFallbackBatch.
type sequentialBatch struct {
	db  storage.DB
	ops []sequentialOp
}

type sequentialOp struct {
	key   []byte
	value []byte // nil means delete
}

func (sb *sequentialBatch) Put(key, value []byte) error {
	sb.ops = append(sb.ops, sequentialOp{key: key, value: value})
	return nil
}

func (sb *sequentialBatch) Delete(key []byte) error {
	sb.ops = append(sb.ops, sequentialOp{key: key, value: nil})
	return nil
}

func (sb *sequentialBatch) Commit() error {
	for _, op := range sb.ops {
		if op.value == nil {
			if err := sb.db.Delete(op.key); err != nil {
				return err
			}
			continue
		}
		if err := sb.db.Put(op.key, op.value); err != nil {
			return err
		}
	}
	sb.ops = nil
	return nil
}
