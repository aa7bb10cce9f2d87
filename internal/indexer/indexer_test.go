package indexer

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/pivx-project/chainindex/internal/blockfile"
	"github.com/pivx-project/chainindex/internal/blockindex"
	"github.com/pivx-project/chainindex/internal/chainstate"
	"github.com/pivx-project/chainindex/internal/storage"
	"github.com/pivx-project/chainindex/internal/store"
	"github.com/pivx-project/chainindex/pkg/block"
	"github.com/pivx-project/chainindex/pkg/codec"
	"github.com/pivx-project/chainindex/pkg/types"
)

func p2pkhScript(hash [20]byte) []byte {
	s := make([]byte, 25)
	s[0] = 0x76
	s[1] = 0xa9
	s[2] = 0x14
	copy(s[3:23], hash[:])
	s[23] = 0x88
	s[24] = 0xac
	return s
}

// encodeTx builds the raw wire bytes for a version-1 transaction (no
// Sapling fields), matching what internal/txparser.parseTransaction
// expects to read back.
type txIn struct {
	prevTxid types.Hash
	prevVout uint32
	script   []byte
}

type txOut struct {
	value  int64
	script []byte
}

func encodeTx(t *testing.T, ins []txIn, outs []txOut) []byte {
	t.Helper()
	var buf []byte
	buf = append(buf, 0x01, 0x00) // version 1
	buf = append(buf, 0x00, 0x00) // type 0

	buf = codec.WriteCompactSize(buf, uint64(len(ins)))
	for _, in := range ins {
		buf = append(buf, in.prevTxid.Bytes()...)
		var v [4]byte
		v[0], v[1], v[2], v[3] = byte(in.prevVout), byte(in.prevVout>>8), byte(in.prevVout>>16), byte(in.prevVout>>24)
		buf = append(buf, v[:]...)
		buf = codec.WriteCompactSize(buf, uint64(len(in.script)))
		buf = append(buf, in.script...)
		buf = append(buf, 0xff, 0xff, 0xff, 0xff) // sequence
	}

	buf = codec.WriteCompactSize(buf, uint64(len(outs)))
	for _, out := range outs {
		var v [8]byte
		uv := uint64(out.value)
		for i := 0; i < 8; i++ {
			v[i] = byte(uv >> (8 * i))
		}
		buf = append(buf, v[:]...)
		buf = codec.WriteCompactSize(buf, uint64(len(out.script)))
		buf = append(buf, out.script...)
	}

	buf = append(buf, 0x00, 0x00, 0x00, 0x00) // locktime
	return buf
}

func txidOf(raw []byte) types.Hash {
	digest := codec.Sha256d(raw)
	h, _ := types.HashFromInternal(digest[:])
	return h
}

// writeBlock writes one block to blkDir's file number 0 at the given
// byte offset, returning its header hash. Framing matches internal/blockfile's NetworkMagic|size|header
// layout.
func writeBlock(t *testing.T, blkDir string, offset uint64, header *block.Header, txRaws [][]byte) types.Hash {
	t.Helper()
	var body []byte
	body = codec.WriteCompactSize(body, uint64(len(txRaws)))
	for _, raw := range txRaws {
		body = append(body, raw...)
	}

	encoded := header.Encode()
	var frame []byte
	frame = append(frame, blockfile.NetworkMagic[:]...)
	size := uint32(len(encoded) + len(body))
	frame = append(frame, byte(size), byte(size>>8), byte(size>>16), byte(size>>24))
	frame = append(frame, encoded...)
	frame = append(frame, body...)

	path := filepath.Join(blkDir, "blk00000.dat")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open blk file: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteAt(frame, int64(offset)); err != nil {
		t.Fatalf("write blk file: %v", err)
	}

	hash, err := header.Hash()
	if err != nil {
		t.Fatalf("hash header: %v", err)
	}
	return hash
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(storage.NewMemory())
}

func TestRunCommitsInAscendingHeightOrder(t *testing.T) {
	dir := t.TempDir()
	st := newTestStore(t)

	var addrA, addrB [20]byte
	addrA[0] = 0xAA
	addrB[0] = 0xBB

	coinbaseRaw := encodeTx(t,
		[]txIn{{prevVout: 0xFFFFFFFF}},
		[]txOut{{value: 500_000_000, script: p2pkhScript(addrA)}},
	)
	coinbaseTxid := txidOf(coinbaseRaw)

	h0 := &block.Header{Version: 1, Nonce: 1}
	hash0 := writeBlock(t, dir, 0, h0, [][]byte{coinbaseRaw})

	spendRaw := encodeTx(t,
		[]txIn{{prevTxid: coinbaseTxid, prevVout: 0}},
		[]txOut{{value: 400_000_000, script: p2pkhScript(addrB)}},
	)

	h1 := &block.Header{Version: 1, Nonce: 2, PrevHash: hash0}
	offset1 := uint64(4 + 4 + len(h0.Encode())) + sizeOfBlockBody(t, [][]byte{coinbaseRaw})
	hash1 := writeBlock(t, dir, offset1, h1, [][]byte{spendRaw})

	chain := []blockindex.Entry{
		{Height: 0, Hash: hash0, File: 0, HasFile: true, DataPos: 0, HasDataPos: true, Chainwork: big.NewInt(1)},
		{Height: 1, Hash: hash1, File: 0, HasFile: true, DataPos: offset1, HasDataPos: true, Chainwork: big.NewInt(2)},
	}

	ix := New(st, dir, 4, false)
	if err := ix.Run(context.Background(), chain); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tracker := chainstate.New(st)
	syncHeight, err := tracker.GetSyncHeight()
	if err != nil {
		t.Fatalf("GetSyncHeight: %v", err)
	}
	if syncHeight != 1 {
		t.Errorf("sync height = %d, want 1", syncHeight)
	}

	gotHash0, ok0, err := tracker.HashAtHeight(0)
	if err != nil || !ok0 || gotHash0 != hash0 {
		t.Errorf("HashAtHeight(0) = %v, %v, %v, want %v, true, nil", gotHash0, ok0, err, hash0)
	}
	gotHash1, ok1, err := tracker.HashAtHeight(1)
	if err != nil || !ok1 || gotHash1 != hash1 {
		t.Errorf("HashAtHeight(1) = %v, %v, %v, want %v, true, nil", gotHash1, ok1, err, hash1)
	}

	addrBType := types.Address{Version: types.VersionP2PKH, Hash: addrB}
	received, err := ix.engine.GetReceived(addrBType)
	if err != nil {
		t.Fatalf("GetReceived: %v", err)
	}
	if received != 400_000_000 {
		t.Errorf("received(B) = %d, want 400000000", received)
	}
}

func TestRunTwoPassOptimizationAcrossWindow(t *testing.T) {
	dir := t.TempDir()
	st := newTestStore(t)

	var addrA [20]byte
	addrA[0] = 0xAA

	bornRaw := encodeTx(t,
		[]txIn{{prevVout: 0xFFFFFFFF}},
		[]txOut{{value: 100, script: p2pkhScript(addrA)}},
	)
	bornTxid := txidOf(bornRaw)

	h0 := &block.Header{Version: 1, Nonce: 9}
	hash0 := writeBlock(t, dir, 0, h0, [][]byte{bornRaw})

	spendRaw := encodeTx(t,
		[]txIn{{prevTxid: bornTxid, prevVout: 0}},
		[]txOut{{value: 90, script: p2pkhScript(addrA)}},
	)
	h1 := &block.Header{Version: 1, Nonce: 10, PrevHash: hash0}
	offset1 := uint64(8+len(h0.Encode())) + sizeOfBlockBody(t, [][]byte{bornRaw})
	hash1 := writeBlock(t, dir, offset1, h1, [][]byte{spendRaw})

	chain := []blockindex.Entry{
		{Height: 0, Hash: hash0, File: 0, HasFile: true, DataPos: 0, HasDataPos: true, Chainwork: big.NewInt(1)},
		{Height: 1, Hash: hash1, File: 0, HasFile: true, DataPos: offset1, HasDataPos: true, Chainwork: big.NewInt(2)},
	}

	ix := New(st, dir, 2, false)
	if err := ix.Run(context.Background(), chain); err != nil {
		t.Fatalf("Run: %v", err)
	}

	addrType := types.Address{Version: types.VersionP2PKH, Hash: addrA}
	utxos, err := ix.engine.GetUTXOs(addrType)
	if err != nil {
		t.Fatalf("GetUTXOs: %v", err)
	}
	// The born-in-height-0 output is spent in height-1, both within one
	// indexing window: it must never have been added to the UTXO list,
	// and the height-1 spend must resolve through the pending map
	// rather than a store lookup.
	for _, op := range utxos {
		if op.TxID == bornTxid {
			t.Errorf("utxo list still contains born-and-spent outpoint %v", op)
		}
	}
}

func TestRunFastSyncSkipsHashVerification(t *testing.T) {
	dir := t.TempDir()
	st := newTestStore(t)

	raw := encodeTx(t, []txIn{{prevVout: 0xFFFFFFFF}}, []txOut{{value: 1, script: []byte{0x51}}})
	h0 := &block.Header{Version: 1, Nonce: 42}
	writeBlock(t, dir, 0, h0, [][]byte{raw})

	// A chain entry carrying a deliberately wrong hash: ordinary ReadBlock
	// would reject it with ErrHashMismatch, fastSync must not.
	var wrongHash types.Hash
	wrongHash[0] = 0xFF
	chain := []blockindex.Entry{
		{Height: 0, Hash: wrongHash, File: 0, HasFile: true, DataPos: 0, HasDataPos: true, Chainwork: big.NewInt(1)},
	}

	ix := New(st, dir, 1, true)
	if err := ix.Run(context.Background(), chain); err != nil {
		t.Fatalf("Run with fastSync: %v", err)
	}

	tracker := chainstate.New(st)
	syncHeight, err := tracker.GetSyncHeight()
	if err != nil {
		t.Fatalf("GetSyncHeight: %v", err)
	}
	if syncHeight != 0 {
		t.Errorf("sync height = %d, want 0", syncHeight)
	}
}

func TestRunSkipsUnparseableBlock(t *testing.T) {
	dir := t.TempDir()
	st := newTestStore(t)

	h0 := &block.Header{Version: 1, Nonce: 1}
	hash0 := writeBlock(t, dir, 0, h0, nil)

	// Height 1 is declared in the chain but has no backing file data:
	// parseOne must fail for it without aborting the whole run.
	chain := []blockindex.Entry{
		{Height: 0, Hash: hash0, File: 0, HasFile: true, DataPos: 0, HasDataPos: true, Chainwork: big.NewInt(1)},
		{Height: 1, Hash: types.Hash{}, File: 0, HasFile: false, HasDataPos: false, Chainwork: big.NewInt(2)},
	}

	ix := New(st, dir, 2, false)
	if err := ix.Run(context.Background(), chain); err != nil {
		t.Fatalf("Run: %v", err)
	}

	tracker := chainstate.New(st)
	syncHeight, err := tracker.GetSyncHeight()
	if err != nil {
		t.Fatalf("GetSyncHeight: %v", err)
	}
	if syncHeight != 0 {
		t.Errorf("sync height = %d, want 0 (height 1 skipped)", syncHeight)
	}
}

func TestLookupPrevTxFallsBackToStore(t *testing.T) {
	dir := t.TempDir()
	st := newTestStore(t)
	ix := New(st, dir, 1, false)

	raw := encodeTx(t, []txIn{{prevVout: 0xFFFFFFFF}}, []txOut{{value: 7, script: []byte{0x51}}})
	txid := txidOf(raw)

	record := store.EncodeTxRecord(1, 3, raw)
	batch := st.NewBatch(0)
	if err := batch.Put(store.CFTransactions, txid.Bytes(), record); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := batch.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	outs, err := ix.lookupPrevTx(txid)
	if err != nil {
		t.Fatalf("lookupPrevTx: %v", err)
	}
	if len(outs) != 1 || outs[0].Value != 7 {
		t.Errorf("outs = %v, want single output of value 7", outs)
	}
}

func TestLookupPrevTxMissingReturnsError(t *testing.T) {
	dir := t.TempDir()
	st := newTestStore(t)
	ix := New(st, dir, 1, false)

	var missing types.Hash
	missing[0] = 0x01
	if _, err := ix.lookupPrevTx(missing); err == nil {
		t.Fatal("expected ErrMissingPrevTx, got nil")
	}
}

// sizeOfBlockBody computes the byte length of a block's post-header
// body (the leading tx-count compactsize plus each tx's raw bytes),
// mirroring how writeBlock frames it, so tests can compute a second
// block's on-disk offset within the same file.
func sizeOfBlockBody(t *testing.T, txRaws [][]byte) uint64 {
	t.Helper()
	var body []byte
	body = codec.WriteCompactSize(body, uint64(len(txRaws)))
	for _, raw := range txRaws {
		body = append(body, raw...)
	}
	return uint64(len(body))
}
