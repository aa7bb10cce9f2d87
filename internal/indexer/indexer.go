// Package indexer implements the initial bulk index pass: it drives
// the canonical-chain resolver, block-file reader, and
// transaction parser over the full chain history, handing every
// output and input to the address/UTXO engine and committing
// everything through one atomic batch per flush window.
package indexer

import (
	"context"
	"fmt"
	"io"

	"golang.org/x/sync/errgroup"

	"github.com/pivx-project/chainindex/internal/addrindex"
	"github.com/pivx-project/chainindex/internal/blockfile"
	"github.com/pivx-project/chainindex/internal/blockindex"
	"github.com/pivx-project/chainindex/internal/chainstate"
	"github.com/pivx-project/chainindex/internal/log"
	"github.com/pivx-project/chainindex/internal/metrics"
	"github.com/pivx-project/chainindex/internal/store"
	"github.com/pivx-project/chainindex/internal/txparser"
	"github.com/pivx-project/chainindex/pkg/block"
	"github.com/pivx-project/chainindex/pkg/tx"
	"github.com/pivx-project/chainindex/pkg/types"
)

// Indexer drives the full-history bulk index pass.
type Indexer struct {
	st            *store.Store
	blkDir        string
	parallelFiles int
	fastSync      bool
	tracker       *chainstate.Tracker
	engine        *addrindex.Engine

	// pending is the in-flight batch's own transactions, consulted by
	// lookupPrevTx before falling back to the store — a spend within
	// the same file/batch references an output the store doesn't know
	// about yet.
	pending map[types.Hash][]tx.Output
}

// New creates a bulk indexer. parallelFiles bounds how many block files
// are parsed concurrently (sync.parallel_files); fastSync, when true,
// skips the header double-SHA256 verification against the canonical
// hash the block index already committed to (sync.fast_sync).
func New(st *store.Store, blkDir string, parallelFiles int, fastSync bool) *Indexer {
	if parallelFiles <= 0 {
		parallelFiles = 1
	}
	ix := &Indexer{
		st:            st,
		blkDir:        blkDir,
		parallelFiles: parallelFiles,
		fastSync:      fastSync,
		tracker:       chainstate.New(st),
		pending:       make(map[types.Hash][]tx.Output),
	}
	ix.engine = addrindex.New(st, ix.lookupPrevTx)
	return ix
}

func (ix *Indexer) lookupPrevTx(txid types.Hash) ([]tx.Output, error) {
	if outs, ok := ix.pending[txid]; ok {
		return outs, nil
	}
	v, err := ix.st.Get(store.CFTransactions, txid.Bytes())
	if err != nil {
		return nil, fmt.Errorf("indexer: %w: prev tx %s not found: %v", ErrMissingPrevTx, txid, err)
	}
	_, _, raw, ok := store.DecodeTxRecord(v)
	if !ok {
		return nil, fmt.Errorf("indexer: %w: prev tx %s record truncated", ErrMissingPrevTx, txid)
	}
	parsed, err := txparser.ParseTransaction(0, raw)
	if err != nil {
		return nil, fmt.Errorf("indexer: parse stored prev tx %s: %w", txid, err)
	}
	return parsed.Outputs, nil
}

// parsedEntry is one file-parse stage's output, matched back to its
// position in the canonical chain so the commit stage can order it.
type parsedEntry struct {
	index  int
	entry  blockindex.Entry
	header *block.Header
	txs    []*tx.Transaction
	err    error
}

// indexWindow bounds how many chain entries are parsed and held in
// memory at once. Each window is committed in full before the next one
// is parsed, so an abort between windows resumes cleanly from the last
// committed sync_height.
const indexWindow = 1000

// Run indexes the full canonical chain into the store. chain must be in
// ascending-height order, as blockindex.ReadChain produces it. The chain
// is walked in windows of indexWindow entries: within a window, parsing
// fans out across ix.parallelFiles goroutines; commits happen on the
// calling goroutine in strict chain order, so chain-state and
// address-index mutations are never reordered even though parsing is
// not.
func (ix *Indexer) Run(ctx context.Context, chain []blockindex.Entry) error {
	for start := 0; start < len(chain); start += indexWindow {
		end := start + indexWindow
		if end > len(chain) {
			end = len(chain)
		}
		if err := ix.runWindow(ctx, chain[start:end]); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}

	// A completed pass over the whole canonical chain means the address
	// index now reflects full history; readers (the health surface, the
	// CLI's status command) key off this flag.
	batch := ix.st.NewBatch(0)
	if err := chainstate.SetAddressIndexComplete(batch, true); err != nil {
		return err
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

func (ix *Indexer) runWindow(ctx context.Context, chain []blockindex.Entry) error {
	if len(chain) == 0 {
		return nil
	}
	// The engine's staged-value overlay tracks the batch below; both
	// start fresh together, and an abandoned batch must not leave stale
	// overlay entries behind for the next window.
	defer ix.engine.Reset()

	results := make([]parsedEntry, len(chain))
	sem := make(chan struct{}, ix.parallelFiles)
	g, gctx := errgroup.WithContext(ctx)

loop:
	for i, entry := range chain {
		i, entry := i, entry
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			break loop
		}
		g.Go(func() error {
			defer func() { <-sem }()
			header, txs, err := ix.parseOne(entry)
			results[i] = parsedEntry{index: i, entry: entry, header: header, txs: txs, err: err}
			return nil // parse errors are per-entry, not fatal to the group
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	batch := ix.st.NewBatch(0)
	var windowBlocks [][]*tx.Transaction
	for _, r := range results {
		if r.err != nil {
			log.Indexer.Warn().Err(r.err).Int32("height", r.entry.Height).Msg("skipping unparseable block")
			continue
		}
		windowBlocks = append(windowBlocks, r.txs)
	}
	inBatch := addrindex.BuildInBatchSet(windowBlocks)

	for _, r := range results {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if r.err != nil {
			continue
		}

		for _, t := range r.txs {
			ix.pending[t.TxID] = t.Outputs
		}

		if err := ix.commitBlock(batch, r.entry, r.header, r.txs, inBatch); err != nil {
			return fmt.Errorf("indexer: commit height %d: %w", r.entry.Height, err)
		}

		if batch.ShouldFlush() {
			if err := batch.Flush(); err != nil {
				return fmt.Errorf("%w: %v", ErrStore, err)
			}
			ix.pending = make(map[types.Hash][]tx.Output)
		}
	}
	if err := batch.Flush(); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	ix.pending = make(map[types.Hash][]tx.Output)
	return nil
}

func (ix *Indexer) parseOne(entry blockindex.Entry) (*block.Header, []*tx.Transaction, error) {
	if !entry.HasFile || !entry.HasDataPos {
		return nil, nil, fmt.Errorf("indexer: height %d has no on-disk position", entry.Height)
	}

	var result *blockfile.Result
	var err error
	if ix.fastSync {
		result, err = blockfile.ReadBlockFast(ix.blkDir, entry.File, entry.DataPos)
	} else {
		result, err = blockfile.ReadBlock(ix.blkDir, entry.File, entry.DataPos, entry.Hash)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("indexer: read block: %w", err)
	}
	defer result.Close()

	headerSize := block.HeaderSize(result.Header.Version)
	txBytesLen := int(result.Size) - headerSize
	if txBytesLen < 0 {
		return nil, nil, fmt.Errorf("indexer: block size %d smaller than header %d", result.Size, headerSize)
	}
	txBytes := make([]byte, txBytesLen)
	if _, err := io.ReadFull(result.Reader, txBytes); err != nil {
		return nil, nil, fmt.Errorf("indexer: read transactions: %w", err)
	}

	txs, err := txparser.ParseBlockTransactions(result.Header.Version, txBytes)
	if err != nil && len(txs) == 0 {
		return nil, nil, fmt.Errorf("indexer: parse transactions: %w", err)
	}
	return result.Header, txs, nil
}

func (ix *Indexer) commitBlock(batch *store.Batch, entry blockindex.Entry, header *block.Header, txs []*tx.Transaction, inBatch addrindex.InBatchSet) error {
	if err := batch.Put(store.CFBlocks, entry.Hash.Bytes(), header.Encode()); err != nil {
		return err
	}
	if err := batch.Put(store.CFChainMetadata, store.HeightKey(store.TagHeightToHash, entry.Height), entry.Hash.Bytes()); err != nil {
		return err
	}
	if err := batch.Put(store.CFChainMetadata, store.TagKey(store.TagHashToHeight, entry.Hash.Bytes()), store.HeightBytes(entry.Height)); err != nil {
		return err
	}

	undo := &addrindex.Undo{Height: entry.Height}
	for i, t := range txs {
		record := store.EncodeTxRecord(t.Version, entry.Height, t.Raw)
		if err := batch.Put(store.CFTransactions, t.TxID.Bytes(), record); err != nil {
			return err
		}
		idxKey := store.HeightIndexKey(store.TagBlockTxIndex, entry.Height, uint32(i))
		if err := batch.Put(store.CFChainMetadata, idxKey, []byte(t.TxID.String())); err != nil {
			return err
		}
		if err := ix.engine.Apply(batch, undo, entry.Height, t, inBatch); err != nil {
			return fmt.Errorf("apply tx %s: %w", t.TxID, err)
		}
	}

	if err := addrindex.PutUndo(batch, undo); err != nil {
		return err
	}
	if err := chainstate.SetSyncHeight(batch, entry.Height); err != nil {
		return err
	}
	if err := chainstate.SetHashAtHeight(batch, entry.Height, entry.Hash); err != nil {
		return err
	}
	metrics.BlocksIndexed.WithLabelValues("bulk").Inc()
	metrics.SyncHeight.Set(float64(entry.Height))
	return nil
}
