// Package reorg implements chain rollback: walks the canonical
// chain backwards against the node's view to find the fork point, then
// unwinds every block above it through the address/UTXO engine's undo
// records, atomically, one height at a time.
package reorg

import (
	"context"
	"fmt"

	"github.com/pivx-project/chainindex/internal/addrindex"
	"github.com/pivx-project/chainindex/internal/chainstate"
	"github.com/pivx-project/chainindex/internal/indexer"
	"github.com/pivx-project/chainindex/internal/log"
	"github.com/pivx-project/chainindex/internal/metrics"
	"github.com/pivx-project/chainindex/internal/rpcclient"
	"github.com/pivx-project/chainindex/internal/store"
	"github.com/pivx-project/chainindex/pkg/types"
)

// Reorger finds a chain fork and rolls the store back to it.
type Reorger struct {
	st      *store.Store
	client  *rpcclient.Client
	engine  *addrindex.Engine
	tracker *chainstate.Tracker
}

// New creates a reorg engine.
func New(st *store.Store, client *rpcclient.Client, engine *addrindex.Engine) *Reorger {
	return &Reorger{st: st, client: client, engine: engine, tracker: chainstate.New(st)}
}

// Run walks backward from currentHeight comparing the stored canonical
// hash at each height against the node's, unwinds every block above the
// first match, and returns the fork height F the caller should resume
// catch-up from (at F+1).
func (r *Reorger) Run(ctx context.Context, currentHeight int32) (int32, error) {
	// Each unwound height flushes its own batch; an abort partway through
	// must not leave the engine's staged overlay out of step with the
	// store for the caller's next apply.
	defer r.engine.Reset()

	forkHeight, err := r.findForkHeight(ctx, currentHeight)
	if err != nil {
		return 0, fmt.Errorf("reorg: find fork height: %w", err)
	}
	log.Reorg.Warn().Int32("from", currentHeight).Int32("fork_height", forkHeight).Msg("rolling back to fork point")

	depth := currentHeight - forkHeight
	for h := currentHeight; h > forkHeight; h-- {
		if err := r.unwindHeight(h); err != nil {
			return 0, fmt.Errorf("reorg: unwind height %d: %w", h, err)
		}
	}
	if depth > 0 {
		metrics.ReorgDepth.Observe(float64(depth))
	}
	return forkHeight, nil
}

// findForkHeight walks backward one RPC call per step, comparing the
// stored canonical hash at h against the node's current hash at h. The
// first match is the fork height.
func (r *Reorger) findForkHeight(ctx context.Context, currentHeight int32) (int32, error) {
	for h := currentHeight; h > 0; h-- {
		storedHash, ok, err := r.tracker.HashAtHeight(h)
		if err != nil {
			return 0, err
		}
		if !ok {
			continue
		}
		nodeHashHex, err := r.client.GetBlockHash(ctx, h)
		if err != nil {
			return 0, fmt.Errorf("%w: getblockhash(%d): %v", rpcclient.ErrRPC, h, err)
		}
		nodeHash, err := types.HexToHash(nodeHashHex)
		if err != nil {
			return 0, fmt.Errorf("reorg: parse node hash at %d: %w", h, err)
		}
		if storedHash == nodeHash {
			return h, nil
		}
	}
	return 0, nil
}

// unwindHeight reverses one height's mutations in a single atomic batch:
// the address/UTXO engine's undo record is replayed backward, every
// transaction in the block is marked ORPHAN rather than deleted, the
// block's header, block-tx index entries, and canonical height mapping
// are removed, and the undo record itself is dropped. A missing undo
// record is logged and skipped rather than treated as fatal; address
// counters may drift until a full re-index.
func (r *Reorger) unwindHeight(height int32) error {
	undo, ok, err := addrindex.GetUndo(r.st, height)
	if err != nil {
		return fmt.Errorf("%w: load undo at height %d: %v", indexer.ErrStore, height, err)
	}

	hashBytes, err := r.st.Get(store.CFChainMetadata, store.HeightKey(store.TagHeightToHash, height))
	if err != nil {
		return fmt.Errorf("%w: read canonical hash at height %d: %v", indexer.ErrStore, height, err)
	}
	hash, err := types.HashFromInternal(hashBytes)
	if err != nil {
		return fmt.Errorf("reorg: decode canonical hash at height %d: %w", height, err)
	}

	batch := r.st.NewBatch(0)

	// Without an undo record the address index can't be rolled back for
	// this height (the counters will drift until a full re-index), but
	// the chain structure is still removed so the replacement branch can
	// be applied cleanly.
	if ok {
		if err := r.engine.Revert(batch, undo); err != nil {
			return fmt.Errorf("reorg: revert address index at height %d: %w", height, err)
		}
	} else {
		log.Reorg.Warn().Int32("height", height).Msg("undo record missing, unwinding chain structure without address-index rollback")
	}

	txids, err := r.blockTxIDs(height)
	if err != nil {
		return err
	}
	for _, txid := range txids {
		if err := r.orphanTransaction(batch, txid); err != nil {
			return err
		}
	}

	if err := r.removeBlockTxIndex(batch, height); err != nil {
		return err
	}

	if err := batch.Delete(store.CFBlocks, hash.Bytes()); err != nil {
		return err
	}
	if err := batch.Delete(store.CFChainMetadata, store.HeightKey(store.TagHeightToHash, height)); err != nil {
		return err
	}
	if err := batch.Delete(store.CFChainMetadata, store.TagKey(store.TagHashToHeight, hash.Bytes())); err != nil {
		return err
	}
	if err := addrindex.DeleteUndo(batch, height); err != nil {
		return err
	}
	if err := chainstate.DeleteHashAtHeight(batch, height); err != nil {
		return err
	}
	if err := chainstate.SetSyncHeight(batch, height-1); err != nil {
		return err
	}

	if err := batch.Flush(); err != nil {
		return fmt.Errorf("%w: %v", indexer.ErrStore, err)
	}
	return nil
}

// orphanTransaction rewrites a transaction's stored record with its
// height field set to store.HeightOrphan, preserving its version and
// raw bytes. Marking instead of deleting lets queries
// distinguish orphaned transactions from ones that never existed.
func (r *Reorger) orphanTransaction(batch *store.Batch, txid types.Hash) error {
	v, err := r.st.Get(store.CFTransactions, txid.Bytes())
	if err != nil {
		// Already gone or never indexed; nothing to mark.
		return nil
	}
	version, _, raw, ok := store.DecodeTxRecord(v)
	if !ok {
		return nil
	}
	record := store.EncodeTxRecord(version, store.HeightOrphan, raw)
	return batch.Put(store.CFTransactions, txid.Bytes(), record)
}

// blockTxIDs lists the txids indexed under B|height|*, in block order.
func (r *Reorger) blockTxIDs(height int32) ([]types.Hash, error) {
	prefix := store.HeightKey(store.TagBlockTxIndex, height)
	var txids []types.Hash
	if err := r.st.ForEach(store.CFChainMetadata, prefix, func(_, value []byte) error {
		h, err := types.HexToHash(string(value))
		if err != nil {
			return nil // a corrupt entry shouldn't abort the unwind
		}
		txids = append(txids, h)
		return nil
	}); err != nil {
		return nil, fmt.Errorf("%w: scan block-tx index at height %d: %v", indexer.ErrStore, height, err)
	}
	return txids, nil
}

// removeBlockTxIndex deletes every B|height|index entry for height.
func (r *Reorger) removeBlockTxIndex(batch *store.Batch, height int32) error {
	prefix := store.HeightKey(store.TagBlockTxIndex, height)
	var keys [][]byte
	if err := r.st.ForEach(store.CFChainMetadata, prefix, func(key, _ []byte) error {
		k := make([]byte, len(key))
		copy(k, key)
		keys = append(keys, k)
		return nil
	}); err != nil {
		return fmt.Errorf("%w: scan block-tx index at height %d: %v", indexer.ErrStore, height, err)
	}
	for _, key := range keys {
		if err := batch.Delete(store.CFChainMetadata, key); err != nil {
			return err
		}
	}
	return nil
}
