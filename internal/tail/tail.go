// Package tail implements the live tail engine: once the initial
// bulk index pass has caught the store up to the node's tip, this
// package keeps it there, polling for new blocks, catching up through a
// two-phase fetch-then-apply pipeline, and handing off to the reorg
// engine the moment the node's view of the chain diverges from
// what is already stored.
package tail

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pivx-project/chainindex/internal/addrindex"
	"github.com/pivx-project/chainindex/internal/chainstate"
	"github.com/pivx-project/chainindex/internal/indexer"
	"github.com/pivx-project/chainindex/internal/log"
	"github.com/pivx-project/chainindex/internal/metrics"
	"github.com/pivx-project/chainindex/internal/reorg"
	"github.com/pivx-project/chainindex/internal/rpcclient"
	"github.com/pivx-project/chainindex/internal/store"
	"github.com/pivx-project/chainindex/internal/txparser"
	"github.com/pivx-project/chainindex/pkg/block"
	"github.com/pivx-project/chainindex/pkg/tx"
	"github.com/pivx-project/chainindex/pkg/types"
)

// BlockEvent describes one newly-committed block, for subscribers of
// the live feed (the WebSocket/notification layer, outside this core).
type BlockEvent struct {
	Height    int32
	Hash      types.Hash
	TxCount   int
	Timestamp uint32
}

// Broadcaster publishes BlockEvents as they're committed. Publish must
// not block the tail loop; a slow or failing subscriber is the
// broadcaster's problem, not the indexer's.
type Broadcaster interface {
	Publish(BlockEvent)
}

// NoopBroadcaster discards every event. The default when nothing else
// is wired up.
type NoopBroadcaster struct{}

// Publish does nothing.
func (NoopBroadcaster) Publish(BlockEvent) {}

// Tail drives the live-tail poll loop.
type Tail struct {
	st               *store.Store
	client           *rpcclient.Client
	engine           *addrindex.Engine
	tracker          *chainstate.Tracker
	reorger          *reorg.Reorger
	pollInterval     time.Duration
	fetchConcurrency int
	broadcaster      Broadcaster

	// pending holds outputs from transactions fetched but not yet
	// committed within the current catch-up window, consulted by
	// lookupPrevTx before falling back to the store or the node.
	pending map[types.Hash][]tx.Output
}

// New creates a live-tail engine. pollInterval is sync.poll_interval_secs;
// fetchConcurrency bounds how many blocks Phase 1 of catch-up fetches at
// once. A nil broadcaster selects NoopBroadcaster.
func New(st *store.Store, client *rpcclient.Client, fetchConcurrency int, pollInterval time.Duration, broadcaster Broadcaster) *Tail {
	if fetchConcurrency <= 0 {
		fetchConcurrency = 10
	}
	if broadcaster == nil {
		broadcaster = NoopBroadcaster{}
	}
	t := &Tail{
		st:               st,
		client:           client,
		tracker:          chainstate.New(st),
		pollInterval:     pollInterval,
		fetchConcurrency: fetchConcurrency,
		broadcaster:      broadcaster,
		pending:          make(map[types.Hash][]tx.Output),
	}
	t.engine = addrindex.New(st, t.lookupPrevTx)
	t.reorger = reorg.New(st, client, t.engine)
	return t
}

// Run polls at pollInterval until ctx is canceled. A failed poll is
// logged and retried at the next tick rather than stopping the loop.
func (t *Tail) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.pollInterval)
	defer ticker.Stop()

	for {
		if err := t.Poll(ctx); err != nil {
			log.Tail.Error().Err(err).Msg("poll failed, retrying next tick")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Poll compares the node's tip against the store's sync height and
// either idles, catches up, or hands off to the reorg engine.
func (t *Tail) Poll(ctx context.Context) error {
	networkHeight, err := t.client.GetBlockCount(ctx)
	if err != nil {
		return fmt.Errorf("%w: getblockcount: %v", rpcclient.ErrRPC, err)
	}

	nbatch := t.st.NewBatch(0)
	if err := chainstate.SetNetworkHeight(nbatch, networkHeight); err != nil {
		return err
	}
	if err := nbatch.Flush(); err != nil {
		return fmt.Errorf("%w: %v", indexer.ErrStore, err)
	}
	metrics.NetworkHeight.Set(float64(networkHeight))

	syncHeight, err := t.tracker.GetSyncHeight()
	if err != nil {
		return err
	}

	if syncHeight >= 0 {
		diverged := networkHeight < syncHeight
		if !diverged {
			diverged, err = t.divergesFromNode(ctx, syncHeight)
			if err != nil {
				return err
			}
		}
		if diverged {
			forkHeight, err := t.reorger.Run(ctx, syncHeight)
			if err != nil {
				return fmt.Errorf("tail: reorg: %w", err)
			}
			syncHeight = forkHeight
		}
	}

	if networkHeight <= syncHeight {
		log.Tail.Debug().Int32("sync_height", syncHeight).Int32("network_height", networkHeight).Msg("idle")
		return nil
	}

	return t.catchUp(ctx, syncHeight+1, networkHeight)
}

// divergesFromNode reports whether the node's current hash at height no
// longer matches what is already stored as canonical there.
func (t *Tail) divergesFromNode(ctx context.Context, height int32) (bool, error) {
	storedHash, ok, err := t.tracker.HashAtHeight(height)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	nodeHashHex, err := t.client.GetBlockHash(ctx, height)
	if err != nil {
		return false, fmt.Errorf("%w: getblockhash(%d): %v", rpcclient.ErrRPC, height, err)
	}
	nodeHash, err := types.HexToHash(nodeHashHex)
	if err != nil {
		return false, fmt.Errorf("tail: parse node hash at %d: %w", height, err)
	}
	return storedHash != nodeHash, nil
}

// fetchedBlock is one catch-up window member, fetched in Phase 1 and
// applied in Phase 2.
type fetchedBlock struct {
	height int32
	hash   types.Hash
	header *block.Header
	txs    []*tx.Transaction
	err    error
}

// catchUpWindow bounds how many heights one fetch-then-apply round holds
// in memory. A tail that starts far behind the node walks forward one
// window at a time, each committed in full before the next is fetched.
const catchUpWindow = 500

// catchUp indexes every height in [start, end] inclusive, in windows of
// catchUpWindow heights.
func (t *Tail) catchUp(ctx context.Context, start, end int32) error {
	for ws := start; ws <= end; ws += catchUpWindow {
		we := ws + catchUpWindow - 1
		if we > end {
			we = end
		}
		if err := t.catchUpOne(ctx, ws, we); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}

// catchUpOne indexes every height in [start, end] inclusive: Phase 1
// fetches blocks concurrently (bounded by fetchConcurrency) and builds
// the window's two-pass spent-set; Phase 2 applies them strictly in
// ascending height order, one atomic commit per height.
func (t *Tail) catchUpOne(ctx context.Context, start, end int32) error {
	defer func() {
		t.pending = make(map[types.Hash][]tx.Output)
		t.engine.Reset()
	}()
	count := int(end-start) + 1
	results := make([]fetchedBlock, count)
	sem := make(chan struct{}, t.fetchConcurrency)
	g, gctx := errgroup.WithContext(ctx)

loop:
	for i := 0; i < count; i++ {
		height := start + int32(i)
		i := i
		select {
		case sem <- struct{}{}:
		case <-gctx.Done():
			break loop
		}
		g.Go(func() error {
			defer func() { <-sem }()
			hash, header, txs, err := t.fetchBlock(gctx, height)
			results[i] = fetchedBlock{height: height, hash: hash, header: header, txs: txs, err: err}
			return nil // per-block fetch errors are not fatal to the group
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var windowBlocks [][]*tx.Transaction
	for _, r := range results {
		if r.err != nil {
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
			log.Tail.Error().Err(r.err).Int32("height", r.height).Msg("failed to fetch block, stopping catch-up short")
			return fmt.Errorf("tail: fetch height %d: %w", r.height, r.err)
		}
		if err := t.applyHeight(r, inBatch); err != nil {
			return err
		}
	}
	return nil
}

// fetchBlock retrieves one block and parses its embedded transactions.
func (t *Tail) fetchBlock(ctx context.Context, height int32) (types.Hash, *block.Header, []*tx.Transaction, error) {
	hashHex, err := t.client.GetBlockHash(ctx, height)
	if err != nil {
		return types.Hash{}, nil, nil, fmt.Errorf("%w: getblockhash(%d): %v", rpcclient.ErrRPC, height, err)
	}
	hash, err := types.HexToHash(hashHex)
	if err != nil {
		return types.Hash{}, nil, nil, fmt.Errorf("tail: parse hash at %d: %w", height, err)
	}

	rpcBlock, err := t.client.GetBlock(ctx, hashHex)
	if err != nil {
		return types.Hash{}, nil, nil, fmt.Errorf("%w: getblock(%d): %v", rpcclient.ErrRPC, height, err)
	}

	header, err := headerFromRPC(rpcBlock)
	if err != nil {
		return types.Hash{}, nil, nil, fmt.Errorf("tail: build header at %d: %w", height, err)
	}

	txs := make([]*tx.Transaction, 0, len(rpcBlock.Tx))
	for _, raw := range rpcBlock.Tx {
		rawBytes, err := hex.DecodeString(raw.Hex)
		if err != nil {
			return types.Hash{}, nil, nil, fmt.Errorf("tail: decode tx %s hex at height %d: %w", raw.TxID, height, err)
		}
		parsed, err := txparser.ParseTransaction(header.Version, rawBytes)
		if err != nil {
			return types.Hash{}, nil, nil, fmt.Errorf("tail: parse tx %s at height %d: %w", raw.TxID, height, err)
		}
		txs = append(txs, parsed)
	}
	return hash, header, txs, nil
}

// headerFromRPC reconstructs the on-disk header layout from a
// getblock(verbosity=2) response, so the committed CFBlocks record
// matches the bulk indexer's own encoding exactly.
func headerFromRPC(b *rpcclient.Block) (*block.Header, error) {
	prevHash, err := types.HexToHash(b.PreviousBlockHash)
	if err != nil && b.PreviousBlockHash != "" {
		return nil, fmt.Errorf("parse previousblockhash: %w", err)
	}
	merkleRoot, err := types.HexToHash(b.MerkleRoot)
	if err != nil {
		return nil, fmt.Errorf("parse merkleroot: %w", err)
	}
	bits, err := b.BitsUint32()
	if err != nil {
		return nil, fmt.Errorf("parse bits: %w", err)
	}
	return &block.Header{
		Version:    b.Version,
		PrevHash:   prevHash,
		MerkleRoot: merkleRoot,
		Time:       b.Time,
		Bits:       bits,
		Nonce:      b.Nonce,
	}, nil
}

// processingKey builds the chain_state P|height processing marker.
func processingKey(height int32) []byte {
	return store.HeightKey(store.TagProcessing, height)
}

// applyHeight commits one fetched block's mutations atomically: the
// processing-marker reservation, the address/UTXO engine's effects, the
// block header and transaction records, the canonical height/hash
// mapping, the undo record, the chain-state sync height and
// duplicate-check alias, and the marker's removal all land in a single
// batch flush. A crash at any point therefore leaves neither a stale
// marker nor a half-applied block: either everything for the height is
// durable (marker already removed) or none of it is.
func (t *Tail) applyHeight(r fetchedBlock, inBatch addrindex.InBatchSet) error {
	// A canonical hash already stored for this height that doesn't match
	// what Phase 1 fetched means the chain moved under us mid-window;
	// stop here and let the next poll's reorg check sort it out.
	if stored, ok, err := t.tracker.HashAtHeight(r.height); err != nil {
		return err
	} else if ok && stored != r.hash {
		return fmt.Errorf("tail: height %d: stored canonical hash %s no longer matches fetched %s", r.height, stored, r.hash)
	}

	// A durable P|height marker means another task owns this height;
	// skip it with a logged warning rather than an error.
	held, err := t.st.Has(store.CFChainState, processingKey(r.height))
	if err != nil {
		return err
	}
	if held {
		log.Tail.Warn().Int32("height", r.height).Msg("processing marker contested, skipping height")
		return nil
	}

	batch := t.st.NewBatch(0)

	if err := batch.Put(store.CFChainState, processingKey(r.height), []byte{1}); err != nil {
		return err
	}

	if err := batch.Put(store.CFBlocks, r.hash.Bytes(), r.header.Encode()); err != nil {
		return err
	}
	if err := batch.Put(store.CFChainMetadata, store.HeightKey(store.TagHeightToHash, r.height), r.hash.Bytes()); err != nil {
		return err
	}
	if err := batch.Put(store.CFChainMetadata, store.TagKey(store.TagHashToHeight, r.hash.Bytes()), store.HeightBytes(r.height)); err != nil {
		return err
	}

	undo := &addrindex.Undo{Height: r.height}
	for i, parsed := range r.txs {
		record := store.EncodeTxRecord(parsed.Version, r.height, parsed.Raw)
		if err := batch.Put(store.CFTransactions, parsed.TxID.Bytes(), record); err != nil {
			return err
		}
		idxKey := store.HeightIndexKey(store.TagBlockTxIndex, r.height, uint32(i))
		if err := batch.Put(store.CFChainMetadata, idxKey, []byte(parsed.TxID.String())); err != nil {
			return err
		}
		t.pending[parsed.TxID] = parsed.Outputs
		if err := t.engine.Apply(batch, undo, r.height, parsed, inBatch); err != nil {
			return fmt.Errorf("tail: apply tx %s at height %d: %w", parsed.TxID, r.height, err)
		}
	}

	if err := addrindex.PutUndo(batch, undo); err != nil {
		return err
	}
	if err := chainstate.SetSyncHeight(batch, r.height); err != nil {
		return err
	}
	if err := chainstate.SetHashAtHeight(batch, r.height, r.hash); err != nil {
		return err
	}

	// The marker's removal rides the same commit as the reservation and
	// the block's mutations, so it never outlives them.
	if err := batch.Delete(store.CFChainState, processingKey(r.height)); err != nil {
		return err
	}

	if err := batch.Flush(); err != nil {
		return fmt.Errorf("%w: %v", indexer.ErrStore, err)
	}

	metrics.BlocksIndexed.WithLabelValues("tail").Inc()
	metrics.SyncHeight.Set(float64(r.height))
	t.broadcaster.Publish(BlockEvent{Height: r.height, Hash: r.hash, TxCount: len(r.txs), Timestamp: r.header.Time})
	return nil
}

// lookupPrevTx is the live-tail engine's PrevTxLookup: unlike the bulk
// indexer, a miss here falls back to getrawtransaction
// and caches the result so later lookups in the same
// window don't repeat the round trip.
func (t *Tail) lookupPrevTx(txid types.Hash) ([]tx.Output, error) {
	if outs, ok := t.pending[txid]; ok {
		return outs, nil
	}
	if v, err := t.st.Get(store.CFTransactions, txid.Bytes()); err == nil {
		if _, _, raw, ok := store.DecodeTxRecord(v); ok {
			parsed, err := txparser.ParseTransaction(0, raw)
			if err == nil {
				return parsed.Outputs, nil
			}
		}
	}

	ctx := context.Background()
	rawTx, err := t.client.GetRawTransaction(ctx, txid.String())
	if err != nil {
		return nil, fmt.Errorf("%w: getrawtransaction(%s): %v", rpcclient.ErrRPC, txid, err)
	}
	rawBytes, err := hex.DecodeString(rawTx.Hex)
	if err != nil {
		return nil, fmt.Errorf("tail: decode fetched prev tx %s hex: %w", txid, err)
	}
	parsed, err := txparser.ParseTransaction(0, rawBytes)
	if err != nil {
		return nil, fmt.Errorf("tail: parse fetched prev tx %s: %w", txid, err)
	}
	t.pending[txid] = parsed.Outputs

	batch := t.st.NewBatch(0)
	record := store.EncodeTxRecord(parsed.Version, store.HeightUnresolved, parsed.Raw)
	if err := batch.Put(store.CFTransactions, txid.Bytes(), record); err != nil {
		return parsed.Outputs, nil
	}
	if err := batch.Flush(); err != nil {
		log.Tail.Error().Err(err).Str("txid", txid.String()).Msg("failed to cache RPC-fetched prev tx")
	}
	return parsed.Outputs, nil
}
