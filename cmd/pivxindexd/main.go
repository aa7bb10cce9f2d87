// Command pivxindexd runs the full-history indexer: it reads the node's
// block-index and raw block files to build the canonical chain, bulk
// indexes every block into the store, then switches to live-tail polling
// and handles reorgs for as long as it runs.
package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pivx-project/chainindex/config"
	"github.com/pivx-project/chainindex/internal/blockindex"
	"github.com/pivx-project/chainindex/internal/chainstate"
	"github.com/pivx-project/chainindex/internal/indexer"
	"github.com/pivx-project/chainindex/internal/log"
	"github.com/pivx-project/chainindex/internal/rpcclient"
	"github.com/pivx-project/chainindex/internal/storage"
	"github.com/pivx-project/chainindex/internal/store"
	"github.com/pivx-project/chainindex/internal/tail"
	"github.com/pivx-project/chainindex/pkg/types"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("pivxindexd exiting")
	}
}

func run() error {
	// 1. Load configuration.
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Configure logging.
	if err := log.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	log.Logger.Info().Str("db_path", cfg.Paths.DBPath).Msg("starting pivxindexd")

	// 3. Open the indexed store.
	db, err := storage.NewBadger(cfg.Paths.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()
	st := store.New(db)

	// 4. Wait for shutdown signals alongside the work below.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Resolve the canonical chain from the node's block-index store and
	// bulk-index whatever the store hasn't already caught up to.
	tracker := chainstate.New(st)
	syncHeight, err := tracker.GetSyncHeight()
	if err != nil {
		return fmt.Errorf("read sync height: %w", err)
	}

	if cfg.Paths.NodeDataDir != "" {
		if err := bulkSync(ctx, cfg, st, syncHeight); err != nil {
			return fmt.Errorf("bulk sync: %w", err)
		}
	} else {
		log.Logger.Warn().Msg("paths.node_data_dir not set, skipping bulk sync and going straight to live tail")
	}

	// 6. Connect to the node's RPC endpoint and hand off to the live-tail
	// engine, which polls until ctx is canceled.
	client := rpcclient.New(rpcclient.Config{
		Host: cfg.RPC.Host,
		User: cfg.RPC.User,
		Pass: cfg.RPC.Pass,
	})

	t := tail.New(st, client, cfg.Sync.ParallelFiles, time.Duration(cfg.Sync.PollIntervalSecs)*time.Second, nil)
	if err := t.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("live tail: %w", err)
	}

	log.Logger.Info().Msg("pivxindexd shutting down")
	return nil
}

// bulkSync reads the canonical chain from the node's block-index store and
// indexes every height the store doesn't already have, in one pass. It
// does not itself handle a reorg that happened between the prior run and
// now — the live-tail engine's first poll compares the stored canonical
// hash at syncHeight against the node and unwinds before resuming forward,
// so bulkSync only needs to walk forward from where the store already is.
func bulkSync(ctx context.Context, cfg *config.Config, st *store.Store, syncHeight int32) error {
	genesisBytes, err := hex.DecodeString(cfg.Chain.GenesisHashHex)
	if err != nil || len(genesisBytes) != 32 {
		return fmt.Errorf("chain.genesis_hash must be a 32-byte hex hash")
	}
	genesisHash, err := types.HashFromInternal(genesisBytes)
	if err != nil {
		return fmt.Errorf("decode genesis hash: %w", err)
	}

	// Copy the node's block-index and block files aside first: the node
	// holds its LevelDB lock and keeps appending to the newest blk file,
	// so reading the originals directly would race it.
	scratchDir := cfg.Paths.DBPath + "-scratch"
	indexPath, blkDir, err := blockindex.SnapshotNodeData(cfg.Paths.NodeDataDir, cfg.Paths.BlkDir, scratchDir)
	if err != nil {
		return fmt.Errorf("snapshot node data: %w", err)
	}

	chain, partial, err := blockindex.ReadChain(indexPath, genesisHash)
	if err != nil {
		return fmt.Errorf("read block index: %w", err)
	}
	if partial {
		log.BlockIndex.Warn().Msg("canonical chain walk could not reach genesis; indexing the longest reachable prefix")
	}

	start := syncHeight + 1
	var toIndex []blockindex.Entry
	for _, e := range chain {
		if e.Height >= start {
			toIndex = append(toIndex, e)
		}
	}
	if len(toIndex) == 0 {
		log.Indexer.Info().Msg("store already caught up with block-index, nothing to bulk index")
		return nil
	}

	log.Indexer.Info().Int32("from_height", start).Int("count", len(toIndex)).Msg("bulk indexing")
	ix := indexer.New(st, blkDir, cfg.Sync.ParallelFiles, cfg.Sync.FastSync)
	return ix.Run(ctx, toIndex)
}
