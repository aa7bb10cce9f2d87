// Package indexer also hosts the pipeline's shared error kinds as
// errors.Is-comparable sentinels used by every core package
// (internal/tail, internal/reorg) that needs to classify a failure the
// same way: a single home for the kinds, not the type names.
package indexer

import "errors"

// Error kinds shared across the indexing pipeline.
var (
	// ErrStore wraps a failure committing a batch to the indexed store.
	ErrStore = errors.New("indexer: store error")
	// ErrMissingPrevTx means an input's previous transaction is in
	// neither the in-flight batch nor the store yet — during bulk
	// indexing this means the canonical chain itself is malformed
	// (inputs must reference an earlier, already-indexed output), so
	// unlike live tail there is no RPC fallback to retry with.
	ErrMissingPrevTx = errors.New("indexer: previous transaction not found")
	// ErrMissingUndo means the reorg engine has no undo record for a
	// height it needs to roll back. The unwind logs the gap and
	// proceeds rather than aborting.
	ErrMissingUndo = errors.New("indexer: undo record missing for height")
	// ErrProcessingContested means live tail's P|height processing
	// marker was already set when a catch-up task tried to claim it —
	// another task owns this height, so the current one skips it
	// silently rather than treating it as a failure.
	ErrProcessingContested = errors.New("indexer: processing marker already set for height")
)
