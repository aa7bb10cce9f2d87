// Package metrics exposes the counters and gauges an external HTTP layer
// scrapes to watch the indexing pipeline (blocks indexed, reorg depth,
// sync lag). This package only owns the registry and the handful of
// collectors the pipeline updates as it runs; nothing in this repository
// serves them over HTTP.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry is the collector registry the external layer's /metrics
// handler would register against. A dedicated registry rather than the
// global default keeps this package importable by tests without
// colliding with other collectors in the same process.
var Registry = prometheus.NewRegistry()

var (
	// BlocksIndexed counts blocks committed by the bulk indexer and the
	// live tail engine, labeled by source so a dashboard can tell
	// initial backfill apart from steady-state catch-up.
	BlocksIndexed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "pivxindex_blocks_indexed_total",
		Help: "Total number of blocks committed to the indexed store.",
	}, []string{"source"})

	// ReorgDepth observes the number of blocks unwound per reorg.
	ReorgDepth = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "pivxindex_reorg_depth_blocks",
		Help:    "Number of blocks rolled back per detected reorg.",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 34, 55},
	})

	// SyncHeight is the last gauge-reported sync_height, for a
	// dashboard's "sync lag" panel (network_height - sync_height).
	SyncHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pivxindex_sync_height",
		Help: "Height of the last block the indexed store is caught up to.",
	})

	// NetworkHeight is the last polled node tip height.
	NetworkHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "pivxindex_network_height",
		Help: "Height of the node's current best chain tip, as last polled.",
	})
)

func init() {
	Registry.MustRegister(BlocksIndexed, ReorgDepth, SyncHeight, NetworkHeight)
}
