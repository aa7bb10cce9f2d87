// Package config handles indexer configuration: defaults, a config
// file, and command-line flags, layered in that order.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Config holds the indexer's runtime configuration.
type Config struct {
	Paths PathsConfig
	Chain ChainConfig
	RPC   RPCConfig
	Sync  SyncConfig
	Log   LogConfig
}

// ChainConfig names the canonical-chain resolver's fixed starting point.
// The resolver needs the genesis hash to anchor its ascending
// chainwork pass, so it lives here alongside every other operator-set path/endpoint.
type ChainConfig struct {
	// GenesisHashHex is the internal-order (on-disk) block hash of
	// height 0, hex-encoded. Required before the daemon can index.
	GenesisHashHex string `conf:"chain.genesis_hash"`
}

// PathsConfig names the filesystem locations the indexer reads and writes.
type PathsConfig struct {
	// DBPath is the location of the indexed store (internal/store).
	DBPath string `conf:"paths.db_path"`
	// BlkDir is the directory of raw blkNNNNN.dat block files.
	BlkDir string `conf:"paths.blk_dir"`
	// NodeDataDir is the node's data directory, containing the block-index
	// store that is copied to a scratch location before reading.
	NodeDataDir string `conf:"paths.node_data_dir"`
}

// RPCConfig names the node's JSON-RPC endpoint and credentials.
type RPCConfig struct {
	Host string `conf:"rpc.host"`
	User string `conf:"rpc.user"`
	Pass string `conf:"rpc.pass"`
}

// SyncConfig names the bulk-index and live-tail tuning knobs.
type SyncConfig struct {
	// ParallelFiles bounds the concurrent block-file parsers during the
	// initial bulk-index phase.
	ParallelFiles int `conf:"sync.parallel_files"`
	// PollIntervalSecs is the live-tail poll interval.
	PollIntervalSecs int `conf:"sync.poll_interval_secs"`
	// FastSync skips verifying the double-SHA256 match between a parsed
	// header and the hash the canonical-chain resolver expected.
	FastSync bool `conf:"sync.fast_sync"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// DefaultDataDir returns the platform-specific default data directory for
// the indexer's own store (distinct from the node's data directory).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".pivxindex"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "PivxIndex")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "PivxIndex")
		}
		return filepath.Join(home, "AppData", "Roaming", "PivxIndex")
	default:
		return filepath.Join(home, ".pivxindex")
	}
}
