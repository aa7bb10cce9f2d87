package config

import (
	"encoding/hex"
	"fmt"
)

// Validate checks the indexer's config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Paths.DBPath == "" {
		return fmt.Errorf("paths.db_path must be set")
	}
	if cfg.Chain.GenesisHashHex != "" {
		raw, err := hex.DecodeString(cfg.Chain.GenesisHashHex)
		if err != nil {
			return fmt.Errorf("chain.genesis_hash must be hex: %w", err)
		}
		if len(raw) != 32 {
			return fmt.Errorf("chain.genesis_hash must decode to 32 bytes, got %d", len(raw))
		}
	}
	if cfg.Sync.ParallelFiles <= 0 {
		return fmt.Errorf("sync.parallel_files must be positive")
	}
	if cfg.Sync.PollIntervalSecs <= 0 {
		return fmt.Errorf("sync.poll_interval_secs must be positive")
	}
	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error")
	}
	return nil
}
