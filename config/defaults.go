package config

// Default returns the indexer's default configuration.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Paths: PathsConfig{
			DBPath:      dataDir,
			BlkDir:      "",
			NodeDataDir: "",
		},
		Chain: ChainConfig{
			GenesisHashHex: "",
		},
		RPC: RPCConfig{
			Host: "127.0.0.1:51473",
		},
		Sync: SyncConfig{
			ParallelFiles:    4,
			PollIntervalSecs: 10,
			FastSync:         false,
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}
