package config

import (
	"flag"
)

// Flags holds parsed command-line flags. Any flag left at its zero value
// does not override the file/default layer beneath it, except where noted.
type Flags struct {
	Config string

	DBPath      string
	BlkDir      string
	NodeDataDir string
	GenesisHash string

	RPCHost string
	RPCUser string
	RPCPass string

	ParallelFiles    int
	PollIntervalSecs int
	FastSync         bool
	SetFastSync      bool

	LogLevel string
	LogFile  string
	LogJSON  bool
	SetJSON  bool

	Args []string
}

// ParseFlags parses os.Args[1:]-style arguments into a Flags value.
func ParseFlags(args []string) (*Flags, error) {
	fs := flag.NewFlagSet("pivxindexd", flag.ContinueOnError)

	f := &Flags{}
	fs.StringVar(&f.Config, "config", "", "path to config file")
	fs.StringVar(&f.DBPath, "db-path", "", "location of the indexed store")
	fs.StringVar(&f.BlkDir, "blk-dir", "", "directory of raw blkNNNNN.dat files")
	fs.StringVar(&f.NodeDataDir, "node-data-dir", "", "node data directory (for block-index copy)")
	fs.StringVar(&f.GenesisHash, "genesis-hash", "", "internal-order hex hash of height 0")
	fs.StringVar(&f.RPCHost, "rpc-host", "", "node RPC host:port")
	fs.StringVar(&f.RPCUser, "rpc-user", "", "node RPC username")
	fs.StringVar(&f.RPCPass, "rpc-pass", "", "node RPC password")
	fs.IntVar(&f.ParallelFiles, "parallel-files", 0, "max concurrent block-file parsers during bulk sync")
	fs.IntVar(&f.PollIntervalSecs, "poll-interval", 0, "live-tail poll interval, in seconds")
	fs.BoolVar(&f.FastSync, "fast-sync", false, "skip header hash verification")
	fs.StringVar(&f.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "emit JSON logs")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "fast-sync":
			f.SetFastSync = true
		case "log-json":
			f.SetJSON = true
		}
	})

	f.Args = fs.Args()
	return f, nil
}

// Apply overlays non-zero flag values onto cfg.
func (f *Flags) Apply(cfg *Config) {
	if f.DBPath != "" {
		cfg.Paths.DBPath = f.DBPath
	}
	if f.BlkDir != "" {
		cfg.Paths.BlkDir = f.BlkDir
	}
	if f.NodeDataDir != "" {
		cfg.Paths.NodeDataDir = f.NodeDataDir
	}
	if f.GenesisHash != "" {
		cfg.Chain.GenesisHashHex = f.GenesisHash
	}
	if f.RPCHost != "" {
		cfg.RPC.Host = f.RPCHost
	}
	if f.RPCUser != "" {
		cfg.RPC.User = f.RPCUser
	}
	if f.RPCPass != "" {
		cfg.RPC.Pass = f.RPCPass
	}
	if f.ParallelFiles != 0 {
		cfg.Sync.ParallelFiles = f.ParallelFiles
	}
	if f.PollIntervalSecs != 0 {
		cfg.Sync.PollIntervalSecs = f.PollIntervalSecs
	}
	if f.SetFastSync {
		cfg.Sync.FastSync = f.FastSync
	}
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// Load layers defaults, an optional config file, and flags, in that order.
func Load(args []string) (*Config, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, err
	}

	cfg := Default()

	if flags.Config != "" {
		values, err := LoadFile(flags.Config)
		if err != nil {
			return nil, err
		}
		if err := ApplyFileConfig(cfg, values); err != nil {
			return nil, err
		}
	}

	flags.Apply(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
