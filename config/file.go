package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadFile loads key = value pairs from a .conf file. A missing file is not
// an error — it is treated as empty so defaults apply.
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}
		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies parsed file values onto cfg.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	case "paths.db_path":
		cfg.Paths.DBPath = value
	case "paths.blk_dir":
		cfg.Paths.BlkDir = value
	case "paths.node_data_dir":
		cfg.Paths.NodeDataDir = value
	case "chain.genesis_hash":
		cfg.Chain.GenesisHashHex = value
	case "rpc.host":
		cfg.RPC.Host = value
	case "rpc.user":
		cfg.RPC.User = value
	case "rpc.pass":
		cfg.RPC.Pass = value
	case "sync.parallel_files":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("must be an integer: %w", err)
		}
		cfg.Sync.ParallelFiles = n
	case "sync.poll_interval_secs":
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("must be an integer: %w", err)
		}
		cfg.Sync.PollIntervalSecs = n
	case "sync.fast_sync":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("must be true or false: %w", err)
		}
		cfg.Sync.FastSync = b
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("must be true or false: %w", err)
		}
		cfg.Log.JSON = b
	default:
		return fmt.Errorf("unknown key")
	}
	return nil
}
