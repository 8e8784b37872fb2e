package config

import (
	"flag"
	"fmt"
	"os"
	"time"
)

type StorageType string

const (
	StorageMemory StorageType = "memory"
	StorageSQLite StorageType = "sqlite"
)

type Config struct {
	ConfigFile string
	Port       int

	NodeURL        string
	IndexerURL     string
	ProofServerURL string
	WalletURL      string
	NetworkID      string
	ComposeProject string
	FetchTimeout   time.Duration

	LogFormat string
	LogLevel  string
	LogFile   string

	Record     bool
	Storage    StorageType
	SQLitePath string
	MaxRecords int64

	// Polling переопределения политики опроса из YAML (имя категории -> настройка)
	Polling map[string]PollingEntry
}

func Parse() *Config {
	cfg, err := ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	return cfg
}

// ParseArgs разбирает флаги и, если указан -config, накладывает YAML файл.
// Флаги, явно заданные в командной строке, имеют приоритет над файлом.
func ParseArgs(args []string) (*Config, error) {
	cfg := &Config{}
	fs := flag.NewFlagSet("devnet-panel", flag.ContinueOnError)

	fs.StringVar(&cfg.ConfigFile, "config", "", "YAML config file with endpoints and polling policy")
	fs.IntVar(&cfg.Port, "port", 8000, "Web server port")

	fs.StringVar(&cfg.NodeURL, "node-url", "http://127.0.0.1:9944", "Node JSON-RPC URL")
	fs.StringVar(&cfg.IndexerURL, "indexer-url", "http://127.0.0.1:8088/api/v3/graphql", "Indexer URL")
	fs.StringVar(&cfg.ProofServerURL, "proof-url", "http://127.0.0.1:6300", "Proof server URL")
	fs.StringVar(&cfg.WalletURL, "wallet-url", "http://127.0.0.1:6400", "Wallet service URL")
	fs.StringVar(&cfg.NetworkID, "network-id", "undeployed", "Network ID used for address derivation")
	fs.StringVar(&cfg.ComposeProject, "compose-project", "standalone", "Docker compose project name")
	fs.DurationVar(&cfg.FetchTimeout, "fetch-timeout", 5*time.Second, "Timeout of a single backend fetch")

	fs.StringVar(&cfg.LogFormat, "log-format", "text", "Log format: text or json")
	fs.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFile, "log-file", "", "Rotated log file (stderr only if empty)")

	fs.BoolVar(&cfg.Record, "record", false, "Record health probe samples")
	var storageStr string
	fs.StringVar(&storageStr, "record-storage", "memory", "Recording storage: memory or sqlite")
	fs.StringVar(&cfg.SQLitePath, "sqlite-path", "./history.db", "SQLite database path")
	fs.Int64Var(&cfg.MaxRecords, "max-records", 100000, "Maximum recorded samples kept")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Storage = StorageType(storageStr)
	if cfg.Storage != StorageMemory && cfg.Storage != StorageSQLite {
		cfg.Storage = StorageMemory
	}

	if cfg.ConfigFile != "" {
		file, err := LoadFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}

		explicit := make(map[string]bool)
		fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		file.apply(cfg, explicit)
	}

	if cfg.FetchTimeout <= 0 {
		return nil, fmt.Errorf("fetch-timeout must be positive, got %s", cfg.FetchTimeout)
	}

	return cfg, nil
}
