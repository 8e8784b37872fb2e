package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	// MinPollingIntervalMs минимально допустимый интервал опроса категории
	MinPollingIntervalMs = 1000
	// MaxPollingIntervalMs максимально допустимый интервал (сутки)
	MaxPollingIntervalMs = 24 * 60 * 60 * 1000
)

// PollingEntry настройка опроса одной категории
type PollingEntry struct {
	Enabled    *bool `yaml:"enabled"`
	IntervalMs int64 `yaml:"intervalMs"`
}

// EndpointsConfig адреса бэкендов
type EndpointsConfig struct {
	Node        string `yaml:"node"`
	Indexer     string `yaml:"indexer"`
	ProofServer string `yaml:"proofServer"`
	Wallet      string `yaml:"wallet"`
}

// FileConfig представляет структуру YAML файла конфигурации
type FileConfig struct {
	Endpoints      EndpointsConfig         `yaml:"endpoints"`
	NetworkID      string                  `yaml:"networkId"`
	ComposeProject string                  `yaml:"composeProject"`
	Polling        map[string]PollingEntry `yaml:"polling"`
}

// LoadFile загружает конфигурацию из YAML файла
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file FileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Валидация интервалов; имена категорий проверяет планировщик
	for name, entry := range file.Polling {
		if entry.IntervalMs != 0 && entry.IntervalMs < MinPollingIntervalMs {
			return nil, fmt.Errorf("polling %q: intervalMs %d is below %d", name, entry.IntervalMs, MinPollingIntervalMs)
		}
		if entry.IntervalMs > MaxPollingIntervalMs {
			return nil, fmt.Errorf("polling %q: intervalMs %d is above %d", name, entry.IntervalMs, MaxPollingIntervalMs)
		}
	}

	return &file, nil
}

func (f *FileConfig) apply(cfg *Config, explicit map[string]bool) {
	set := func(flagName string, dst *string, value string) {
		if value != "" && !explicit[flagName] {
			*dst = value
		}
	}

	set("node-url", &cfg.NodeURL, f.Endpoints.Node)
	set("indexer-url", &cfg.IndexerURL, f.Endpoints.Indexer)
	set("proof-url", &cfg.ProofServerURL, f.Endpoints.ProofServer)
	set("wallet-url", &cfg.WalletURL, f.Endpoints.Wallet)
	set("network-id", &cfg.NetworkID, f.NetworkID)
	set("compose-project", &cfg.ComposeProject, f.ComposeProject)

	if len(f.Polling) > 0 {
		cfg.Polling = make(map[string]PollingEntry, len(f.Polling))
		for name, entry := range f.Polling {
			cfg.Polling[name] = entry
		}
	}
}
