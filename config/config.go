package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the protocol parameters of a market node: the module accounts,
// the paused modules and the collections registered at startup.
type Config struct {
	DataDir     string       `toml:"DataDir"`
	Modules     Modules      `toml:"modules"`
	Pauses      Pauses       `toml:"pauses"`
	Collections []Collection `toml:"collections"`
}

// Load loads the configuration from the given path, writing a default file
// when none exists.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.normalize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.DataDir = strings.TrimSpace(cfg.DataDir)
	if cfg.DataDir == "" {
		cfg.DataDir = "./floorvault-data"
	}
	cfg.Modules.normalize()
	if cfg.Collections == nil {
		cfg.Collections = []Collection{}
	}
	for i := range cfg.Collections {
		cfg.Collections[i].Address = strings.TrimSpace(cfg.Collections[i].Address)
	}
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir: "./floorvault-data",
		Modules: Modules{
			Vault:     "0x000000000000000000000000000000000000f001",
			Listings:  "0x000000000000000000000000000000000000f002",
			Protected: "0x000000000000000000000000000000000000f003",
			FeeSink:   "0x000000000000000000000000000000000000f004",
		},
		Collections: []Collection{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
