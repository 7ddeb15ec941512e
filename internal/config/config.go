// Package config loads the YAML bootstrap file blocktreectl reads at
// startup: where the byte store lives, which hash/signature algorithm
// to use, and where root key material is kept.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the on-disk bootstrap configuration for a blocktreectl
// invocation.
type Config struct {
	// StorePath is the directory a pebblestore-backed store opens. Empty
	// (or "memory") selects the in-memory store instead.
	StorePath string `yaml:"store_path"`
	// HashAlgorithm names the content-hash function in use. Only "blake3"
	// is currently wired to a Provider; the field exists so a future
	// algorithm swap is a config change, not a recompile.
	HashAlgorithm string `yaml:"hash_algorithm"`
	// SignatureAlgorithm names the signature scheme in use. Only
	// "secp256k1" is currently wired.
	SignatureAlgorithm string `yaml:"signature_algorithm"`
	// RootKeyPath names a file holding root signing key material. No
	// command reads it: install-root takes its key file from -key.
	RootKeyPath string `yaml:"root_key_path"`
	// CacheSize is the per-slot LRU capacity internal/blockcache.New is
	// constructed with. Zero uses blockcache's own default.
	CacheSize int `yaml:"cache_size"`
}

// defaults matches what an empty Config should behave as, so a missing
// bootstrap file is equivalent to running fully in-memory.
func defaults() Config {
	return Config{
		StorePath:          "memory",
		HashAlgorithm:      "blake3",
		SignatureAlgorithm: "secp256k1",
	}
}

// Load reads and parses the YAML bootstrap file at path. A path of ""
// returns the defaults without touching the filesystem.
func Load(path string) (Config, error) {
	cfg := defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
