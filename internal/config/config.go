package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for tms.
type Config struct {
	NodeID   string         `toml:"node_id"`
	BaseDir  string         `toml:"base_dir"`
	LogDir   string         `toml:"log_dir"`
	Identity IdentityConfig `toml:"identity"`
	Database DatabaseConfig `toml:"database"`
	Ingest   IngestConfig   `toml:"ingest"`
	Backup   BackupConfig   `toml:"backup"`
}

// IdentityConfig holds paths to the node's signing key pair.
type IdentityConfig struct {
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type        string `toml:"type"`               // "sqlite" or "memory"
	DataDir     string `toml:"data_dir,omitempty"` // only used for type=sqlite
	DisableSync bool   `toml:"disable_sync"`       // turn off journaling, for bulk imports
}

// IngestConfig tunes the batch ingest pipeline. Zero values mean defaults.
type IngestConfig struct {
	BatchTargetMS   int `toml:"batch_target_ms"`   // target sub-batch duration, default 100
	MinBatch        int `toml:"min_batch"`         // default 10
	MaxBatch        int `toml:"max_batch"`         // default 1000
	ExternalSleepMS int `toml:"external_sleep_ms"` // yield between sub-batches, default 50
	Workers         int `toml:"workers"`           // async pool size, default 4
}

// BackupConfig describes the encrypted database snapshot flow.
type BackupConfig struct {
	Vaults     []VaultConfig    `toml:"vaults"`
	Encryption EncryptionConfig `toml:"encryption"`
}

// EncryptionConfig selects how snapshots are encrypted.
type EncryptionConfig struct {
	Type string `toml:"type"` // "age" (default) or "test"
}

// VaultConfig represents configuration for a snapshot vault backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type VaultConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(nodeID, baseDir string) *Config {
	return &Config{
		NodeID:  nodeID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Identity: IdentityConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "tms.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "tms.key"),
		},
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "db"),
		},
		Backup: BackupConfig{
			Encryption: EncryptionConfig{Type: "age"},
		},
	}
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
// This is an internal helper and should not be exported.
func writeToFile(path string, cfg *Config) error {
	// Ensure the directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	// Check if config already exists
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
