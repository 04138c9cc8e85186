package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config is the main configuration for credbak. It is loaded once at
// startup and treated as immutable afterwards.
type Config struct {
	BackupRoot string `toml:"backup_root"`
	ReposDir   string `toml:"repos_dir"`
	HomeDir    string `toml:"home_dir"`

	Scan    ScanConfig    `toml:"scan"`
	Archive ArchiveConfig `toml:"archive"`
	Upload  UploadConfig  `toml:"upload"`
	History HistoryConfig `toml:"history"`
}

// ScanConfig tunes the scanner and classifier. Extra patterns are merged
// into the built-in catalog at startup.
type ScanConfig struct {
	MaxFileSize         int64    `toml:"max_file_size"`          // per-file ceiling in bytes; 0 = default (10 MiB)
	MaxContentScanBytes int64    `toml:"max_content_scan_bytes"` // keyword-scan ceiling; 0 = default (1 MiB)
	ExtraNamePatterns   []string `toml:"extra_name_patterns"`
	ExtraKeywords       []string `toml:"extra_keywords"`
}

// ArchiveConfig configures the archive step that packages the finished
// backup tree.
type ArchiveConfig struct {
	OutputDir string `toml:"output_dir"` // where archives are written; defaults next to the backup root
}

// UploadConfig configures the S3 upload of finished archives.
// When AccessKeyID/SecretAccessKey are empty the default AWS credential
// chain is used.
type UploadConfig struct {
	S3Bucket        string `toml:"s3_bucket"`
	S3Prefix        string `toml:"s3_prefix,omitempty"`
	S3Region        string `toml:"s3_region,omitempty"`
	AccessKeyID     string `toml:"access_key_id,omitempty"`
	SecretAccessKey string `toml:"secret_access_key,omitempty"`
}

// HistoryConfig configures the run-history database.
type HistoryConfig struct {
	DataDir string `toml:"data_dir,omitempty"` // defaults to <backup_root>/metadata
}

// NewConfig creates a Config with defaults derived from the user's home
// directory and the given backup root.
func NewConfig(backupRoot, homeDir string) *Config {
	return &Config{
		BackupRoot: backupRoot,
		HomeDir:    homeDir,
		Archive: ArchiveConfig{
			OutputDir: filepath.Dir(backupRoot),
		},
	}
}

// HistoryDir returns the directory holding the run-history database.
func (c *Config) HistoryDir() string {
	if c.History.DataDir != "" {
		return c.History.DataDir
	}
	return filepath.Join(c.BackupRoot, "metadata")
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
func writeToFile(path string, cfg *Config) error {
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

// Init initializes a new config file at the specified path.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
