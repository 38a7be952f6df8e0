package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the main configuration for drivesync.
type Config struct {
	BaseDir  string          `toml:"base_dir"`
	LogDir   string          `toml:"log_dir"`
	Database DatabaseConfig  `toml:"database"`
	Remote   RemoteConfig    `toml:"remote"`
	Engine   EngineConfig    `toml:"engine"`
	Mappings []MappingConfig `toml:"mappings"`
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// RemoteConfig represents configuration for the remote drive backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type RemoteConfig struct {
	Type string `toml:"type"` // "memory", "s3", or "filesystem"
	Name string `toml:"name"`

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// Optional static credentials and endpoint for S3-compatible stores.
	// When empty the default AWS credential chain is used.
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSRemoteRoot string `toml:"fs_remote_root,omitempty"`
}

// EngineConfig holds engine-wide tuning knobs. Zero values fall back to
// the built-in defaults.
type EngineConfig struct {
	DebounceWindowMS int   `toml:"debounce_window_ms"`
	DetectionWindowS int   `toml:"detection_window_s"`
	SweepIntervalS   int   `toml:"sweep_interval_s"`
	EchoTTLS         int   `toml:"echo_ttl_s"`
	MaxUploadBytes   int64 `toml:"max_upload_bytes"`
}

// MappingConfig binds one local folder to one remote drive.
type MappingConfig struct {
	LocalFolderPath string   `toml:"local_folder_path"`
	RemoteDriveID   string   `toml:"remote_drive_id"`
	DriveName       string   `toml:"drive_name"`
	RootFolderID    string   `toml:"root_folder_id"`
	ExcludePatterns []string `toml:"exclude_patterns"`
	MaxFileSize     int64    `toml:"max_file_size"`    // bytes; 0 means no per-mapping limit
	SyncDirection   string   `toml:"sync_direction"`   // "bidirectional", "upload-only", "download-only"
	UploadPriority  int      `toml:"upload_priority"`
	AutoApprove     bool     `toml:"auto_approve"`
}

// NewConfig creates a new Config with the provided base directory and defaults.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Remote: RemoteConfig{
			Type: "memory",
			Name: "default",
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

// Save writes a Config to the specified file path, replacing any existing
// file. Used by commands that amend the configuration in place.
func Save(path string, cfg *Config) error {
	return writeToFile(path, cfg)
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
