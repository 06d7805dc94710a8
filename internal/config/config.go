package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// Config represents the main configuration for guardd.
type Config struct {
	Token        string           `toml:"token" envconfig:"TOKEN"`
	GuildID      string           `toml:"guild_id" envconfig:"GUILD_ID"`
	Owners       []string         `toml:"owners" envconfig:"OWNERS"`
	HelperTokens []string         `toml:"helper_tokens" envconfig:"HELPER_TOKENS"`
	AlertChannel string           `toml:"alert_channel" envconfig:"ALERT_CHANNEL"`
	BaseDir      string           `toml:"base_dir" envconfig:"BASE_DIR"`
	LogDir       string           `toml:"log_dir" envconfig:"LOG_DIR"`
	Limits       LimitsConfig     `toml:"limits"`
	Capture      CaptureConfig    `toml:"capture"`
	Database     DatabaseConfig   `toml:"database"`
	Metrics      MetricsConfig    `toml:"metrics"`
	Archive      ArchiveConfig    `toml:"archive"`
	Encryption   EncryptionConfig `toml:"encryption"`
}

// LimitsConfig tunes the abuse rate limiter. Zero values fall back to the
// built-in defaults at wiring time.
type LimitsConfig struct {
	BanBurstLimit  int      `toml:"ban_burst_limit"`
	BanBurstWindow duration `toml:"ban_burst_window"`
	AlertLimit     int      `toml:"alert_limit"`
	AlertWindow    duration `toml:"alert_window"`
}

// CaptureConfig controls the periodic snapshot loop.
type CaptureConfig struct {
	Interval duration `toml:"interval"` // defaults to 2h when zero
}

// DatabaseConfig represents configuration for the metadata database.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type    string `toml:"type"`               // "sqlite" or "memory"
	DataDir string `toml:"data_dir,omitempty"` // only used for type=sqlite
}

// MetricsConfig controls the Prometheus endpoint. An empty listen address
// disables the endpoint.
type MetricsConfig struct {
	ListenAddr string `toml:"listen_addr" envconfig:"METRICS_LISTEN_ADDR"`
}

// ArchiveConfig represents configuration for the snapshot export vault.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type ArchiveConfig struct {
	Type string `toml:"type"` // "none", "memory", "s3", or "filesystem"

	// S3-specific fields (only used when Type == "s3")
	S3Bucket string `toml:"s3_bucket,omitempty"`
	S3Prefix string `toml:"s3_prefix,omitempty"`
	S3Region string `toml:"s3_region,omitempty"`

	// Optional static credentials. When empty the default AWS credential
	// chain (env, shared config, instance role) is used.
	S3AccessKeyID     string `toml:"s3_access_key_id,omitempty" envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `toml:"s3_secret_access_key,omitempty" envconfig:"S3_SECRET_ACCESS_KEY"`

	// FileSystem-specific fields (only used when Type == "filesystem")
	FSVaultRoot string `toml:"fs_vault_root,omitempty"`
}

// EncryptionConfig holds paths to the age key pair used for export encryption.
type EncryptionConfig struct {
	PublicKeyPath  string `toml:"public_key_path"`
	PrivateKeyPath string `toml:"private_key_path"`
}

// duration wraps time.Duration so TOML values can be written as "30s" or "2h".
type duration time.Duration

func (d *duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = duration(parsed)
	return nil
}

func (d duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Duration returns the underlying time.Duration.
func (d duration) Duration() time.Duration {
	return time.Duration(d)
}

// NewConfig creates a new Config with the provided values and default paths.
func NewConfig(guildID, baseDir string) *Config {
	return &Config{
		GuildID: guildID,
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Database: DatabaseConfig{
			Type:    "sqlite",
			DataDir: filepath.Join(baseDir, "data"),
		},
		Archive: ArchiveConfig{Type: "none"},
		Encryption: EncryptionConfig{
			PublicKeyPath:  filepath.Join(baseDir, "keys", "guardd.pub"),
			PrivateKeyPath: filepath.Join(baseDir, "keys", "guardd.key"),
		},
	}
}

// Validate checks that the configuration is complete enough to run the daemon.
func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("token is required")
	}
	if c.GuildID == "" {
		return fmt.Errorf("guild_id is required")
	}
	switch c.Database.Type {
	case "sqlite":
		if c.Database.DataDir == "" {
			return fmt.Errorf("database.data_dir is required for type=sqlite")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown database type %q", c.Database.Type)
	}
	switch c.Archive.Type {
	case "", "none", "memory":
	case "s3":
		if c.Archive.S3Bucket == "" {
			return fmt.Errorf("archive.s3_bucket is required for type=s3")
		}
	case "filesystem":
		if c.Archive.FSVaultRoot == "" {
			return fmt.Errorf("archive.fs_vault_root is required for type=filesystem")
		}
	default:
		return fmt.Errorf("unknown archive type %q", c.Archive.Type)
	}
	return nil
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

// ReadFromFile reads a Config from the specified file path and then applies
// any GUARDD_* environment overrides on top. Secrets like the bot token can
// be kept out of the file entirely this way.
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

	if err := envconfig.Process("guardd", cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
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
