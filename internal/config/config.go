package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"orgsafe/internal/logging"
	"orgsafe/pkg/fileops"
)

const APP_NAME = "orgsafe" // application name used for config and data directories

// EnvPrefix is the prefix for environment overrides, e.g.
// ORGSAFE_RATE_LIMIT_PER_SECOND=5.
const EnvPrefix = "ORGSAFE"

// Conflict strategies accepted by the organizer.
var validStrategies = map[string]struct{}{
	"rename":             {},
	"skip":               {},
	"overwrite":          {},
	"overwrite_if_newer": {},
}

// RateLimit configures the token bucket shared by all operations.
type RateLimit struct {
	PerSecond float64 `mapstructure:"per_second" yaml:"per_second"`
	Burst     int     `mapstructure:"burst" yaml:"burst"`
}

// Config holds user configuration for orgsafe.
type Config struct {
	// AllowedDirs are the only directories orgsafe reads from or organizes.
	AllowedDirs []string `mapstructure:"allowed_dirs" yaml:"allowed_dirs"`
	// BlockedPatterns are extra regular expressions appended to the built-in block-list.
	BlockedPatterns []string `mapstructure:"blocked_patterns" yaml:"blocked_patterns,omitempty"`

	MaxReadBytes    int64 `mapstructure:"max_read_bytes" yaml:"max_read_bytes"`
	MaxFileSize     int64 `mapstructure:"max_file_size" yaml:"max_file_size"`
	StreamThreshold int64 `mapstructure:"stream_threshold" yaml:"stream_threshold"`

	RateLimit RateLimit `mapstructure:"rate_limit" yaml:"rate_limit"`

	BackupDir        string `mapstructure:"backup_dir" yaml:"backup_dir"`
	ManifestDir      string `mapstructure:"manifest_dir" yaml:"manifest_dir"`
	ConflictStrategy string `mapstructure:"conflict_strategy" yaml:"conflict_strategy"`

	Version  string `mapstructure:"version" yaml:"version"`     // Track config version
	InitTime int64  `mapstructure:"init_time" yaml:"init_time"` // Unix timestamp of first save
}

// ConfigPath returns the standard config file path for the current platform.
func ConfigPath() string {
	return filepath.Join(xdg.ConfigHome, APP_NAME, "config.yaml")
}

// DataDir returns the directory holding backups and rollback manifests.
func DataDir() string {
	return filepath.Join(xdg.DataHome, APP_NAME)
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	var allowed []string
	if home, err := os.UserHomeDir(); err == nil {
		allowed = []string{home}
	}

	return Config{
		AllowedDirs:      allowed,
		MaxReadBytes:     10 << 20,
		MaxFileSize:      100 << 20,
		StreamThreshold:  100 << 10,
		RateLimit:        RateLimit{PerSecond: 20, Burst: 40},
		BackupDir:        filepath.Join(DataDir(), "backups"),
		ManifestDir:      filepath.Join(DataDir(), "rollback"),
		ConflictStrategy: "rename",
		Version:          "1.0",
		InitTime:         0, // Will be set during first save
	}
}

// Load reads the config from the standard location. A missing file is not an
// error: defaults apply, and environment overrides are still honored.
func Load(logger *logging.AppLogger) (*Config, error) {
	return LoadFrom(ConfigPath(), logger)
}

// LoadFrom reads the config from path, layering ORGSAFE_* environment
// variables on top of the file and the file on top of the defaults.
func LoadFrom(path string, logger *logging.AppLogger) (*Config, error) {
	if logger == nil {
		logger = logging.Discard()
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		logger.Debug("No config file, using defaults", "path", path)
	} else {
		logger.Debug("Loaded config file", "path", v.ConfigFileUsed())
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("allowed_dirs", d.AllowedDirs)
	v.SetDefault("blocked_patterns", d.BlockedPatterns)
	v.SetDefault("max_read_bytes", d.MaxReadBytes)
	v.SetDefault("max_file_size", d.MaxFileSize)
	v.SetDefault("stream_threshold", d.StreamThreshold)
	v.SetDefault("rate_limit.per_second", d.RateLimit.PerSecond)
	v.SetDefault("rate_limit.burst", d.RateLimit.Burst)
	v.SetDefault("backup_dir", d.BackupDir)
	v.SetDefault("manifest_dir", d.ManifestDir)
	v.SetDefault("conflict_strategy", d.ConflictStrategy)
	v.SetDefault("version", d.Version)
	v.SetDefault("init_time", d.InitTime)
}

// normalize expands "~" in every configured directory.
func (c *Config) normalize() {
	for i, dir := range c.AllowedDirs {
		c.AllowedDirs[i] = fileops.ExpandPath(strings.TrimSpace(dir))
	}
	c.BackupDir = fileops.ExpandPath(c.BackupDir)
	c.ManifestDir = fileops.ExpandPath(c.ManifestDir)
}

// Validate rejects configurations the services cannot run with.
func (c *Config) Validate() error {
	if len(c.AllowedDirs) == 0 {
		return fmt.Errorf("allowed_dirs must list at least one directory")
	}
	for _, dir := range c.AllowedDirs {
		if dir == "" {
			return fmt.Errorf("allowed_dirs contains an empty entry")
		}
	}
	if _, err := fileops.CompilePatterns(c.BlockedPatterns); err != nil {
		return fmt.Errorf("blocked_patterns: %w", err)
	}
	if c.MaxReadBytes <= 0 {
		return fmt.Errorf("max_read_bytes must be positive, got %d", c.MaxReadBytes)
	}
	if c.MaxFileSize <= 0 {
		return fmt.Errorf("max_file_size must be positive, got %d", c.MaxFileSize)
	}
	if c.StreamThreshold < 0 {
		return fmt.Errorf("stream_threshold cannot be negative, got %d", c.StreamThreshold)
	}
	if c.RateLimit.PerSecond <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("rate_limit values must be positive, got %v/s burst %d", c.RateLimit.PerSecond, c.RateLimit.Burst)
	}
	if c.BackupDir == "" || c.ManifestDir == "" {
		return fmt.Errorf("backup_dir and manifest_dir must be set")
	}
	if _, ok := validStrategies[c.ConflictStrategy]; !ok {
		return fmt.Errorf("unknown conflict_strategy %q", c.ConflictStrategy)
	}
	return nil
}

// Save writes the config to the standard location.
func (c *Config) Save() error {
	return c.SaveTo(ConfigPath())
}

// SaveTo writes the config to a specific path
func (c *Config) SaveTo(path string) error {
	// Set init time if this is the first save
	if c.InitTime == 0 {
		c.InitTime = time.Now().Unix()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := c.Marshal()
	if err != nil {
		return err
	}

	// Restrictive permissions (600): the file names private directories.
	if err := fileops.AtomicWriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Marshal renders the config as YAML.
func (c *Config) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config: %w", err)
	}
	return data, nil
}

// EnsureDataDirs creates the backup and manifest directories with private permissions.
func (c *Config) EnsureDataDirs() error {
	for _, dir := range []string{c.BackupDir, c.ManifestDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}
