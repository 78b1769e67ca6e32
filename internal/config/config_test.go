package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, int64(10<<20), cfg.MaxReadBytes)
	assert.Equal(t, int64(100<<20), cfg.MaxFileSize)
	assert.Equal(t, int64(100<<10), cfg.StreamThreshold)
	assert.Equal(t, "rename", cfg.ConflictStrategy)
	assert.Equal(t, filepath.Join(DataDir(), "backups"), cfg.BackupDir)
	assert.Equal(t, filepath.Join(DataDir(), "rollback"), cfg.ManifestDir)
	assert.Zero(t, cfg.InitTime)
}

func TestLoadFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	require.NoError(t, err)

	want := DefaultConfig()
	assert.Equal(t, want.ConflictStrategy, cfg.ConflictStrategy)
	assert.Equal(t, want.RateLimit, cfg.RateLimit)
	assert.Equal(t, want.AllowedDirs, cfg.AllowedDirs)
}

func TestLoadFrom_FileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
allowed_dirs:
  - ` + dir + `
max_read_bytes: 2048
rate_limit:
  per_second: 3
  burst: 6
conflict_strategy: skip
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadFrom(path, nil)
	require.NoError(t, err)

	assert.Equal(t, []string{dir}, cfg.AllowedDirs)
	assert.Equal(t, int64(2048), cfg.MaxReadBytes)
	assert.Equal(t, RateLimit{PerSecond: 3, Burst: 6}, cfg.RateLimit)
	assert.Equal(t, "skip", cfg.ConflictStrategy)
	// untouched keys keep their defaults
	assert.Equal(t, int64(100<<20), cfg.MaxFileSize)
}

func TestLoadFrom_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("conflict_strategy: skip\nmax_file_size: 4096\n"), 0o600))

	t.Setenv("ORGSAFE_CONFLICT_STRATEGY", "overwrite_if_newer")
	t.Setenv("ORGSAFE_RATE_LIMIT_BURST", "7")

	cfg, err := LoadFrom(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "overwrite_if_newer", cfg.ConflictStrategy)
	assert.Equal(t, 7, cfg.RateLimit.Burst)
	assert.Equal(t, int64(4096), cfg.MaxFileSize)
}

func TestLoadFrom_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("allowed_dirs: [unclosed"), 0o600))

	_, err := LoadFrom(path, nil)
	require.Error(t, err)
}

func TestLoadFrom_InvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("conflict_strategy: clobber\n"), 0o600))

	_, err := LoadFrom(path, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "clobber")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults are valid", func(*Config) {}, ""},
		{"empty allow-list", func(c *Config) { c.AllowedDirs = nil }, "allowed_dirs"},
		{"empty allow entry", func(c *Config) { c.AllowedDirs = []string{""} }, "empty entry"},
		{"bad pattern", func(c *Config) { c.BlockedPatterns = []string{"("} }, "blocked_patterns"},
		{"zero read limit", func(c *Config) { c.MaxReadBytes = 0 }, "max_read_bytes"},
		{"negative file size", func(c *Config) { c.MaxFileSize = -1 }, "max_file_size"},
		{"negative threshold", func(c *Config) { c.StreamThreshold = -1 }, "stream_threshold"},
		{"zero rate", func(c *Config) { c.RateLimit.PerSecond = 0 }, "rate_limit"},
		{"missing backup dir", func(c *Config) { c.BackupDir = "" }, "backup_dir"},
		{"unknown strategy", func(c *Config) { c.ConflictStrategy = "merge" }, "merge"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.AllowedDirs = []string{"/home/test"}
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSaveTo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := DefaultConfig()
	cfg.AllowedDirs = []string{"/data/inbox"}

	require.NoError(t, cfg.SaveTo(path))
	assert.NotZero(t, cfg.InitTime, "first save should stamp InitTime")

	info, err := os.Stat(path)
	require.NoError(t, err)
	if os.PathSeparator == '/' {
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, cfg.AllowedDirs, decoded.AllowedDirs)
	assert.Equal(t, cfg.InitTime, decoded.InitTime)

	initTime := cfg.InitTime
	require.NoError(t, cfg.SaveTo(path))
	assert.Equal(t, initTime, cfg.InitTime, "InitTime must not change on later saves")
}

func TestEnsureDataDirs(t *testing.T) {
	base := t.TempDir()
	cfg := DefaultConfig()
	cfg.BackupDir = filepath.Join(base, "b")
	cfg.ManifestDir = filepath.Join(base, "m")

	require.NoError(t, cfg.EnsureDataDirs())
	assert.DirExists(t, cfg.BackupDir)
	assert.DirExists(t, cfg.ManifestDir)
}
