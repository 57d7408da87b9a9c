package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir moves into dir for the duration of the test so .env lookup is isolated.
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "conversations", cfg.Store.Bucket)
	assert.Equal(t, "sqlite3", cfg.Store.Driver)
	assert.Equal(t, "nexos:latest", cfg.Execution.Image)
	assert.Equal(t, "zsh", cfg.Execution.Shell)
	assert.Equal(t, time.Duration(0), cfg.GetExecutionTimeout())
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := Load(filepath.Join(dir, "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Store, cfg.Store)
}

func TestConfig_SaveLoad(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	path := filepath.Join(dir, ".jake", "config.yaml")

	cfg := DefaultConfig()
	cfg.Store.Path = "elsewhere.db"
	cfg.Execution.Sandbox = "none"
	cfg.Training.Concurrency = 8

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "elsewhere.db", loaded.Store.Path)
	assert.Equal(t, "none", loaded.Execution.Sandbox)
	assert.Equal(t, 8, loaded.Training.Concurrency)
}

func TestConfig_EnvOverrides(t *testing.T) {
	t.Run("Environment", func(t *testing.T) {
		t.Setenv("JAKE_DB", "/tmp/test.db")
		t.Setenv("JAKE_SANDBOX", "none")
		t.Setenv("JAKE_LOG_LEVEL", "debug")
		t.Setenv("JAKE_BACKUP_ON_OPEN", "false")

		cfg := DefaultConfig()
		cfg.applyEnvOverrides()

		assert.Equal(t, "/tmp/test.db", cfg.Store.Path)
		assert.Equal(t, "none", cfg.Execution.Sandbox)
		assert.Equal(t, "debug", cfg.Logging.Level)
		assert.False(t, cfg.Store.BackupOnOpen)
	})

	t.Run("DotEnv", func(t *testing.T) {
		dir := t.TempDir()
		chdir(t, dir)
		require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("JAKE_IMAGE=custom:1\n"), 0644))
		t.Setenv("JAKE_IMAGE", "")
		require.NoError(t, os.Unsetenv("JAKE_IMAGE"))

		cfg, err := Load(filepath.Join(dir, "config.yaml"))
		require.NoError(t, err)
		assert.Equal(t, "custom:1", cfg.Execution.Image)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unknown driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"empty path", func(c *Config) { c.Store.Path = "" }},
		{"unknown sandbox", func(c *Config) { c.Execution.Sandbox = "firejail" }},
		{"docker without image", func(c *Config) { c.Execution.Image = "" }},
		{"bad timeout", func(c *Config) { c.Execution.Timeout = "soon" }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
		{"zero concurrency", func(c *Config) { c.Training.Concurrency = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("host sandbox needs no image", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Execution.Sandbox = "none"
		cfg.Execution.Image = ""
		assert.NoError(t, cfg.Validate())
	})
}

func TestLoggingConfig_Options(t *testing.T) {
	lc := LoggingConfig{Level: "warn", Format: "json", Categories: map[string]bool{"store": false}}
	opts := lc.Options()
	assert.Equal(t, "warn", opts.Level)
	assert.False(t, lc.IsCategoryEnabled("store"))
	assert.True(t, lc.IsCategoryEnabled("tactile"))
}
