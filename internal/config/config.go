package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration when --config is unset.
const DefaultPath = ".jake/config.yaml"

// validate caches struct metadata across calls.
var validate = validator.New()

// Config holds all jake configuration.
type Config struct {
	// Conversation storage
	Store StoreConfig `yaml:"store"`

	// Execution backend for [< >] and [( nexos rebuild )]
	Execution ExecutionConfig `yaml:"execution"`

	// Training data compilation
	Training TrainingConfig `yaml:"training"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// StoreConfig configures the embedded key-value engine.
type StoreConfig struct {
	Path         string `yaml:"path" validate:"required"`
	Driver       string `yaml:"driver" validate:"oneof=sqlite3 sqlite"` // sqlite3 (cgo) or sqlite (pure Go)
	Bucket       string `yaml:"bucket" validate:"required"`
	BackupDir    string `yaml:"backup_dir"`
	BackupOnOpen bool   `yaml:"backup_on_open"`
}

// TrainingConfig configures prompt rendering and export.
type TrainingConfig struct {
	Template    string `yaml:"template" validate:"required"`
	TemplateDir string `yaml:"template_dir"` // overrides the embedded templates when set
	Output      string `yaml:"output" validate:"required"`
	Concurrency int    `yaml:"concurrency" validate:"gte=1"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Path:         "data/jake.db",
			Driver:       "sqlite3",
			Bucket:       "conversations",
			BackupDir:    "backups",
			BackupOnOpen: true,
		},

		Execution: ExecutionConfig{
			Sandbox:          "docker",
			Image:            "nexos:latest",
			Shell:            "zsh",
			Binds:            []string{"nexos/persist:/home/jake"},
			NetworkMode:      "bridge",
			Dockerfile:       "~/System/Dockerfile.txt",
			BuildContext:     "~/System",
			Timeout:          "0s",
			WorkingDirectory: ".",
			AllowedEnvVars:   []string{"PATH", "HOME", "USER", "LANG", "LC_ALL", "TERM"},
			MaxOutputBytes:   10 * 1024 * 1024,
		},

		Training: TrainingConfig{
			Template:    "prompt.txt.tmpl",
			Output:      "data.jsonl",
			Concurrency: 4,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A .env file in the working
// directory is read first so its values can feed the environment overrides.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env: %w", err)
	}

	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if path := os.Getenv("JAKE_DB"); path != "" {
		c.Store.Path = path
	}
	if driver := os.Getenv("JAKE_DB_DRIVER"); driver != "" {
		c.Store.Driver = driver
	}
	if mode := os.Getenv("JAKE_SANDBOX"); mode != "" {
		c.Execution.Sandbox = mode
	}
	if image := os.Getenv("JAKE_IMAGE"); image != "" {
		c.Execution.Image = image
	}
	if shell := os.Getenv("JAKE_SHELL"); shell != "" {
		c.Execution.Shell = shell
	}
	if level := os.Getenv("JAKE_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if dir := os.Getenv("JAKE_TEMPLATE_DIR"); dir != "" {
		c.Training.TemplateDir = dir
	}
	if v := os.Getenv("JAKE_BACKUP_ON_OPEN"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Store.BackupOnOpen = b
		}
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := time.ParseDuration(c.Execution.Timeout); err != nil {
		return fmt.Errorf("invalid config: execution.timeout %q: %w", c.Execution.Timeout, err)
	}
	return nil
}

// GetExecutionTimeout returns the execution timeout. Zero means no limit.
func (c *Config) GetExecutionTimeout() time.Duration {
	d, err := time.ParseDuration(c.Execution.Timeout)
	if err != nil {
		return 0
	}
	return d
}
