// Package config provides configuration loading and structs for the shiryo server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Ingest  IngestConfig  `yaml:"ingest"`
	Viewer  ViewerConfig  `yaml:"viewer"`
	Gemini  GeminiConfig  `yaml:"gemini"`
	Inbox   InboxConfig   `yaml:"inbox"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// Address returns the listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate validates the server configuration.
func (c *ServerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Host, validation.Required),
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
		validation.Field(&c.RequestTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxUploadBytes, validation.Required, validation.Min(int64(1))),
	)
}

// StorageConfig holds paths for the database and the keyword index.
type StorageConfig struct {
	DatabasePath   string `yaml:"database_path"`
	BleveIndexPath string `yaml:"bleve_index_path"`
}

// Validate validates the storage configuration.
func (c *StorageConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DatabasePath, validation.Required),
		validation.Field(&c.BleveIndexPath, validation.Required),
	)
}

// IngestConfig holds extraction settings.
type IngestConfig struct {
	Workers      int   `yaml:"workers"`
	MaxFileBytes int64 `yaml:"max_file_bytes"`
}

// Validate validates the ingest configuration.
func (c *IngestConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Workers, validation.Required, validation.Min(1), validation.Max(64)),
		validation.Field(&c.MaxFileBytes, validation.Required, validation.Min(int64(1))),
	)
}

// ViewerConfig holds PDF viewer session settings.
type ViewerConfig struct {
	DefaultScale   float64       `yaml:"default_scale"`
	ThumbnailScale float64       `yaml:"thumbnail_scale"`
	ThumbnailLimit int           `yaml:"thumbnail_limit"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxSessions    int           `yaml:"max_sessions"`
}

// Validate validates the viewer configuration.
func (c *ViewerConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.DefaultScale, validation.Required, validation.Min(0.25), validation.Max(4.0)),
		validation.Field(&c.ThumbnailScale, validation.Required, validation.Min(0.05), validation.Max(1.0)),
		validation.Field(&c.ThumbnailLimit, validation.Required, validation.Min(1), validation.Max(50)),
		validation.Field(&c.IdleTimeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxSessions, validation.Required, validation.Min(1)),
	)
}

// GeminiConfig holds generative model settings. An empty APIKey disables chat
// and studio until a key is supplied at runtime.
type GeminiConfig struct {
	APIKey          string        `yaml:"api_key"`
	Model           string        `yaml:"model"`
	BaseURL         string        `yaml:"base_url"`
	Timeout         time.Duration `yaml:"timeout"`
	MaxContextChars int           `yaml:"max_context_chars"`
}

// Validate validates the gemini configuration.
func (c *GeminiConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Model, validation.Required),
		validation.Field(&c.BaseURL, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxContextChars, validation.Required, validation.Min(1000)),
	)
}

// InboxConfig holds directory auto-import settings. Files dropped into a
// directory are imported into Notebook.
type InboxConfig struct {
	Directories []string      `yaml:"directories"`
	Notebook    string        `yaml:"notebook"`
	Debounce    time.Duration `yaml:"debounce"`
}

// Enabled reports whether any inbox directory is configured.
func (c *InboxConfig) Enabled() bool { return len(c.Directories) > 0 }

// Validate validates the inbox configuration.
func (c *InboxConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Notebook, validation.When(c.Enabled(), validation.Required)),
		validation.Field(&c.Debounce, validation.Min(time.Duration(0))),
	)
}

// Validate validates every section.
func (c *Config) Validate() error {
	sections := []struct {
		name string
		v    validation.Validatable
	}{
		{"server", &c.Server},
		{"storage", &c.Storage},
		{"ingest", &c.Ingest},
		{"viewer", &c.Viewer},
		{"gemini", &c.Gemini},
		{"inbox", &c.Inbox},
	}
	for _, s := range sections {
		if err := s.v.Validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// Load reads and parses the config file at path, expands environment variables
// and paths, applies defaults and validates the result. A .env file next to the
// config is loaded first; variables already set in the environment win.
func Load(path string) (*Config, error) {
	configDir := filepath.Dir(path)
	if err := loadDotEnv(filepath.Join(configDir, ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	for i := range cfg.Inbox.Directories {
		cfg.Inbox.Directories[i] = expandPath(cfg.Inbox.Directories[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration built from defaults and the environment
// alone, for running without a config file.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Save writes the config to path. Used for persisting a changed API key or inbox list.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// expandPath converts a path to absolute. A leading "~" is the home directory,
// paths starting with "./" are relative to configDir, and other relative paths
// are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	home, homeErr := os.UserHomeDir()
	if path == "~" || strings.HasPrefix(path, "~/") {
		if homeErr != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if homeErr == nil {
		return filepath.Join(home, path)
	}
	return path
}
