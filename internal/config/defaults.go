package config

import (
	"os"
	"time"
)

// Environment variables consulted when the file leaves a value empty.
const (
	EnvAPIKey = "GEMINI_API_KEY"
	EnvModel  = "GEMINI_MODEL"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120 * time.Second
	}
	if cfg.Server.RequestTimeout == 0 {
		cfg.Server.RequestTimeout = 110 * time.Second
	}
	if cfg.Server.MaxUploadBytes == 0 {
		cfg.Server.MaxUploadBytes = 200 << 20
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shiryo/data/db/notebooks.db"
	}
	if cfg.Storage.BleveIndexPath == "" {
		cfg.Storage.BleveIndexPath = "/usr/local/var/shiryo/data/indices/bleve"
	}
	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.MaxFileBytes == 0 {
		cfg.Ingest.MaxFileBytes = 50 << 20
	}
	if cfg.Viewer.DefaultScale == 0 {
		cfg.Viewer.DefaultScale = 1.0
	}
	if cfg.Viewer.ThumbnailScale == 0 {
		cfg.Viewer.ThumbnailScale = 0.2
	}
	if cfg.Viewer.ThumbnailLimit == 0 {
		cfg.Viewer.ThumbnailLimit = 50
	}
	if cfg.Viewer.IdleTimeout == 0 {
		cfg.Viewer.IdleTimeout = 15 * time.Minute
	}
	if cfg.Viewer.MaxSessions == 0 {
		cfg.Viewer.MaxSessions = 32
	}
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = os.Getenv(EnvAPIKey)
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = os.Getenv(EnvModel)
	}
	if cfg.Gemini.Model == "" {
		cfg.Gemini.Model = "gemini-2.5-flash"
	}
	if cfg.Gemini.BaseURL == "" {
		cfg.Gemini.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Gemini.Timeout == 0 {
		cfg.Gemini.Timeout = 90 * time.Second
	}
	if cfg.Gemini.MaxContextChars == 0 {
		cfg.Gemini.MaxContextChars = 30000
	}
	if cfg.Inbox.Debounce == 0 {
		cfg.Inbox.Debounce = 500 * time.Millisecond
	}
}
