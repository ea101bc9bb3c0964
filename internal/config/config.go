// Package config provides configuration loading and structs for the pdfmark server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override secrets from the config file.
const (
	EnvJWTSecret   = "PDFMARK_JWT_SECRET"
	EnvDatabaseDSN = "PDFMARK_DATABASE_DSN"
	EnvAuthMode    = "PDFMARK_AUTH_MODE"
)

// Config holds all configuration for the application.
type Config struct {
	Debug   bool          `yaml:"debug"`
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Session SessionConfig `yaml:"session"`
	Watch   WatchConfig   `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// PublicBaseURL prefixes the public location of stored files.
	PublicBaseURL string `yaml:"public_base_url"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig selects the metadata database and the file store.
type StorageConfig struct {
	Driver       string `yaml:"driver"` // sqlite | postgres
	DatabasePath string `yaml:"database_path"`
	DatabaseDSN  string `yaml:"database_dsn"`
	BlobRoot     string `yaml:"blob_root"`
}

// AuthConfig selects how requests are mapped to an identity.
type AuthConfig struct {
	Mode         string `yaml:"mode"` // local | jwt
	JWTSecret    string `yaml:"jwt_secret"`
	LocalHeader  string `yaml:"local_header"`
	IdentityFile string `yaml:"identity_file"`
}

// SessionConfig holds viewing and drawing settings.
type SessionConfig struct {
	DefaultZoom        float64 `yaml:"default_zoom"`
	MinZoom            float64 `yaml:"min_zoom"`
	MaxZoom            float64 `yaml:"max_zoom"`
	ZoomStep           float64 `yaml:"zoom_step"`
	MinExtent          float64 `yaml:"min_extent"`
	SaveTimeoutSeconds int     `yaml:"save_timeout_seconds"`
}

// WatchConfig holds inbox import settings. Import is disabled when Inbox is empty.
type WatchConfig struct {
	Inbox      string   `yaml:"inbox"`
	Identity   string   `yaml:"identity"`
	Extensions []string `yaml:"extensions"`
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.BlobRoot = expandPath(cfg.Storage.BlobRoot, configDir)
	cfg.Auth.IdentityFile = expandPath(cfg.Auth.IdentityFile, configDir)
	if cfg.Watch.Inbox != "" {
		cfg.Watch.Inbox = expandPath(cfg.Watch.Inbox, configDir)
	}

	return &cfg, nil
}

// ApplyEnv overrides secrets and the auth mode from the environment.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv(EnvJWTSecret); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		cfg.Storage.DatabaseDSN = v
	}
	if v := os.Getenv(EnvAuthMode); v != "" {
		cfg.Auth.Mode = v
	}
}

// Save writes the config to path.
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

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
