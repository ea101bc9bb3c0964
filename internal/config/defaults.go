package config

import "fmt"

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.PublicBaseURL == "" {
		cfg.Server.PublicBaseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/pdfmark/data/db/documents.db"
	}
	if cfg.Storage.BlobRoot == "" {
		cfg.Storage.BlobRoot = "/usr/local/var/pdfmark/data/files"
	}
	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = "local"
	}
	if cfg.Auth.LocalHeader == "" {
		cfg.Auth.LocalHeader = "X-Pdfmark-Identity"
	}
	if cfg.Auth.IdentityFile == "" {
		cfg.Auth.IdentityFile = ".pdfmark/identity"
	}
	if cfg.Session.DefaultZoom == 0 {
		cfg.Session.DefaultZoom = 1.0
	}
	if cfg.Session.MinZoom == 0 {
		cfg.Session.MinZoom = 0.5
	}
	if cfg.Session.MaxZoom == 0 {
		cfg.Session.MaxZoom = 2.0
	}
	if cfg.Session.ZoomStep == 0 {
		cfg.Session.ZoomStep = 0.1
	}
	if cfg.Session.MinExtent == 0 {
		cfg.Session.MinExtent = 5
	}
	if cfg.Session.SaveTimeoutSeconds == 0 {
		cfg.Session.SaveTimeoutSeconds = 10
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".pdf"}
	}
}
