package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ASSET_DIR", "/data/assets")
	t.Setenv("OUTPUT_DIR", "/data/out")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.EditionSize != 10 {
		t.Errorf("Expected default edition size 10, got %d", cfg.EditionSize)
	}
	if got := strings.Join(cfg.ImageExtensions, ","); got != "jpeg,png,gif" {
		t.Errorf("Expected default extensions jpeg,png,gif, got %s", got)
	}
	if cfg.AudioFile != filepath.Join("/data/assets", "sounds", "sound.mp3") {
		t.Errorf("Unexpected audio file default: %s", cfg.AudioFile)
	}
	if cfg.ImageDir() != filepath.Join("/data/assets", "jackets") {
		t.Errorf("Unexpected image dir: %s", cfg.ImageDir())
	}
	if cfg.ParquetPath != filepath.Join("/data/out", "_catalog.parquet") {
		t.Errorf("Unexpected parquet path: %s", cfg.ParquetPath)
	}
	if cfg.HTTPTimeout != 60*time.Second {
		t.Errorf("Expected 60s timeout, got %s", cfg.HTTPTimeout)
	}
	if cfg.UploadConcurrency != 1 {
		t.Errorf("Expected sequential uploads by default, got %d", cfg.UploadConcurrency)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EDITION_SIZE", "3")
	t.Setenv("IMAGE_EXTENSIONS", " PNG,.jpeg ")
	t.Setenv("REACT_APP_MORALIS_SERVER_URL", "https://example.moralis.io:2053/server")
	t.Setenv("MASTER_KEY", "master")
	t.Setenv("UPLOAD_CONCURRENCY", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.EditionSize != 3 {
		t.Errorf("Expected edition size 3, got %d", cfg.EditionSize)
	}
	if got := strings.Join(cfg.ImageExtensions, ","); got != "png,jpeg" {
		t.Errorf("Expected normalized extensions png,jpeg, got %s", got)
	}
	if cfg.Moralis.ServerURL != "https://example.moralis.io:2053/server" || cfg.Moralis.MasterKey != "master" {
		t.Errorf("Moralis settings not loaded: %+v", cfg.Moralis)
	}
	if cfg.UploadConcurrency != 4 {
		t.Errorf("Expected upload concurrency 4, got %d", cfg.UploadConcurrency)
	}
}

func validConfig() *Config {
	return &Config{
		EditionSize:       5,
		ImageExtensions:   []string{"jpeg"},
		UploadBackend:     "moralis",
		Moralis:           MoralisConfig{ServerURL: "https://m.example", AppID: "app", MasterKey: "key"},
		PublishURL:        "https://deep-index.example/api/v2/ipfs/uploadFolder",
		APIKey:            "secret",
		GatewayURL:        "https://ipfs.example/ipfs",
		CatalogBackend:    "memory",
		UploadConcurrency: 1,
		UploadMaxAttempts: 3,
		ReadConcurrency:   8,
		IndexConcurrency:  4,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "zero edition", mutate: func(c *Config) { c.EditionSize = 0 }, wantErr: "EDITION_SIZE"},
		{name: "missing master key", mutate: func(c *Config) { c.Moralis.MasterKey = "" }, wantErr: "MASTER_KEY"},
		{name: "unknown upload backend", mutate: func(c *Config) { c.UploadBackend = "ftp" }, wantErr: "UPLOAD_BACKEND"},
		{name: "s3 needs bucket", mutate: func(c *Config) { c.UploadBackend = "s3"; c.S3.PublicBaseURL = "https://cdn" }, wantErr: "S3_BUCKET"},
		{name: "missing api key", mutate: func(c *Config) { c.APIKey = "" }, wantErr: "API_KEY"},
		{name: "postgres needs url", mutate: func(c *Config) { c.CatalogBackend = "postgres" }, wantErr: "DATABASE_URL"},
		{name: "bad gateway", mutate: func(c *Config) { c.GatewayURL = "not a url" }, wantErr: "IPFS_GATEWAY_URL"},
		{name: "zero read concurrency", mutate: func(c *Config) { c.ReadConcurrency = 0 }, wantErr: "READ_CONCURRENCY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error mentioning %s, got %v", tt.wantErr, err)
			}
		})
	}
}
