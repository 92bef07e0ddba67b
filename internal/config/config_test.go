package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServiceConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("HOST_SHARED_DIR", "")
	t.Setenv("PORT", "")

	cfg, err := LoadServiceConfig()
	if err != nil {
		t.Fatalf("LoadServiceConfig() error = %v", err)
	}
	if cfg.Port != "3001" {
		t.Errorf("Expected port 3001, got %q", cfg.Port)
	}
	if cfg.ExternalSharedDir != "/tmp/dogi-shared/instances" {
		t.Errorf("Unexpected external dir %q", cfg.ExternalSharedDir)
	}
	if cfg.DefaultDockerfile != "Dockerfile" {
		t.Errorf("Expected Dockerfile default, got %q", cfg.DefaultDockerfile)
	}
	if cfg.CallbackTimeout != 30*time.Second {
		t.Errorf("Expected 30s callback timeout, got %v", cfg.CallbackTimeout)
	}
}

func TestLoadServiceConfig_FileWithEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dogi.yaml")
	content := `settings:
  port: 8080
  advertisedUrl: https://dogi.example.com
  hostSharedDir: /srv
  bypassSignatures: true
  callbackTimeout: 5s
callbackHeaders:
  X-Token: abc
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HOST_SHARED_DIR", "")
	t.Setenv("CB_HEADERS", "")
	t.Setenv("PORT", "9999")

	cfg, err := LoadServiceConfig()
	if err != nil {
		t.Fatalf("LoadServiceConfig() error = %v", err)
	}
	if cfg.Port != "9999" {
		t.Errorf("Expected env to win with 9999, got %q", cfg.Port)
	}
	if cfg.AdvertisedURL != "https://dogi.example.com" {
		t.Errorf("Unexpected advertised URL %q", cfg.AdvertisedURL)
	}
	if cfg.ExternalSharedDir != "/srv/dogi-shared/instances" {
		t.Errorf("Unexpected external dir %q", cfg.ExternalSharedDir)
	}
	if !cfg.BypassSignatures {
		t.Error("Expected signatures to be bypassed")
	}
	if cfg.CallbackTimeout != 5*time.Second {
		t.Errorf("Expected 5s, got %v", cfg.CallbackTimeout)
	}
	if cfg.CallbackHeaders["X-Token"] != "abc" {
		t.Errorf("Expected callback header from file, got %v", cfg.CallbackHeaders)
	}
}

func TestLoadServiceConfig_BadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("settings: [unclosed"), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)

	if _, err := LoadServiceConfig(); err == nil {
		t.Error("Expected error for malformed config file")
	}
}

func TestServiceConfig_Validate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		cfg     ServiceConfig
		wantErr bool
	}{
		{"bypass", ServiceConfig{BypassSignatures: true}, false},
		{"missing secret", ServiceConfig{}, true},
		{"short secret", ServiceConfig{SignaturesSecret: "abc"}, true},
		{"valid secret", ServiceConfig{SignaturesSecret: "myLittleSecret"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
