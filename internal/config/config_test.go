package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CODESYNC_CONFIG_DIR", t.TempDir())
	t.Setenv("CODESYNC_API_URL", "")
	t.Setenv("CODESYNC_STATE_DIR", "")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("api url: got %q, want %q", cfg.APIURL, DefaultAPIURL)
	}
	if cfg.ScanWorkers != DefaultScanWorkers {
		t.Errorf("scan workers: got %d, want %d", cfg.ScanWorkers, DefaultScanWorkers)
	}
	if cfg.CacheCapacityBytes != DefaultCacheCapacity {
		t.Errorf("cache capacity: got %d, want %d", cfg.CacheCapacityBytes, DefaultCacheCapacity)
	}
	if cfg.StateDir == "" {
		t.Error("state dir should default to a non-empty path")
	}
}

func TestLoadGlobalTOML(t *testing.T) {
	configDir := t.TempDir()
	t.Setenv("CODESYNC_CONFIG_DIR", configDir)
	t.Setenv("CODESYNC_API_URL", "")

	writeFile(t, filepath.Join(configDir, ".codesync.toml"), `
api_url = "https://tenant.example.com/"
upload_workers = 9
cache_capacity_bytes = 1024
ignore_patterns = ["*.log", "*.log", ""]
`)

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "https://tenant.example.com" {
		t.Errorf("api url not normalized: %q", cfg.APIURL)
	}
	if cfg.UploadWorkers != 9 {
		t.Errorf("upload workers: got %d, want 9", cfg.UploadWorkers)
	}
	if cfg.CacheCapacityBytes != 1024 {
		t.Errorf("cache capacity: got %d, want 1024", cfg.CacheCapacityBytes)
	}
	if len(cfg.IgnorePatterns) != 1 || cfg.IgnorePatterns[0] != "*.log" {
		t.Errorf("ignore patterns not deduped: %v", cfg.IgnorePatterns)
	}
}

func TestLoadWorkspaceYAML(t *testing.T) {
	t.Setenv("CODESYNC_CONFIG_DIR", t.TempDir())
	root := t.TempDir()

	writeFile(t, filepath.Join(root, ".codesync.yaml"), `
ignore:
  - vendor
  - "*.tmp"
max_file_size_bytes: 2048
`)

	cfg, err := Load(root)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxFileSizeBytes != 2048 {
		t.Errorf("max file size: got %d, want 2048", cfg.MaxFileSizeBytes)
	}
	want := map[string]bool{"vendor": true, "*.tmp": true}
	for _, p := range cfg.IgnorePatterns {
		delete(want, p)
	}
	if len(want) != 0 {
		t.Errorf("missing workspace ignore patterns: %v (got %v)", want, cfg.IgnorePatterns)
	}
}

func TestLoadWorkspaceYAMLInvalid(t *testing.T) {
	t.Setenv("CODESYNC_CONFIG_DIR", t.TempDir())
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".codesync.yaml"), "ignore: [unclosed")

	if _, err := Load(root); err == nil {
		t.Fatal("expected parse error for invalid workspace config")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CODESYNC_CONFIG_DIR", t.TempDir())
	t.Setenv("CODESYNC_API_URL", "https://env.example.com")
	stateDir := t.TempDir()
	t.Setenv("CODESYNC_STATE_DIR", stateDir)
	t.Setenv("CODESYNC_UPLOAD_WORKERS", "2")

	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.APIURL != "https://env.example.com" {
		t.Errorf("env api url not applied: %q", cfg.APIURL)
	}
	if cfg.StateDir != stateDir {
		t.Errorf("env state dir not applied: %q", cfg.StateDir)
	}
	if cfg.UploadWorkers != 2 {
		t.Errorf("env upload workers not applied: %d", cfg.UploadWorkers)
	}
}
