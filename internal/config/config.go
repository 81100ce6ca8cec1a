// Package config loads codesync runtime configuration.
//
// Configuration is layered: built-in defaults, then the global TOML
// file (~/.codesync.toml or $CODESYNC_CONFIG_DIR/.codesync.toml), then
// an optional per-workspace .codesync.yaml, then environment variable
// overrides. The core receives the merged result as a single value at
// construction time and performs no further lookups.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL = "https://api.codesync.dev"

	DefaultScanWorkers      = 8
	DefaultUploadWorkers    = 4
	DefaultUploadAttempts   = 4
	DefaultMaxFileSizeBytes = int64(1024 * 1024)
	DefaultCacheCapacity    = int64(512 * 1024 * 1024)
	DefaultLogLevel         = "info"

	globalConfigFileName    = ".codesync.toml"
	workspaceConfigFileName = ".codesync.yaml"

	configDirEnvKey = "CODESYNC_CONFIG_DIR"
	apiURLEnvKey    = "CODESYNC_API_URL"
	stateDirEnvKey  = "CODESYNC_STATE_DIR"
)

// Config defines runtime configuration for codesync.
type Config struct {
	// APIURL is the base URL of the remote code-intelligence service.
	APIURL string `toml:"api_url"`
	// StateDir holds the session file and per-workspace blob caches.
	// Defaults to ~/.codesync.
	StateDir string `toml:"state_dir"`
	// WorkspaceRoot is the directory to scan. Defaults to the current
	// working directory; `serve`/`sync` accept it as an argument.
	WorkspaceRoot string `toml:"workspace_root"`

	// ScanWorkers bounds concurrent file hashing during a scan.
	ScanWorkers int `toml:"scan_workers"`
	// UploadWorkers bounds concurrent blob uploads.
	UploadWorkers int `toml:"upload_workers"`
	// UploadAttempts is the total attempt limit per blob, including
	// the first try.
	UploadAttempts int `toml:"upload_attempts"`
	// MaxFileSizeBytes: larger files are skipped during scanning.
	MaxFileSizeBytes int64 `toml:"max_file_size_bytes"`
	// CacheCapacityBytes caps the blob cache; confirmed entries are
	// evicted least-recently-used first once exceeded.
	CacheCapacityBytes int64 `toml:"cache_capacity_bytes"`

	// IgnorePatterns are layered on top of the built-in defaults.
	IgnorePatterns []string `toml:"ignore_patterns"`

	LogLevel string `toml:"log_level"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:             DefaultAPIURL,
		ScanWorkers:        DefaultScanWorkers,
		UploadWorkers:      DefaultUploadWorkers,
		UploadAttempts:     DefaultUploadAttempts,
		MaxFileSizeBytes:   DefaultMaxFileSizeBytes,
		CacheCapacityBytes: DefaultCacheCapacity,
		LogLevel:           DefaultLogLevel,
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if dir := strings.TrimSpace(os.Getenv(configDirEnvKey)); dir != "" {
		return filepath.Join(dir, globalConfigFileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, globalConfigFileName), nil
}

// Load reads the global config file, merges the workspace file found
// under workspaceRoot (if any), and applies env overrides.
// workspaceRoot may be empty; the current directory is used then.
func Load(workspaceRoot string) (*Config, error) {
	cfg := Default()

	globalPath, err := GlobalPath()
	if err == nil {
		if err := loadTOMLIfExists(globalPath, &cfg); err != nil {
			return nil, err
		}
	}

	if workspaceRoot != "" {
		cfg.WorkspaceRoot = workspaceRoot
	}
	if cfg.WorkspaceRoot == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.WorkspaceRoot = cwd
		}
	}

	if cfg.WorkspaceRoot != "" {
		wsPath := filepath.Join(cfg.WorkspaceRoot, workspaceConfigFileName)
		if err := mergeWorkspaceFile(wsPath, &cfg); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(&cfg)

	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving state dir: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".codesync")
	}

	cfg.normalize()
	return &cfg, nil
}

func loadTOMLIfExists(path string, cfg *Config) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if info.IsDir() {
		return nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if apiURL := strings.TrimSpace(os.Getenv(apiURLEnvKey)); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if stateDir := strings.TrimSpace(os.Getenv(stateDirEnvKey)); stateDir != "" {
		cfg.StateDir = stateDir
	}
	if raw := strings.TrimSpace(os.Getenv("CODESYNC_UPLOAD_WORKERS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.UploadWorkers = parsed
		}
	}
	if raw := strings.TrimSpace(os.Getenv("CODESYNC_SCAN_WORKERS")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			cfg.ScanWorkers = parsed
		}
	}
}

func (c *Config) normalize() {
	c.APIURL = strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
	if c.ScanWorkers <= 0 {
		c.ScanWorkers = DefaultScanWorkers
	}
	if c.UploadWorkers <= 0 {
		c.UploadWorkers = DefaultUploadWorkers
	}
	if c.UploadAttempts <= 0 {
		c.UploadAttempts = DefaultUploadAttempts
	}
	if c.MaxFileSizeBytes <= 0 {
		c.MaxFileSizeBytes = DefaultMaxFileSizeBytes
	}
	if c.CacheCapacityBytes <= 0 {
		c.CacheCapacityBytes = DefaultCacheCapacity
	}
	c.IgnorePatterns = dedupePatterns(c.IgnorePatterns)
}

func dedupePatterns(raw []string) []string {
	if len(raw) == 0 {
		return nil
	}
	seen := map[string]struct{}{}
	out := make([]string, 0, len(raw))
	for _, pattern := range raw {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if _, ok := seen[pattern]; ok {
			continue
		}
		seen[pattern] = struct{}{}
		out = append(out, pattern)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
