package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// workspaceFile is the shape of the optional per-workspace
// .codesync.yaml. Only scan-related settings live here; credentials
// and service endpoints stay in the global config so a checked-in
// workspace file cannot redirect uploads.
type workspaceFile struct {
	Ignore           []string `yaml:"ignore"`
	MaxFileSizeBytes int64    `yaml:"max_file_size_bytes"`
	ScanWorkers      int      `yaml:"scan_workers"`
}

func mergeWorkspaceFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var ws workspaceFile
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return fmt.Errorf("failed to parse workspace config %s: %w", path, err)
	}

	cfg.IgnorePatterns = append(cfg.IgnorePatterns, ws.Ignore...)
	if ws.MaxFileSizeBytes > 0 {
		cfg.MaxFileSizeBytes = ws.MaxFileSizeBytes
	}
	if ws.ScanWorkers > 0 {
		cfg.ScanWorkers = ws.ScanWorkers
	}
	return nil
}
