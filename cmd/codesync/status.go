package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"codesync/internal/api"
	"codesync/internal/blobcache"
	"codesync/internal/session"
)

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session and blob cache status for the workspace",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			sessions := session.NewManager(cfg.StateDir, api.NewClient(cfg.APIURL))
			loggedIn := sessions.LoggedIn()

			cachePath := blobcache.PathFor(cfg.StateDir, cfg.WorkspaceRoot)
			cache, err := blobcache.Open(cachePath, cfg.CacheCapacityBytes)
			if err != nil {
				return fmt.Errorf("opening blob cache: %w", err)
			}
			defer cache.Close()

			stats, err := cache.Stats()
			if err != nil {
				return err
			}

			if opts.json {
				return writeJSON(map[string]any{
					"workspace":   cfg.WorkspaceRoot,
					"api_url":     cfg.APIURL,
					"logged_in":   loggedIn,
					"cache_path":  cachePath,
					"entries":     stats.Entries,
					"confirmed":   stats.Confirmed,
					"unconfirmed": stats.Unconfirmed,
					"total_bytes": stats.TotalBytes,
				})
			}

			lines := []string{
				fmt.Sprintf("workspace: %s", cfg.WorkspaceRoot),
				fmt.Sprintf("api_url: %s", cfg.APIURL),
				fmt.Sprintf("logged_in: %t", loggedIn),
				fmt.Sprintf("cache: %s", cachePath),
				fmt.Sprintf("entries: %d (%d confirmed, %d pending)", stats.Entries, stats.Confirmed, stats.Unconfirmed),
				fmt.Sprintf("cache_bytes: %d", stats.TotalBytes),
			}
			for _, line := range lines {
				if err := writePlain("%s\n", line); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
