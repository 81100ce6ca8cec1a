package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"codesync/internal/agent"
	"codesync/internal/api"
	"codesync/internal/blobcache"
	"codesync/internal/session"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			cache, err := blobcache.Open(blobcache.PathFor(cfg.StateDir, cfg.WorkspaceRoot), cfg.CacheCapacityBytes)
			if err != nil {
				return fmt.Errorf("opening blob cache: %w", err)
			}
			defer cache.Close()

			client := api.NewClient(cfg.APIURL)
			sessions := session.NewManager(cfg.StateDir, client)
			syncAgent := agent.New(cfg, cache, client, sessions, slog.Default())

			result, err := syncAgent.Sync(cmd.Context())
			if err != nil {
				return err
			}

			if opts.json {
				return writeJSON(map[string]any{
					"workspace": cfg.WorkspaceRoot,
					"files":     len(result.Manifest),
					"uploaded":  result.Uploaded,
					"reused":    result.Reused,
					"failed":    len(result.Failed),
				})
			}

			if err := writePlain("synced %s: %d files, %d uploaded, %d reused\n",
				cfg.WorkspaceRoot, len(result.Manifest), result.Uploaded, result.Reused); err != nil {
				return err
			}
			for _, failure := range result.Failed {
				if err := writePlain("failed %v: %s\n", failure.Paths, failure.Reason); err != nil {
					return err
				}
			}
			if len(result.Failed) > 0 {
				return fmt.Errorf("%d blob(s) failed to upload", len(result.Failed))
			}
			return nil
		},
	}
}
