package main

import (
	"github.com/spf13/cobra"

	"codesync/internal/session"
)

func newLogoutCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}

			sessions := session.NewManager(cfg.StateDir, nil)
			if err := sessions.Clear(); err != nil {
				return err
			}

			if opts.json {
				return writeJSON(map[string]any{"logged_in": false})
			}
			return writePlain("logged out\n")
		},
	}
}
