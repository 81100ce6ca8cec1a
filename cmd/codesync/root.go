package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"codesync/internal/api"
	"codesync/internal/config"
)

// rootOptions carries the persistent flags shared by all subcommands.
type rootOptions struct {
	workspace string
	logLevel  string
	json      bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "codesync",
		Short:         "Codesync keeps a remote code-intelligence service consistent with a local workspace",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Version = api.Version
	cmd.PersistentFlags().StringVar(&opts.workspace, "workspace", "", "workspace root (default: current directory)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&opts.json, "json", false, "output JSON")

	cmd.AddCommand(
		newServeCmd(opts),
		newSyncCmd(opts),
		newLoginCmd(opts),
		newLogoutCmd(opts),
		newStatusCmd(opts),
	)

	return cmd
}

// loadConfig merges configuration for the selected workspace and
// configures the default logger from flag > env > config.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	cfg, err := config.Load(o.workspace)
	if err != nil {
		return nil, err
	}
	warning, err := configureLoggerForCLI(o.logLevel, cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	if warning != "" {
		fmt.Fprintln(os.Stderr, warning)
	}
	return cfg, nil
}
