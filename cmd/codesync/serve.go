package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"codesync/internal/server"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the MCP server on stdio",
		Long: "Run the MCP synchronization server on stdio. When a session exists, an " +
			"initial synchronization pass starts in the background.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			logger := slog.Default().With("component", "server")

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			s, cleanup, err := server.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			logger.Info("serving MCP on stdio", "workspace", cfg.WorkspaceRoot)
			return mcpserver.ServeStdio(s)
		},
	}
}
