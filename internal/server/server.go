// Package server wires the synchronization components into an MCP
// server. This is the composition root: it builds the concrete cache,
// transport, session, and agent, and registers the tool handlers. No
// business logic lives here.
package server

import (
	"context"
	"fmt"
	"log/slog"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"codesync/internal/agent"
	"codesync/internal/api"
	"codesync/internal/blobcache"
	"codesync/internal/config"
	"codesync/internal/session"
	"codesync/internal/tools"
)

// New builds the MCP server for one workspace. The returned cleanup
// closes the blob cache and must be called on shutdown; it is always
// non-nil.
//
// When a session is available the initial synchronization pass runs in
// the background so the server is responsive immediately; the pass
// logs its outcome and the manifest appears once it completes.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*mcpserver.MCPServer, func(), error) {
	if log == nil {
		log = slog.Default()
	}

	cachePath := blobcache.PathFor(cfg.StateDir, cfg.WorkspaceRoot)
	cache, err := blobcache.Open(cachePath, cfg.CacheCapacityBytes)
	if err != nil {
		return nil, func() {}, fmt.Errorf("opening blob cache: %w", err)
	}
	cleanup := func() {
		if err := cache.Close(); err != nil {
			log.Warn("closing blob cache", "error", err)
		}
	}

	client := api.NewClient(cfg.APIURL)
	sessions := session.NewManager(cfg.StateDir, client)
	syncAgent := agent.New(cfg, cache, client, sessions, log)

	s := mcpserver.NewMCPServer(
		"codesync",
		api.Version,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions(serverInstructions()),
	)

	manifestTool := tools.NewManifestTool(syncAgent)
	s.AddTool(manifestTool.Definition(), manifestTool.Handle)

	resyncTool := tools.NewResyncTool(syncAgent)
	s.AddTool(resyncTool.Definition(), resyncTool.Handle)

	statusTool := tools.NewStatusTool(syncAgent, sessions)
	s.AddTool(statusTool.Definition(), statusTool.Handle)

	if sessions.LoggedIn() {
		go func() {
			if _, err := syncAgent.Sync(ctx); err != nil {
				log.Warn("initial sync failed", "error", err)
			}
		}()
	} else {
		log.Info("no session found, skipping initial sync", "hint", "run `codesync login`")
	}

	return s, cleanup, nil
}

func serverInstructions() string {
	return `You have access to codesync, a workspace synchronization MCP server.

codesync keeps a remote code-intelligence service consistent with the
local workspace by uploading file content keyed by its digest.

Tools:
- workspace_manifest: the current path-to-identity view of the workspace
- workspace_resync: rescan and upload changed content now
- workspace_status: last pass counters, login state, cache statistics

Call workspace_resync after making significant file changes so the
remote view stays current. workspace_manifest reflects the last
completed pass only.`
}
