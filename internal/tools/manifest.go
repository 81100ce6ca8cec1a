// Package tools implements the MCP tool surface: read the current
// manifest, trigger a resync, and report agent status.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mark3labs/mcp-go/mcp"

	"codesync/internal/agent"
)

// ManifestTool handles the workspace_manifest MCP tool.
type ManifestTool struct {
	agent *agent.Agent
}

// NewManifestTool creates a ManifestTool.
func NewManifestTool(a *agent.Agent) *ManifestTool {
	return &ManifestTool{agent: a}
}

// Definition returns the MCP tool definition for workspace_manifest.
func (t *ManifestTool) Definition() mcp.Tool {
	return mcp.NewTool("workspace_manifest",
		mcp.WithDescription(
			"Return the current workspace manifest: every tracked file path mapped to its "+
				"content identity, as published by the last successful synchronization pass.",
		),
	)
}

// Handle processes the workspace_manifest tool call.
func (t *ManifestTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	manifest := t.agent.Manifest()
	if manifest == nil {
		return mcp.NewToolResultText("No manifest yet: no synchronization pass has completed. Run workspace_resync first."), nil
	}

	paths := make([]string, 0, len(manifest))
	for path := range manifest {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	entries := make(map[string]string, len(manifest))
	for _, path := range paths {
		entries[path] = manifest[path].String()
	}
	payload, err := json.MarshalIndent(map[string]any{
		"workspace": t.agent.Root(),
		"files":     len(entries),
		"manifest":  entries,
	}, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding manifest: %v", err)), nil
	}
	return mcp.NewToolResultText(string(payload)), nil
}
