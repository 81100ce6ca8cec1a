package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"codesync/internal/agent"
)

// ResyncTool handles the workspace_resync MCP tool.
type ResyncTool struct {
	agent *agent.Agent
}

// NewResyncTool creates a ResyncTool.
func NewResyncTool(a *agent.Agent) *ResyncTool {
	return &ResyncTool{agent: a}
}

// Definition returns the MCP tool definition for workspace_resync.
func (t *ResyncTool) Definition() mcp.Tool {
	return mcp.NewTool("workspace_resync",
		mcp.WithDescription(
			"Run a synchronization pass now: rescan the workspace, upload any content the "+
				"remote service does not hold yet, and publish a fresh manifest.",
		),
	)
}

// Handle processes the workspace_resync tool call.
func (t *ResyncTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := t.agent.Sync(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("synchronization failed: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("## Synchronization complete\n\n")
	fmt.Fprintf(&sb, "- **Files**: %d\n", len(result.Manifest))
	fmt.Fprintf(&sb, "- **Uploaded**: %d\n", result.Uploaded)
	fmt.Fprintf(&sb, "- **Reused**: %d\n", result.Reused)
	if len(result.Failed) > 0 {
		fmt.Fprintf(&sb, "- **Failed**: %d\n\n", len(result.Failed))
		for _, f := range result.Failed {
			fmt.Fprintf(&sb, "  - %s (%s): %s\n", strings.Join(f.Paths, ", "), f.Identity, f.Reason)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}
