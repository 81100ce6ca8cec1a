package tools

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"codesync/internal/agent"
)

// SessionInfo reports login state. The session manager implements it.
type SessionInfo interface {
	LoggedIn() bool
}

// StatusTool handles the workspace_status MCP tool.
type StatusTool struct {
	agent   *agent.Agent
	session SessionInfo
}

// NewStatusTool creates a StatusTool.
func NewStatusTool(a *agent.Agent, session SessionInfo) *StatusTool {
	return &StatusTool{agent: a, session: session}
}

// Definition returns the MCP tool definition for workspace_status.
func (t *StatusTool) Definition() mcp.Tool {
	return mcp.NewTool("workspace_status",
		mcp.WithDescription(
			"Report synchronization status: last pass counters, login state, and blob cache statistics.",
		),
	)
}

// Handle processes the workspace_status tool call.
func (t *StatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := t.agent.Status()

	var sb strings.Builder
	sb.WriteString("## Workspace status\n\n")
	fmt.Fprintf(&sb, "- **Workspace**: %s\n", t.agent.Root())
	if t.session.LoggedIn() {
		sb.WriteString("- **Session**: logged in\n")
	} else {
		sb.WriteString("- **Session**: not logged in\n")
	}

	if status.SyncedAt.IsZero() {
		sb.WriteString("- **Last sync**: never\n")
	} else {
		fmt.Fprintf(&sb, "- **Last sync**: %s (%s)\n", status.SyncedAt.Format("2006-01-02 15:04:05"), status.Duration.Round(time.Millisecond))
		fmt.Fprintf(&sb, "- **Files**: %d\n", status.Files)
		fmt.Fprintf(&sb, "- **Uploaded**: %d, **Reused**: %d, **Failed**: %d\n", status.Uploaded, status.Reused, status.Failed)
	}
	if status.LastError != "" {
		fmt.Fprintf(&sb, "- **Last error**: %s\n", status.LastError)
	}

	if stats, err := t.agent.CacheStats(); err == nil {
		fmt.Fprintf(&sb, "- **Cache**: %d entries (%d confirmed, %d pending), %d bytes\n",
			stats.Entries, stats.Confirmed, stats.Unconfirmed, stats.TotalBytes)
	}

	return mcp.NewToolResultText(sb.String()), nil
}
