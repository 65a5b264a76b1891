package mcptools

import (
	"context"

	"github.com/ZUENS2020/gcc-mem-system/internal/audit"
	"github.com/ZUENS2020/gcc-mem-system/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// MergeTool handles the gcc_merge MCP tool.
type MergeTool struct {
	engine *engine.Engine
	audit  *audit.Logger
}

// NewMergeTool creates a MergeTool.
func NewMergeTool(eng *engine.Engine, aud *audit.Logger) *MergeTool {
	return &MergeTool{engine: eng, audit: aud}
}

// Definition returns the MCP tool definition for gcc_merge.
func (t *MergeTool) Definition() mcp.Tool {
	return mcp.NewTool("gcc_merge",
		mcp.WithDescription(
			"Fold a finished branch back into a target branch: its checkpoints and log are appended to the "+
				"target's files and its metadata is kept under merged_from.<source>. On conflict nothing changes.",
		),
		mcp.WithString("source_branch",
			mcp.Required(),
			mcp.Description("Branch to merge from"),
		),
		mcp.WithString("target_branch",
			mcp.Description("Branch to merge into (default: the session's main branch)"),
		),
		mcp.WithString("summary",
			mcp.Description("Short description of what the merged work achieved"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier (default: 'default')"),
		),
	)
}

// Handle processes the gcc_merge tool call.
func (t *MergeTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := engine.MergeParams{
		SessionID:    req.GetString("session_id", ""),
		SourceBranch: req.GetString("source_branch", ""),
		TargetBranch: req.GetString("target_branch", ""),
		Summary:      req.GetString("summary", ""),
	}
	res, err := t.engine.Merge(ctx, p)
	return finish(t.audit, "merge", p.SessionID, p, res, err)
}
