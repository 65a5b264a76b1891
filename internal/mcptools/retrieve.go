package mcptools

import (
	"context"

	"github.com/ZUENS2020/gcc-mem-system/internal/audit"
	"github.com/ZUENS2020/gcc-mem-system/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// ContextTool handles the gcc_context MCP tool.
type ContextTool struct {
	engine *engine.Engine
	audit  *audit.Logger
}

// NewContextTool creates a ContextTool.
func NewContextTool(eng *engine.Engine, aud *audit.Logger) *ContextTool {
	return &ContextTool{engine: eng, audit: aud}
}

// Definition returns the MCP tool definition for gcc_context.
func (t *ContextTool) Definition() mcp.Tool {
	return mcp.NewTool("gcc_context",
		mcp.WithDescription(
			"Retrieve remembered state at a chosen granularity. With no arguments: the session overview "+
				"(goal, todo, branches). With branch: that branch's purpose, checkpoints, and metadata. "+
				"commit_id, log_tail, and metadata_segment narrow further and all require branch.",
		),
		mcp.WithString("branch",
			mcp.Description("Branch to inspect"),
		),
		mcp.WithString("commit_id",
			mcp.Description("Return one checkpoint by id (requires branch)"),
		),
		mcp.WithNumber("log_tail",
			mcp.Description("Return the last N log lines (requires branch)"),
		),
		mcp.WithString("metadata_segment",
			mcp.Description("Return one metadata key, dotted paths allowed (requires branch)"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier (default: 'default')"),
		),
	)
}

// Handle processes the gcc_context tool call.
func (t *ContextTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := engine.ContextParams{
		SessionID:       req.GetString("session_id", ""),
		Branch:          req.GetString("branch", ""),
		CommitID:        req.GetString("commit_id", ""),
		LogTail:         intArg(req, "log_tail", 0),
		MetadataSegment: req.GetString("metadata_segment", ""),
	}
	res, err := t.engine.Context(ctx, p)
	return finish(t.audit, "context", p.SessionID, p, res, err)
}

// HistoryTool handles the gcc_history MCP tool.
type HistoryTool struct {
	engine *engine.Engine
	audit  *audit.Logger
}

// NewHistoryTool creates a HistoryTool.
func NewHistoryTool(eng *engine.Engine, aud *audit.Logger) *HistoryTool {
	return &HistoryTool{engine: eng, audit: aud}
}

// Definition returns the MCP tool definition for gcc_history.
func (t *HistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("gcc_history",
		mcp.WithDescription(
			"List recent revisions of the session's memory, newest first, with revision ids usable in gcc_diff, "+
				"gcc_show, and gcc_reset.",
		),
		mcp.WithString("branch",
			mcp.Description("Limit history to one branch"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum revisions to return (default 20)"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier (default: 'default')"),
		),
	)
}

// Handle processes the gcc_history tool call.
func (t *HistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := req.GetString("session_id", "")
	branch := req.GetString("branch", "")
	limit := intArg(req, "limit", 0)
	res, err := t.engine.History(ctx, session, branch, limit)
	return finish(t.audit, "history", session,
		map[string]any{"branch": branch, "limit": limit}, res, err)
}
