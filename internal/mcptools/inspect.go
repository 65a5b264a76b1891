package mcptools

import (
	"context"

	"github.com/ZUENS2020/gcc-mem-system/internal/audit"
	"github.com/ZUENS2020/gcc-mem-system/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// DiffTool handles the gcc_diff MCP tool.
type DiffTool struct {
	engine *engine.Engine
	audit  *audit.Logger
}

// NewDiffTool creates a DiffTool.
func NewDiffTool(eng *engine.Engine, aud *audit.Logger) *DiffTool {
	return &DiffTool{engine: eng, audit: aud}
}

// Definition returns the MCP tool definition for gcc_diff.
func (t *DiffTool) Definition() mcp.Tool {
	return mcp.NewTool("gcc_diff",
		mcp.WithDescription(
			"Show what changed in the session's memory between two revisions, or between a revision and the "+
				"current state when 'to' is omitted.",
		),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("Older revision id or branch name"),
		),
		mcp.WithString("to",
			mcp.Description("Newer revision id or branch name"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier (default: 'default')"),
		),
	)
}

// Handle processes the gcc_diff tool call.
func (t *DiffTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := req.GetString("session_id", "")
	from := req.GetString("from", "")
	to := req.GetString("to", "")
	res, err := t.engine.Diff(ctx, session, from, to)
	return finish(t.audit, "diff", session,
		map[string]any{"from": from, "to": to}, res, err)
}

// ShowTool handles the gcc_show MCP tool.
type ShowTool struct {
	engine *engine.Engine
	audit  *audit.Logger
}

// NewShowTool creates a ShowTool.
func NewShowTool(eng *engine.Engine, aud *audit.Logger) *ShowTool {
	return &ShowTool{engine: eng, audit: aud}
}

// Definition returns the MCP tool definition for gcc_show.
func (t *ShowTool) Definition() mcp.Tool {
	return mcp.NewTool("gcc_show",
		mcp.WithDescription(
			"Show a memory file as it was at a given revision, e.g. a branch's commit.md before a reset.",
		),
		mcp.WithString("ref",
			mcp.Required(),
			mcp.Description("Revision id or branch name"),
		),
		mcp.WithString("path",
			mcp.Description("Session-relative file path, e.g. branches/f1/commit.md; omit for the whole revision"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier (default: 'default')"),
		),
	)
}

// Handle processes the gcc_show tool call.
func (t *ShowTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	session := req.GetString("session_id", "")
	ref := req.GetString("ref", "")
	path := req.GetString("path", "")
	res, err := t.engine.Show(ctx, session, ref, path)
	return finish(t.audit, "show", session,
		map[string]any{"ref": ref, "path": path}, res, err)
}

// ResetTool handles the gcc_reset MCP tool.
type ResetTool struct {
	engine *engine.Engine
	audit  *audit.Logger
}

// NewResetTool creates a ResetTool.
func NewResetTool(eng *engine.Engine, aud *audit.Logger) *ResetTool {
	return &ResetTool{engine: eng, audit: aud}
}

// Definition returns the MCP tool definition for gcc_reset.
func (t *ResetTool) Definition() mcp.Tool {
	return mcp.NewTool("gcc_reset",
		mcp.WithDescription(
			"Move the session's memory back to an earlier revision. Destructive in hard mode; always requires "+
				"confirm=true and fails without it.",
		),
		mcp.WithString("ref",
			mcp.Required(),
			mcp.Description("Revision id to reset to"),
		),
		mcp.WithString("mode",
			mcp.Description("soft, mixed, or hard (default: mixed); only hard touches file contents"),
		),
		mcp.WithBoolean("confirm",
			mcp.Description("Must be true; there is no default"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier (default: 'default')"),
		),
	)
}

// Handle processes the gcc_reset tool call.
func (t *ResetTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := engine.ResetParams{
		SessionID: req.GetString("session_id", ""),
		Ref:       req.GetString("ref", ""),
		Mode:      req.GetString("mode", "mixed"),
		Confirm:   boolArg(req, "confirm", false),
	}
	res, err := t.engine.Reset(ctx, p)
	return finish(t.audit, "reset", p.SessionID, p, res, err)
}
