package mcptools

import (
	"context"

	"github.com/ZUENS2020/gcc-mem-system/internal/audit"
	"github.com/ZUENS2020/gcc-mem-system/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// InitTool handles the gcc_init MCP tool.
type InitTool struct {
	engine *engine.Engine
	audit  *audit.Logger
}

// NewInitTool creates an InitTool.
func NewInitTool(eng *engine.Engine, aud *audit.Logger) *InitTool {
	return &InitTool{engine: eng, audit: aud}
}

// Definition returns the MCP tool definition for gcc_init.
func (t *InitTool) Definition() mcp.Tool {
	return mcp.NewTool("gcc_init",
		mcp.WithDescription(
			"Initialize a memory session with a goal and todo checklist. Call this once at the start of a task. "+
				"Safe to call again: an existing session keeps its branches and only updates the roadmap.",
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier. Omit to have one generated."),
		),
		mcp.WithString("goal",
			mcp.Description("What this session is trying to achieve"),
		),
		mcp.WithArray("todo",
			mcp.Description("Initial checklist entries"),
			mcp.Items(map[string]any{"type": "string"}),
		),
	)
}

// Handle processes the gcc_init tool call.
func (t *InitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := engine.InitParams{
		SessionID: req.GetString("session_id", ""),
		Goal:      req.GetString("goal", ""),
		Todo:      stringsArg(req, "todo"),
	}
	res, err := t.engine.Init(ctx, p)
	return finish(t.audit, "init", p.SessionID, p, res, err)
}

// BranchTool handles the gcc_branch MCP tool.
type BranchTool struct {
	engine *engine.Engine
	audit  *audit.Logger
}

// NewBranchTool creates a BranchTool.
func NewBranchTool(eng *engine.Engine, aud *audit.Logger) *BranchTool {
	return &BranchTool{engine: eng, audit: aud}
}

// Definition returns the MCP tool definition for gcc_branch.
func (t *BranchTool) Definition() mcp.Tool {
	return mcp.NewTool("gcc_branch",
		mcp.WithDescription(
			"Create an isolated line of work with a stated purpose, e.g. to explore an alternative approach. "+
				"Creating the same branch with the same purpose again is a no-op; a different purpose is a conflict.",
		),
		mcp.WithString("branch",
			mcp.Required(),
			mcp.Description("Branch name (letters, digits, '-', '_')"),
		),
		mcp.WithString("purpose",
			mcp.Required(),
			mcp.Description("Why this branch exists"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier (default: 'default')"),
		),
	)
}

// Handle processes the gcc_branch tool call.
func (t *BranchTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := engine.BranchParams{
		SessionID: req.GetString("session_id", ""),
		Branch:    req.GetString("branch", ""),
		Purpose:   req.GetString("purpose", ""),
	}
	res, err := t.engine.Branch(ctx, p)
	return finish(t.audit, "branch", p.SessionID, p, res, err)
}
