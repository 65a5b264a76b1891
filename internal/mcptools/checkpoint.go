package mcptools

import (
	"context"

	"github.com/ZUENS2020/gcc-mem-system/internal/audit"
	"github.com/ZUENS2020/gcc-mem-system/internal/engine"
	"github.com/mark3labs/mcp-go/mcp"
)

// CommitTool handles the gcc_commit MCP tool.
type CommitTool struct {
	engine *engine.Engine
	audit  *audit.Logger
}

// NewCommitTool creates a CommitTool.
func NewCommitTool(eng *engine.Engine, aud *audit.Logger) *CommitTool {
	return &CommitTool{engine: eng, audit: aud}
}

// Definition returns the MCP tool definition for gcc_commit.
func (t *CommitTool) Definition() mcp.Tool {
	return mcp.NewTool("gcc_commit",
		mcp.WithDescription(
			"Record a checkpoint of completed work on a branch. The contribution is appended to the branch's "+
				"checkpoint file together with a snapshot of progress so far, and everything is committed as one revision.",
		),
		mcp.WithString("branch",
			mcp.Required(),
			mcp.Description("Branch to commit on; must already exist"),
		),
		mcp.WithString("contribution",
			mcp.Required(),
			mcp.Description("What this checkpoint contributes"),
		),
		mcp.WithArray("log_entries",
			mcp.Description("Chronological notes to append to the branch log"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithObject("metadata_updates",
			mcp.Description("Keys to deep-merge into the branch metadata; null values delete keys"),
		),
		mcp.WithString("update_main",
			mcp.Description("Optional milestone note to append to the session roadmap"),
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier (default: 'default')"),
		),
	)
}

// Handle processes the gcc_commit tool call.
func (t *CommitTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := engine.CommitParams{
		SessionID:       req.GetString("session_id", ""),
		Branch:          req.GetString("branch", ""),
		Contribution:    req.GetString("contribution", ""),
		LogEntries:      stringsArg(req, "log_entries"),
		MetadataUpdates: mapArg(req, "metadata_updates"),
		UpdateMain:      req.GetString("update_main", ""),
	}
	res, err := t.engine.Commit(ctx, p)
	return finish(t.audit, "commit", p.SessionID, p, res, err)
}

// LogTool handles the gcc_log MCP tool.
type LogTool struct {
	engine *engine.Engine
	audit  *audit.Logger
}

// NewLogTool creates a LogTool.
func NewLogTool(eng *engine.Engine, aud *audit.Logger) *LogTool {
	return &LogTool{engine: eng, audit: aud}
}

// Definition returns the MCP tool definition for gcc_log.
func (t *LogTool) Definition() mcp.Tool {
	return mcp.NewTool("gcc_log",
		mcp.WithDescription(
			"Append timestamped entries to a branch's chronological log without creating a checkpoint. "+
				"Use for observations worth keeping that don't amount to completed work.",
		),
		mcp.WithString("branch",
			mcp.Required(),
			mcp.Description("Branch whose log to append to"),
		),
		mcp.WithArray("entries",
			mcp.Required(),
			mcp.Description("Log lines to append"),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("session_id",
			mcp.Description("Session identifier (default: 'default')"),
		),
	)
}

// Handle processes the gcc_log tool call.
func (t *LogTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := engine.LogParams{
		SessionID: req.GetString("session_id", ""),
		Branch:    req.GetString("branch", ""),
		Entries:   stringsArg(req, "entries"),
	}
	res, err := t.engine.Log(ctx, p)
	return finish(t.audit, "log", p.SessionID, p, res, err)
}
