package mcptools

import (
	"github.com/ZUENS2020/gcc-mem-system/internal/audit"
	"github.com/ZUENS2020/gcc-mem-system/internal/engine"
	"github.com/mark3labs/mcp-go/server"
)

// Version is set at build time via ldflags.
var Version = "dev"

// NewServer creates the MCP server with every memory tool registered. This
// is the single place where the tool set is assembled. auditLog may not be
// nil; pass audit.NewNop() to discard.
func NewServer(eng *engine.Engine, auditLog *audit.Logger) *server.MCPServer {
	s := server.NewMCPServer(
		"gccmem",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)

	initTool := NewInitTool(eng, auditLog)
	s.AddTool(initTool.Definition(), initTool.Handle)

	branchTool := NewBranchTool(eng, auditLog)
	s.AddTool(branchTool.Definition(), branchTool.Handle)

	commitTool := NewCommitTool(eng, auditLog)
	s.AddTool(commitTool.Definition(), commitTool.Handle)

	logTool := NewLogTool(eng, auditLog)
	s.AddTool(logTool.Definition(), logTool.Handle)

	mergeTool := NewMergeTool(eng, auditLog)
	s.AddTool(mergeTool.Definition(), mergeTool.Handle)

	contextTool := NewContextTool(eng, auditLog)
	s.AddTool(contextTool.Definition(), contextTool.Handle)

	historyTool := NewHistoryTool(eng, auditLog)
	s.AddTool(historyTool.Definition(), historyTool.Handle)

	diffTool := NewDiffTool(eng, auditLog)
	s.AddTool(diffTool.Definition(), diffTool.Handle)

	showTool := NewShowTool(eng, auditLog)
	s.AddTool(showTool.Definition(), showTool.Handle)

	resetTool := NewResetTool(eng, auditLog)
	s.AddTool(resetTool.Definition(), resetTool.Handle)

	return s
}

func serverInstructions() string {
	return `gccmem is version-controlled working memory for long-running tasks.

Workflow:
1. gcc_init starts (or resumes) a session with a goal and todo list.
2. gcc_branch opens an isolated line of work with a purpose.
3. gcc_commit records checkpoints of completed work; gcc_log records
   observations along the way.
4. gcc_merge folds a finished branch back into the main line.
5. gcc_context retrieves remembered state at any granularity, from the
   session overview down to a single checkpoint.

Every change is a revision: gcc_history lists them, gcc_diff and gcc_show
inspect them, and gcc_reset rolls back to one (with confirm=true).`
}
