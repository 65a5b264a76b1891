// Package mcptools exposes the memory engine as MCP tools over stdio.
//
// Each tool follows the same pattern:
//   - A struct holding the engine and audit logger, injected via constructor
//   - Definition() returns the mcp.Tool schema
//   - Handle() validates arguments, runs the engine command, records it in
//     the audit log, and returns the result as JSON text
//
// Engine failures are reported as tool errors of the form
// "<ErrorType>: <message>" so the calling agent can react to the category.
package mcptools

import (
	"encoding/json"
	"fmt"

	"github.com/ZUENS2020/gcc-mem-system/internal/audit"
	"github.com/ZUENS2020/gcc-mem-system/internal/memerr"
	"github.com/mark3labs/mcp-go/mcp"
)

// intArg extracts an integer argument, returning defaultVal if the key is
// missing or not a number (JSON numbers are float64).
func intArg(req mcp.CallToolRequest, key string, defaultVal int) int {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return int(v)
}

// boolArg extracts a boolean argument.
func boolArg(req mcp.CallToolRequest, key string, defaultVal bool) bool {
	v, ok := req.GetArguments()[key].(bool)
	if !ok {
		return defaultVal
	}
	return v
}

// stringsArg extracts a string-array argument, skipping non-string items.
func stringsArg(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// mapArg extracts an object argument.
func mapArg(req mcp.CallToolRequest, key string) map[string]any {
	m, _ := req.GetArguments()[key].(map[string]any)
	return m
}

// jsonResult renders an engine result as a JSON tool response.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encoding result: %v", err))
	}
	return mcp.NewToolResultText(string(data))
}

// errResult renders an engine failure as "<ErrorType>: <message>".
func errResult(err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s: %v", memerr.KindOf(err), err))
}

// finish records the call in the audit log and renders the tool response.
// Every tool ends here so MCP-driven operations appear in the same audit
// trail as HTTP ones.
func finish(aud *audit.Logger, action, sessionID string, params, result any, err error) (*mcp.CallToolResult, error) {
	aud.Record(action, sessionID, params, err)
	if err != nil {
		return errResult(err), nil
	}
	return jsonResult(result), nil
}
