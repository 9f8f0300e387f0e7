// Package mcptools exposes the relay's stored conversations and their
// extracted intelligence as read-only MCP tools.
//
// Each tool is a struct holding its store, with Definition returning the
// mcp.Tool schema and Handle answering a call. Lookup failures come back
// as tool errors so the calling assistant can correct its arguments.
package mcptools

import (
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// requiredString returns a trimmed string argument or a tool error result.
func requiredString(req mcp.CallToolRequest, key string) (string, *mcp.CallToolResult) {
	v := strings.TrimSpace(req.GetString(key, ""))
	if v == "" {
		return "", mcp.NewToolResultError(fmt.Sprintf("%s is required", key))
	}
	return v, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
