package mcptools

import (
	"github.com/mark3labs/mcp-go/server"

	"companion.app/relay/internal/store"
)

const instructions = `Read-only access to conversations captured by a wearable companion.
Use list_conversations to find a device's sessions, get_conversation for a transcript,
list_tasks for the action items extracted from a stored memory and list_people for the
contacts and enrolled voices a device knows.`

// NewServer registers every tool against the relay's stores.
func NewServer(stores *store.Stores, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"companion-relay",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions(instructions),
	)

	sessionTool := NewSessionTool(stores.Sessions())
	s.AddTool(sessionTool.Definition(), sessionTool.Handle)

	sessionsTool := NewSessionsTool(stores.Sessions())
	s.AddTool(sessionsTool.Definition(), sessionsTool.Handle)

	tasksTool := NewTasksTool(stores.Tasks())
	s.AddTool(tasksTool.Definition(), tasksTool.Handle)

	peopleTool := NewPeopleTool(stores.Contacts(), stores.VoiceProfiles())
	s.AddTool(peopleTool.Definition(), peopleTool.Handle)

	return s
}
