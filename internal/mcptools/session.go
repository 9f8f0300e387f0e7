package mcptools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"companion.app/relay/internal/model"
	"companion.app/relay/internal/store"
)

type SessionReader interface {
	Get(ctx context.Context, sessionID string) (*model.ConversationSession, error)
	ListIDsByDevice(ctx context.Context, deviceID string) ([]string, error)
}

// SessionTool handles the get_conversation MCP tool.
type SessionTool struct {
	sessions SessionReader
}

func NewSessionTool(sessions SessionReader) *SessionTool {
	return &SessionTool{sessions: sessions}
}

func (t *SessionTool) Definition() mcp.Tool {
	return mcp.NewTool("get_conversation",
		mcp.WithDescription("Show one recorded conversation: status, speakers and the formatted transcript."),
		mcp.WithString("session_id",
			mcp.Required(),
			mcp.Description("Conversation session ID as sent by the wearable"),
		),
	)
}

func (t *SessionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sessionID, errResult := requiredString(req, "session_id")
	if errResult != nil {
		return errResult, nil
	}

	session, err := t.sessions.Get(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("conversation %q not found", sessionID)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to load conversation: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Conversation %s\n\n", session.SessionID)
	fmt.Fprintf(&sb, "- **Device**: %s\n", session.DeviceID)
	fmt.Fprintf(&sb, "- **Source**: %s\n", session.Source)
	fmt.Fprintf(&sb, "- **Status**: %s\n", session.Status)
	fmt.Fprintf(&sb, "- **Started**: %s\n", formatTime(session.StartTime))
	if session.EndTime != nil {
		fmt.Fprintf(&sb, "- **Ended**: %s\n", formatTime(*session.EndTime))
	}
	if session.MemoryID != nil {
		fmt.Fprintf(&sb, "- **Memory**: %s\n", *session.MemoryID)
	}
	if names := session.ResolvedNames(); len(names) > 0 {
		fmt.Fprintf(&sb, "- **Speakers**: %s\n", strings.Join(names, ", "))
	}
	if unlinked := session.Unlinked(); len(unlinked) > 0 {
		fmt.Fprintf(&sb, "- **Unidentified speakers**: %d\n", len(unlinked))
	}

	sb.WriteString("\n### Transcript\n\n")
	if session.Transcript == "" {
		sb.WriteString("(empty)\n")
	} else {
		sb.WriteString(session.Transcript)
		sb.WriteString("\n")
	}

	return mcp.NewToolResultText(sb.String()), nil
}

// SessionsTool handles the list_conversations MCP tool.
type SessionsTool struct {
	sessions SessionReader
}

func NewSessionsTool(sessions SessionReader) *SessionsTool {
	return &SessionsTool{sessions: sessions}
}

func (t *SessionsTool) Definition() mcp.Tool {
	return mcp.NewTool("list_conversations",
		mcp.WithDescription("List the conversation session IDs recorded by a device, oldest first."),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("Wearable device ID"),
		),
	)
}

func (t *SessionsTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, errResult := requiredString(req, "device_id")
	if errResult != nil {
		return errResult, nil
	}

	ids, err := t.sessions.ListIDsByDevice(ctx, deviceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list conversations: %v", err)), nil
	}
	if len(ids) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No conversations recorded for device %s.", deviceID)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Conversations for %s (%d)\n\n", deviceID, len(ids))
	for _, id := range ids {
		fmt.Fprintf(&sb, "- %s\n", id)
	}
	return mcp.NewToolResultText(sb.String()), nil
}
