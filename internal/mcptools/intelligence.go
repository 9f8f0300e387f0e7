package mcptools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"companion.app/relay/internal/model"
)

type TaskReader interface {
	ListByMemory(ctx context.Context, memoryID string) ([]model.ExtractedTask, error)
}

type ContactReader interface {
	ListByDevice(ctx context.Context, deviceID string) ([]model.Contact, error)
}

type ProfileReader interface {
	ListByDevice(ctx context.Context, deviceID string) ([]model.VoiceProfile, error)
}

// TasksTool handles the list_tasks MCP tool.
type TasksTool struct {
	tasks TaskReader
}

func NewTasksTool(tasks TaskReader) *TasksTool {
	return &TasksTool{tasks: tasks}
}

func (t *TasksTool) Definition() mcp.Tool {
	return mcp.NewTool("list_tasks",
		mcp.WithDescription("List the action items extracted from one memory."),
		mcp.WithString("memory_id",
			mcp.Required(),
			mcp.Description("Memory ID returned when the conversation was stored"),
		),
	)
}

func (t *TasksTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	memoryID, errResult := requiredString(req, "memory_id")
	if errResult != nil {
		return errResult, nil
	}

	tasks, err := t.tasks.ListByMemory(ctx, memoryID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list tasks: %v", err)), nil
	}
	if len(tasks) == 0 {
		return mcp.NewToolResultText(fmt.Sprintf("No tasks extracted for memory %s.", memoryID)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## Tasks for %s (%d)\n\n", memoryID, len(tasks))
	for _, task := range tasks {
		fmt.Fprintf(&sb, "- [%s] **%s**", task.Priority, task.Title)
		if task.Assignee != nil {
			fmt.Fprintf(&sb, " (assignee: %s)", *task.Assignee)
		}
		if task.DueDate != nil {
			fmt.Fprintf(&sb, " due %s", task.DueDate.UTC().Format("2006-01-02"))
		}
		sb.WriteString("\n")
		if task.Description != "" && task.Description != task.Title {
			fmt.Fprintf(&sb, "  %s\n", task.Description)
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// PeopleTool handles the list_people MCP tool: a device's contacts plus
// its enrolled voices.
type PeopleTool struct {
	contacts ContactReader
	profiles ProfileReader
}

func NewPeopleTool(contacts ContactReader, profiles ProfileReader) *PeopleTool {
	return &PeopleTool{contacts: contacts, profiles: profiles}
}

func (t *PeopleTool) Definition() mcp.Tool {
	return mcp.NewTool("list_people",
		mcp.WithDescription("List the people a device knows: saved contacts and enrolled voice profiles."),
		mcp.WithString("device_id",
			mcp.Required(),
			mcp.Description("Wearable device ID"),
		),
	)
}

func (t *PeopleTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	deviceID, errResult := requiredString(req, "device_id")
	if errResult != nil {
		return errResult, nil
	}

	contacts, err := t.contacts.ListByDevice(ctx, deviceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list contacts: %v", err)), nil
	}
	profiles, err := t.profiles.ListByDevice(ctx, deviceID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list voice profiles: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "## People for %s\n\n", deviceID)

	sb.WriteString("### Contacts\n\n")
	if len(contacts) == 0 {
		sb.WriteString("none\n")
	}
	for _, c := range contacts {
		fmt.Fprintf(&sb, "- %s\n", c.Name)
	}

	sb.WriteString("\n### Enrolled voices\n\n")
	if len(profiles) == 0 {
		sb.WriteString("none\n")
	}
	for _, p := range profiles {
		if p.ExternalSpeakerID != nil {
			fmt.Fprintf(&sb, "- %s (speaker %d)\n", p.Name, *p.ExternalSpeakerID)
		} else {
			fmt.Fprintf(&sb, "- %s (not linked)\n", p.Name)
		}
	}

	return mcp.NewToolResultText(sb.String()), nil
}
