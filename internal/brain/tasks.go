package brain

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"companion.app/relay/common/id"
	"companion.app/relay/common/llm"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/store"
)

const maxPatternTasks = 5

type TasksResponse struct {
	Tasks []TaskItem `json:"tasks" jsonschema_description:"Actionable tasks mentioned in the conversation"`
}

type TaskItem struct {
	Title       string `json:"title" jsonschema_description:"Short imperative title"`
	Description string `json:"description" jsonschema_description:"One sentence of context from the conversation"`
	Priority    string `json:"priority" jsonschema:"enum=urgent,enum=high,enum=normal,enum=low"`
	DueDate     string `json:"due_date" jsonschema_description:"YYYY-MM-DD, or empty when no date was mentioned"`
	Assignee    string `json:"assignee" jsonschema_description:"Person expected to do the task, or empty"`
	Category    string `json:"category" jsonschema:"enum=work,enum=personal,enum=health,enum=finance,enum=errand,enum=general"`
}

var tasksSchema = llm.GenerateSchema[TasksResponse]()

var taskPattern = regexp.MustCompile(`(?i)\b(?:need to|needs to|have to|has to|don['’]?t forget to|do not forget to|must|remember to)\s+([^.!?\n]{3,})`)

type TaskExtractor struct {
	llm     llm.Client
	tasks   store.TaskStore
	timeout time.Duration
	now     func() time.Time
}

// NewTaskExtractor accepts a nil client; extraction then always uses patterns.
func NewTaskExtractor(client llm.Client, tasks store.TaskStore, timeout time.Duration) *TaskExtractor {
	return &TaskExtractor{
		llm:     client,
		tasks:   tasks,
		timeout: timeout,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Extract finds tasks in the memory and stores them as the memory's task
// set. The memory itself is never changed.
func (e *TaskExtractor) Extract(ctx context.Context, in Input) ([]model.ExtractedTask, error) {
	if strings.TrimSpace(in.Content) == "" {
		slog.DebugContext(ctx, "no content to extract tasks from")
		return nil, nil
	}

	var response TasksResponse
	ok, err := structured(ctx, e.llm, e.timeout, "task_extraction", llm.Request{
		SystemPrompt: tasksSystemPrompt,
		UserPrompt:   in.Content,
		SchemaName:   "tasks_response",
		Schema:       tasksSchema,
		Temperature:  llm.Temp(0.1),
	}, &response, in)
	if err != nil {
		return nil, err
	}

	var tasks []model.ExtractedTask
	if ok {
		tasks = e.fromLLM(in, response)
	} else {
		tasks = e.fromPatterns(in)
	}

	if err := e.tasks.ReplaceForMemory(ctx, in.MemoryID, tasks); err != nil {
		return nil, fmt.Errorf("storing extracted tasks: %w", err)
	}

	slog.InfoContext(ctx, "tasks extracted",
		"task_count", len(tasks),
		"source", sourceOf(ok))
	return tasks, nil
}

func (e *TaskExtractor) fromLLM(in Input, response TasksResponse) []model.ExtractedTask {
	now := e.now()
	tasks := make([]model.ExtractedTask, 0, len(response.Tasks))
	for _, item := range response.Tasks {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		priority := model.Priority(item.Priority)
		if !priority.Valid() {
			priority = ClassifyPriority(title + " " + item.Description)
		}
		category := item.Category
		if category == "" {
			category = "general"
		}
		tasks = append(tasks, model.ExtractedTask{
			ID:          id.New(),
			Title:       title,
			Description: strings.TrimSpace(item.Description),
			Priority:    priority,
			DueDate:     parseDate(item.DueDate),
			Assignee:    optional(item.Assignee),
			Source:      model.ExtractionSourceLLM,
			Category:    category,
			MemoryID:    in.MemoryID,
			SessionID:   in.SessionID,
			DeviceID:    in.DeviceID,
			CreatedAt:   now,
		})
	}
	return tasks
}

// fromPatterns matches modal-verb phrases, at most maxPatternTasks of them.
func (e *TaskExtractor) fromPatterns(in Input) []model.ExtractedTask {
	now := e.now()
	seen := make(map[string]struct{})
	var tasks []model.ExtractedTask

	for _, line := range speakerLines(in.Content) {
		for _, m := range taskPattern.FindAllStringSubmatch(line[1], -1) {
			title := capitalize(sentence(m[1], 120))
			key := strings.ToLower(title)
			if title == "" {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			task := model.ExtractedTask{
				ID:          id.New(),
				Title:       title,
				Description: strings.TrimSpace(m[0]),
				Priority:    ClassifyPriority(m[0]),
				Source:      model.ExtractionSourcePattern,
				Category:    "general",
				MemoryID:    in.MemoryID,
				SessionID:   in.SessionID,
				DeviceID:    in.DeviceID,
				CreatedAt:   now,
			}
			if line[0] != "" {
				task.Assignee = optional(line[0])
			}
			tasks = append(tasks, task)
			if len(tasks) == maxPatternTasks {
				return tasks
			}
		}
	}
	return tasks
}

func sourceOf(llmUsed bool) model.ExtractionSource {
	if llmUsed {
		return model.ExtractionSourceLLM
	}
	return model.ExtractionSourcePattern
}

const tasksSystemPrompt = `You extract actionable tasks from a transcribed conversation.

Each line is "Speaker: text". Only extract things someone actually has to do.

## Rules

- Title is a short imperative phrase: "Book flights to Lisbon"
- Priority: urgent for emergencies or "asap", high for deadlines and meetings, low for leisure, else normal
- due_date only when a date is stated or clearly implied, as YYYY-MM-DD
- assignee is the person who will do it, using the speaker name when they volunteer
- Return an empty list when there are no tasks

## Do NOT extract

- Past actions that are already done
- Hypotheticals and questions nobody committed to
- Small talk`
