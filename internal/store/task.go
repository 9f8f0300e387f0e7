package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"companion.app/relay/core/db"
	"companion.app/relay/internal/model"
)

type taskStore struct {
	db *db.DB
}

func newTaskStore(database *db.DB) TaskStore {
	return &taskStore{db: database}
}

func (s *taskStore) Create(ctx context.Context, task *model.ExtractedTask) error {
	return s.insert(ctx, s.db.Queries(), task)
}

// ReplaceForMemory swaps the memory's task set in one transaction, so a
// retried extraction never leaves duplicates behind.
func (s *taskStore) ReplaceForMemory(ctx context.Context, memoryID string, tasks []model.ExtractedTask) error {
	return s.db.WithTx(ctx, func(q db.Querier) error {
		if _, err := q.ExecContext(ctx, s.db.Rebind(`
			DELETE FROM extracted_tasks WHERE memory_id = ?`), memoryID); err != nil {
			return fmt.Errorf("clearing tasks for memory: %w", err)
		}
		for i := range tasks {
			tasks[i].MemoryID = memoryID
			if err := s.insert(ctx, q, &tasks[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *taskStore) insert(ctx context.Context, q db.Querier, task *model.ExtractedTask) error {
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	_, err := q.ExecContext(ctx, s.db.Rebind(`
		INSERT INTO extracted_tasks (
			id, title, description, priority, due_date, assignee, source,
			category, memory_id, session_id, device_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		task.ID, task.Title, task.Description, string(task.Priority), nullMillis(task.DueDate),
		nullString(task.Assignee), string(task.Source), task.Category, task.MemoryID,
		task.SessionID, task.DeviceID, toMillis(task.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting task: %w", err)
	}
	return nil
}

func (s *taskStore) ListByMemory(ctx context.Context, memoryID string) ([]model.ExtractedTask, error) {
	rows, err := s.db.Queries().QueryContext(ctx, s.db.Rebind(`
		SELECT id, title, description, priority, due_date, assignee, source,
		       category, memory_id, session_id, device_id, created_at
		FROM extracted_tasks
		WHERE memory_id = ?
		ORDER BY id ASC`), memoryID)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.ExtractedTask
	for rows.Next() {
		var (
			t                model.ExtractedTask
			priority, source string
			dueDate          sql.NullInt64
			assignee         sql.NullString
			createdAt        int64
		)
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &priority, &dueDate, &assignee,
			&source, &t.Category, &t.MemoryID, &t.SessionID, &t.DeviceID, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning task: %w", err)
		}
		t.Priority = model.Priority(priority)
		t.Source = model.ExtractionSource(source)
		t.DueDate = timePtr(dueDate)
		t.Assignee = stringPtr(assignee)
		t.CreatedAt = fromMillis(createdAt)
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
