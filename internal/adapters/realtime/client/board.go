package client

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// TaskLoader reads the authoritative tasks of a project.
type TaskLoader interface {
	ListTasks(ctx context.Context, projectID string) ([]model.Task, error)
}

// TaskPersister stores a status change and returns the saved task.
type TaskPersister interface {
	MoveTask(ctx context.Context, taskID string, status model.TaskStatus) (model.Task, error)
}

// Board is a Kanban view of one project. Moves apply locally first and
// are reverted by a reload when persisting fails. Remote task:update events
// mark the view dirty and trigger a reload.
type Board struct {
	mu        sync.Mutex
	projectID string
	tasks     map[string]model.Task

	client    *Client
	loader    TaskLoader
	persister TaskPersister
	clock     Clock
	logger    logger.Logger
}

// NewBoard creates an empty board; call Load to fill it.
func NewBoard(c *Client, projectID string, loader TaskLoader, persister TaskPersister) *Board {
	return &Board{
		projectID: projectID,
		tasks:     make(map[string]model.Task),
		client:    c,
		loader:    loader,
		persister: persister,
		clock:     c.clock,
		logger:    c.logger.With(logger.String("project_id", projectID)),
	}
}

// Attach reloads the board whenever a task of its project changes remotely.
func (b *Board) Attach() *Subscription {
	return b.client.OnTaskUpdate(func(u model.TaskUpdate) {
		if u.ProjectID != b.projectID {
			return
		}
		if err := b.Load(context.Background()); err != nil {
			b.logger.Warn(context.Background(), "board reload failed", logger.Error(err))
		}
	})
}

// Load replaces the local tasks with the authoritative list.
func (b *Board) Load(ctx context.Context) error {
	tasks, err := b.loader.ListTasks(ctx, b.projectID)
	if err != nil {
		return fmt.Errorf("load board %s: %w", b.projectID, err)
	}
	next := make(map[string]model.Task, len(tasks))
	for _, t := range tasks {
		next[t.ID] = t
	}
	b.mu.Lock()
	b.tasks = next
	b.mu.Unlock()
	return nil
}

// Move changes a task's status. The local view updates immediately; the
// change is then persisted and broadcast to the room. A persist failure
// reloads the board and returns the error. Broadcasting while offline is
// skipped.
func (b *Board) Move(ctx context.Context, taskID string, status model.TaskStatus) error {
	if !status.Valid() {
		return fmt.Errorf("move %s: invalid status %q", taskID, status)
	}
	b.mu.Lock()
	t, ok := b.tasks[taskID]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("move %s: task not on board", taskID)
	}
	old, changed := t.MoveTo(status, b.clock.Now())
	if !changed {
		b.mu.Unlock()
		return nil
	}
	b.tasks[taskID] = t
	b.mu.Unlock()

	saved, err := b.persister.MoveTask(ctx, taskID, status)
	if err != nil {
		if rerr := b.Load(ctx); rerr != nil {
			b.logger.Warn(ctx, "revert reload failed", logger.Error(rerr))
		}
		return fmt.Errorf("move %s: %w", taskID, err)
	}
	b.mu.Lock()
	b.tasks[taskID] = saved
	b.mu.Unlock()

	err = b.client.UpdateTask(ctx, model.TaskUpdate{
		ProjectID: b.projectID,
		TaskID:    taskID,
		OldStatus: old,
		NewStatus: saved.Status,
		Task:      &saved,
	})
	if err != nil && !errors.Is(err, ErrNotConnected) {
		b.logger.Warn(ctx, "move broadcast failed", logger.String("task_id", taskID), logger.Error(err))
	}
	return nil
}

// Tasks returns the board's tasks ordered by creation time.
func (b *Board) Tasks() []model.Task {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]model.Task, 0, len(b.tasks))
	for _, t := range b.tasks {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Column returns the tasks in one status column.
func (b *Board) Column(status model.TaskStatus) []model.Task {
	var out []model.Task
	for _, t := range b.Tasks() {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out
}
