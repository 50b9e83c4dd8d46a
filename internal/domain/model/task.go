// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"time"
)

// TaskStatus is a Kanban column.
type TaskStatus string

// Task statuses, in board order.
const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in-progress"
	StatusInReview   TaskStatus = "in-review"
	StatusCompleted  TaskStatus = "completed"
)

// Statuses lists every board column in display order.
var Statuses = []TaskStatus{StatusTodo, StatusInProgress, StatusInReview, StatusCompleted}

// Valid reports whether s is one of the known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusCompleted:
		return true
	}
	return false
}

// Priority ranks task urgency.
type Priority string

// Task priorities.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Task is a unit of project work shown on the board.
//
// CompletedAt is non-nil exactly when Status is completed, and holds the
// moment of the transition into completed.
type Task struct {
	ID           string     `json:"id"`
	ProjectID    string     `json:"projectId"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Status       TaskStatus `json:"status"`
	Priority     Priority   `json:"priority"`
	AssigneeID   string     `json:"assigneeId,omitempty"`
	AssigneeName string     `json:"assigneeName,omitempty"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Validate checks the fields a task must carry before it is stored.
func (t *Task) Validate() error {
	switch {
	case t.ProjectID == "":
		return fmt.Errorf("missing projectId")
	case t.Title == "":
		return fmt.Errorf("missing title")
	case !t.Status.Valid():
		return fmt.Errorf("invalid status %q", t.Status)
	case !t.Priority.Valid():
		return fmt.Errorf("invalid priority %q", t.Priority)
	}
	return nil
}

// MoveTo changes the task status at time now and maintains CompletedAt.
// It returns the previous status and whether anything changed.
func (t *Task) MoveTo(status TaskStatus, now time.Time) (TaskStatus, bool) {
	old := t.Status
	if old == status {
		return old, false
	}
	t.Status = status
	t.UpdatedAt = now
	if status == StatusCompleted {
		ts := now
		t.CompletedAt = &ts
	} else {
		t.CompletedAt = nil
	}
	return old, true
}

// OnTime reports whether a completed task finished by its deadline. Tasks
// lacking either timestamp are not on time.
func (t *Task) OnTime() bool {
	if t.CompletedAt == nil || t.Deadline == nil {
		return false
	}
	return !t.CompletedAt.After(*t.Deadline)
}
