package api

import (
	"context"
	"net/http"

	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// TaskDependencies defines the interface for task operations.
type TaskDependencies interface {
	CreateTask(ctx context.Context, in service.TaskInput, actorID string) (model.Task, error)
	GetTask(ctx context.Context, id string) (model.Task, error)
	ListTasks(ctx context.Context, projectID string) ([]model.Task, error)
	UpdateTask(ctx context.Context, id string, patch service.TaskPatch, actorID string) (model.Task, error)
	DeleteTask(ctx context.Context, id, actorID string) error
}

// TasksHandler handles task requests. Every persisted change is announced
// to the project room by the service.
type TasksHandler struct {
	deps   TaskDependencies
	actors actorResolver
	log    logger.Logger
}

// NewTasksHandler creates a new tasks handler.
func NewTasksHandler(deps TaskDependencies, actors actorResolver, log logger.Logger) *TasksHandler {
	return &TasksHandler{deps: deps, actors: actors, log: log}
}

// HandleCreate handles POST /tasks.
func (h *TasksHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_task"
	actor, err := h.actors.actor(r)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	var in service.TaskInput
	if err := decodeJSON(r, op, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	t, err := h.deps.CreateTask(r.Context(), in, actor)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// HandleGet handles GET /tasks/{id}.
func (h *TasksHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_task"
	t, err := h.deps.GetTask(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleList handles GET /projects/{projectId}/tasks.
func (h *TasksHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_tasks"
	tasks, err := h.deps.ListTasks(r.Context(), r.PathValue("projectId"))
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// HandleUpdate handles PATCH /tasks/{id}; absent fields are left alone.
func (h *TasksHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_task"
	actor, err := h.actors.actor(r)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	var patch service.TaskPatch
	if err := decodeJSON(r, op, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	t, err := h.deps.UpdateTask(r.Context(), r.PathValue("id"), patch, actor)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleDelete handles DELETE /tasks/{id}.
func (h *TasksHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	const op = "api.delete_task"
	actor, err := h.actors.actor(r)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	if err := h.deps.DeleteTask(r.Context(), r.PathValue("id"), actor); err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
