package api

import (
	"context"
	"net/http"

	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// ProjectUpdatePublisher relays consumer-defined project updates.
type ProjectUpdatePublisher interface {
	PublishProjectUpdate(ctx context.Context, u model.ProjectUpdate) error
}

// ProjectsHandler handles project broadcast requests.
type ProjectsHandler struct {
	deps ProjectUpdatePublisher
	log  logger.Logger
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(deps ProjectUpdatePublisher, log logger.Logger) *ProjectsHandler {
	return &ProjectsHandler{deps: deps, log: log}
}

type projectUpdateRequest struct {
	Update map[string]any `json:"update"`
}

type publishResponse struct {
	Status string `json:"status"`
}

// HandlePublish handles POST /projects/{projectId}/updates. The body's
// update must carry a "type".
func (h *ProjectsHandler) HandlePublish(w http.ResponseWriter, r *http.Request) {
	const op = "api.publish_project_update"
	var req projectUpdateRequest
	if err := decodeJSON(r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	u := model.ProjectUpdate{ProjectID: r.PathValue("projectId"), Update: req.Update}
	if err := h.deps.PublishProjectUpdate(r.Context(), u); err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, publishResponse{Status: "published"})
}
