package api

import (
	"context"
	"net/http"

	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// UserDependencies defines the interface for user operations.
type UserDependencies interface {
	CreateUser(ctx context.Context, name string) (model.User, error)
	GetUser(ctx context.Context, id string) (model.User, error)
}

// UsersHandler handles user requests.
type UsersHandler struct {
	deps UserDependencies
	log  logger.Logger
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(deps UserDependencies, log logger.Logger) *UsersHandler {
	return &UsersHandler{deps: deps, log: log}
}

type createUserRequest struct {
	Name string `json:"name"`
}

// HandleCreate handles POST /users.
func (h *UsersHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_user"
	var req createUserRequest
	if err := decodeJSON(r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	u, err := h.deps.CreateUser(r.Context(), req.Name)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// HandleGet handles GET /users/{id}.
func (h *UsersHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_user"
	u, err := h.deps.GetUser(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
