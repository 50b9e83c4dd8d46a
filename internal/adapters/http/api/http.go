// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/skillsync/internal/adapters/mq/queue"
	"github.com/okian/skillsync/internal/adapters/realtime/hub"
	"github.com/okian/skillsync/internal/adapters/repository"
	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/auth"
	"github.com/okian/skillsync/internal/domain/types"
	"github.com/okian/skillsync/pkg/logger"
)

// Dependencies required by HTTP handlers. *service.Service implements it.
type Dependencies interface {
	UserDependencies
	TaskDependencies
	ScoreDependencies
	LeaderboardDependencies
	StatsProvider
	ProjectUpdatePublisher
}

// Realtime is the websocket hub mounted at /ws.
type Realtime interface {
	http.Handler
	Stats() hub.Stats
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler      *HealthHandler
	statsHandler       *StatsHandler
	usersHandler       *UsersHandler
	tasksHandler       *TasksHandler
	scoresHandler      *ScoresHandler
	leaderboardHandler *LeaderboardHandler
	projectsHandler    *ProjectsHandler
	realtime           Realtime
	logger             logger.Logger
}

// NewServer creates a new API server with all handlers. realtime may be nil.
func NewServer(deps Dependencies, authn *auth.Authenticator, realtime Realtime, opts ...Option) *Server {
	o := options{historyLimit: defaultHistoryLimit}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get().Named("api")
	}
	actors := actorResolver{auth: authn}
	return &Server{
		healthHandler:      NewHealthHandler(),
		statsHandler:       NewStatsHandler(deps, realtime),
		usersHandler:       NewUsersHandler(deps, o.logger),
		tasksHandler:       NewTasksHandler(deps, actors, o.logger),
		scoresHandler:      NewScoresHandler(deps, actors, o.historyLimit, o.logger),
		leaderboardHandler: NewLeaderboardHandler(deps, o.logger),
		projectsHandler:    NewProjectsHandler(deps, o.logger),
		realtime:           realtime,
		logger:             o.logger,
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	route(mux, s.logger, "GET /healthz", s.healthHandler.HandleHealth)
	route(mux, s.logger, "GET /metrics", s.healthHandler.HandleHealth)
	route(mux, s.logger, "GET /stats", s.statsHandler.HandleStats)

	route(mux, s.logger, "POST /users", s.usersHandler.HandleCreate)
	route(mux, s.logger, "GET /users/{id}", s.usersHandler.HandleGet)
	route(mux, s.logger, "GET /users/{id}/score", s.scoresHandler.HandleScore)
	route(mux, s.logger, "GET /users/{id}/trend", s.scoresHandler.HandleTrend)
	route(mux, s.logger, "GET /users/{id}/history", s.scoresHandler.HandleHistory)
	route(mux, s.logger, "GET /users/{id}/reviews", s.scoresHandler.HandleListReviews)
	route(mux, s.logger, "POST /reviews", s.scoresHandler.HandleSubmitReview)

	route(mux, s.logger, "POST /tasks", s.tasksHandler.HandleCreate)
	route(mux, s.logger, "GET /tasks/{id}", s.tasksHandler.HandleGet)
	route(mux, s.logger, "PATCH /tasks/{id}", s.tasksHandler.HandleUpdate)
	route(mux, s.logger, "DELETE /tasks/{id}", s.tasksHandler.HandleDelete)
	route(mux, s.logger, "GET /projects/{projectId}/tasks", s.tasksHandler.HandleList)
	route(mux, s.logger, "POST /projects/{projectId}/updates", s.projectsHandler.HandlePublish)

	route(mux, s.logger, "GET /leaderboard", s.leaderboardHandler.HandleGetLeaderboard)

	if s.realtime != nil {
		mux.Handle("GET /ws", s.realtime)
	}
	s.logger.Debug(context.Background(), "routes registered", logger.Bool("realtime", s.realtime != nil))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeServiceError translates upstream error kinds to status codes.
// Server-side failures are logged.
func writeServiceError(w http.ResponseWriter, log logger.Logger, op string, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		log.Error(context.Background(), "request failed", logger.String("op", op), logger.Error(err))
	}
	writeError(w, status, code, Wrap(op, err))
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrDuplicateReview):
		return http.StatusConflict, "duplicate_review"
	case errors.Is(err, service.ErrSelfReview):
		return http.StatusBadRequest, "self_review"
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, service.ErrInvalidUser),
		errors.Is(err, service.ErrInvalidReview),
		errors.Is(err, service.ErrInvalidTask),
		errors.Is(err, service.ErrInvalidProjectUpdate),
		errors.Is(err, repository.ErrInvalidQuery):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, queue.ErrFull):
		return http.StatusTooManyRequests, "backpressure"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func decodeJSON(r *http.Request, op string, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, err)
	}
	return nil
}

// queryLimit parses ?limit=N. Absent means 0 (callers apply their default);
// malformed or negative values are rejected.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, ErrBadRequest
	}
	return n, nil
}

// actorResolver finds the caller of a request. Without a jwt secret an
// anonymous caller is allowed and reported as "".
type actorResolver struct {
	auth *auth.Authenticator
}

func (a actorResolver) actor(r *http.Request) (string, error) {
	if a.auth == nil {
		return "", nil
	}
	id, err := a.auth.FromRequest(r)
	if err != nil {
		if a.auth.DevMode() && errors.Is(err, auth.ErrMissingToken) {
			return "", nil
		}
		return "", err
	}
	return id.UserID, nil
}

// Entry mirrors the read shape returned by leaderboard queries.
type Entry = types.LeaderboardEntry
