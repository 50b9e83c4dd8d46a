package api

import (
	"context"
	"net/http"

	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/types"
	"github.com/okian/skillsync/pkg/logger"
)

// ScoreDependencies defines the interface for score and review operations.
type ScoreDependencies interface {
	ScoreView(ctx context.Context, userID string) (types.ScoreView, error)
	GetTrend(ctx context.Context, userID string) (model.Trend, error)
	GetHistory(ctx context.Context, userID string, limit int) ([]model.ScoreHistoryEntry, error)
	SubmitReview(ctx context.Context, in service.ReviewInput) (string, error)
	GetUserReviews(ctx context.Context, userID string, limit int) ([]model.PeerReview, error)
}

// ScoresHandler handles commitment score and peer review requests.
type ScoresHandler struct {
	deps         ScoreDependencies
	actors       actorResolver
	historyLimit int
	log          logger.Logger
}

// NewScoresHandler creates a new scores handler.
func NewScoresHandler(deps ScoreDependencies, actors actorResolver, historyLimit int, log logger.Logger) *ScoresHandler {
	return &ScoresHandler{deps: deps, actors: actors, historyLimit: historyLimit, log: log}
}

type trendResponse struct {
	UserID string      `json:"userId"`
	Trend  model.Trend `json:"trend"`
}

type reviewResponse struct {
	ID string `json:"id"`
}

// HandleScore handles GET /users/{id}/score. The score is recomputed and
// recorded; unreadable inputs yield the neutral fallback with
// usedFallback set rather than an error.
func (h *ScoresHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_score"
	view, err := h.deps.ScoreView(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleTrend handles GET /users/{id}/trend.
func (h *ScoresHandler) HandleTrend(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_trend"
	id := r.PathValue("id")
	trend, err := h.deps.GetTrend(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusOK, trendResponse{UserID: id, Trend: trend})
}

// HandleHistory handles GET /users/{id}/history?limit=N, oldest first.
func (h *ScoresHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_history"
	n, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, err))
		return
	}
	if n == 0 {
		n = h.historyLimit
	}
	entries, err := h.deps.GetHistory(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	if entries == nil {
		entries = []model.ScoreHistoryEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleListReviews handles GET /users/{id}/reviews?limit=N, newest first.
func (h *ScoresHandler) HandleListReviews(w http.ResponseWriter, r *http.Request) {
	const op = "api.list_reviews"
	n, err := queryLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, err))
		return
	}
	reviews, err := h.deps.GetUserReviews(r.Context(), r.PathValue("id"), n)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	if reviews == nil {
		reviews = []model.PeerReview{}
	}
	writeJSON(w, http.StatusOK, reviews)
}

// HandleSubmitReview handles POST /reviews. An authenticated caller is
// always the reviewer, whatever the body says.
func (h *ScoresHandler) HandleSubmitReview(w http.ResponseWriter, r *http.Request) {
	const op = "api.submit_review"
	actor, err := h.actors.actor(r)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	var in service.ReviewInput
	if err := decodeJSON(r, op, &in); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if actor != "" {
		in.ReviewerID = actor
	}
	id, err := h.deps.SubmitReview(r.Context(), in)
	if err != nil {
		writeServiceError(w, h.log, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, reviewResponse{ID: id})
}
