// Package service wires the score engine, the recompute pipeline and task
// mutations behind the HTTP API and the CLI.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/skillsync/internal/adapters/repository"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/scoring"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

const defaultHistoryLimit = 50

// Result is the outcome of a score computation. UsedFallback marks the
// neutral score returned when the inputs could not be read; Err carries the
// underlying failure for logs.
type Result struct {
	UserID       string          `json:"userId"`
	Score        int             `json:"score"`
	Breakdown    model.Breakdown `json:"breakdown"`
	UsedFallback bool            `json:"usedFallback"`
	ComputedAt   time.Time       `json:"computedAt"`
	Err          error           `json:"-"`
}

// ReviewInput is a peer review as submitted by a reviewer.
type ReviewInput struct {
	ReviewerID     string `json:"reviewerId"`
	ReviewedUserID string `json:"reviewedUserId"`
	ProjectID      string `json:"projectId"`
	Score          int    `json:"score"`
	Comment        string `json:"comment,omitempty"`
}

// Engine computes, records and reads commitment scores.
//
// Computations for one user are serialized so that concurrent recomputes
// cannot interleave their writes.
type Engine struct {
	users   *repository.Users
	tasks   *repository.Tasks
	reviews *repository.Reviews
	history *repository.ScoreHistory

	locks        *keyedMutex
	now          func() time.Time
	historyLimit int
	logger       logger.Logger
}

// EngineOption applies a configuration option to the Engine.
type EngineOption func(*Engine)

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithHistoryLimit sets the default page size of GetHistory.
func WithHistoryLimit(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.historyLimit = n
		}
	}
}

// WithEngineLogger sets a custom logger for the engine.
func WithEngineLogger(l logger.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine builds an engine over store.
func NewEngine(store repository.DocumentStore, opts ...EngineOption) *Engine {
	e := &Engine{
		users:        repository.NewUsers(store),
		tasks:        repository.NewTasks(store),
		reviews:      repository.NewReviews(store),
		history:      repository.NewScoreHistory(store),
		locks:        newKeyedMutex(),
		now:          func() time.Time { return time.Now().UTC() },
		historyLimit: defaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("engine")
	}
	return e
}

// ComputeScore derives userID's score and records it. A read failure yields
// the fallback score with nothing written. A record failure is logged and the
// derived score is still returned.
func (e *Engine) ComputeScore(ctx context.Context, userID string) (Result, error) {
	if strings.TrimSpace(userID) == "" {
		return Result{}, ErrInvalidUser
	}
	unlock := e.locks.Lock("score:" + userID)
	defer unlock()

	start := time.Now()
	res, s := e.derive(ctx, userID)
	if !res.UsedFallback {
		err := e.RecordScore(ctx, userID, s)
		switch {
		case errors.Is(err, repository.ErrNotFound):
			e.logger.Debug(ctx, "score not recorded for unknown user", logger.String("user_id", userID))
			res.Err = err
		case err != nil:
			metrics.RecordScoreRecordFailure()
			e.logger.Error(ctx, "recording score failed",
				logger.String("user_id", userID),
				logger.Int("score", res.Score),
				logger.Error(err),
			)
			res.Err = err
		}
	}
	metrics.RecordScoreComputed(res.Score, res.UsedFallback, float64(time.Since(start).Milliseconds()))
	return res, nil
}

// DeriveScore reads the inputs and derives the score without writing.
func (e *Engine) DeriveScore(ctx context.Context, userID string) (Result, error) {
	if strings.TrimSpace(userID) == "" {
		return Result{}, ErrInvalidUser
	}
	res, _ := e.derive(ctx, userID)
	return res, nil
}

func (e *Engine) derive(ctx context.Context, userID string) (Result, scoring.Score) {
	res := Result{UserID: userID, ComputedAt: e.now()}

	tasks, err := e.tasks.ListByAssignee(ctx, userID)
	if err == nil {
		var reviews []model.PeerReview
		reviews, err = e.reviews.ListForUser(ctx, userID, scoring.ReviewWindow)
		if err == nil {
			s := scoring.Derive(scoring.Inputs{Tasks: tasks, Reviews: reviews})
			res.Score = s.Value
			res.Breakdown = s.Breakdown
			return res, s
		}
	}

	metrics.RecordScoreFallback("compute")
	e.logger.Warn(ctx, "score inputs unavailable, using fallback",
		logger.String("user_id", userID),
		logger.Error(err),
	)
	res.Score = scoring.FallbackScore
	res.UsedFallback = true
	res.Err = err
	return res, scoring.Score{}
}

// RecordScore overwrites the user's current score, appends a history entry
// and appends to the user's series. An unknown user gets no writes at all
// and an error wrapping repository.ErrNotFound. Otherwise the writes are
// independent: each is attempted and their failures are joined.
func (e *Engine) RecordScore(ctx context.Context, userID string, s scoring.Score) error {
	now := e.now()
	var errs []error

	if err := e.users.SetScore(ctx, userID, s.Value); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("record score for %s: %w", userID, err)
		}
		errs = append(errs, fmt.Errorf("set user score: %w", err))
	}
	if _, err := e.history.Append(ctx, model.ScoreHistoryEntry{
		UserID:    userID,
		Score:     s.Value,
		Breakdown: s.Breakdown,
		Timestamp: now,
	}); err != nil {
		errs = append(errs, fmt.Errorf("append history: %w", err))
	}
	if err := e.users.AppendScorePoint(ctx, userID, model.ScorePoint{Score: s.Value, Timestamp: now}); err != nil {
		errs = append(errs, fmt.Errorf("append score point: %w", err))
	}
	return errors.Join(errs...)
}

// GetTrend classifies the user's recent scores. A read failure reads as stable.
func (e *Engine) GetTrend(ctx context.Context, userID string) (model.Trend, error) {
	entries, err := e.history.Recent(ctx, userID, scoring.TrendHistory)
	if err != nil {
		metrics.RecordScoreFallback("trend")
		e.logger.Warn(ctx, "score history unavailable, trend is stable",
			logger.String("user_id", userID),
			logger.Error(err),
		)
		return model.TrendStable, nil
	}
	chronological(entries)
	scores := make([]int, len(entries))
	for i, en := range entries {
		scores[i] = en.Score
	}
	return scoring.Trend(scores), nil
}

// GetHistory returns up to limit of the user's latest entries, oldest first.
func (e *Engine) GetHistory(ctx context.Context, userID string, limit int) ([]model.ScoreHistoryEntry, error) {
	if limit <= 0 {
		limit = e.historyLimit
	}
	entries, err := e.history.Recent(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("read score history: %w", err)
	}
	chronological(entries)
	return entries, nil
}

// SubmitReview stores a review and recomputes the reviewed user's score
// before returning the new review id.
func (e *Engine) SubmitReview(ctx context.Context, in ReviewInput) (string, error) {
	switch {
	case in.ReviewerID == "" || in.ReviewedUserID == "" || in.ProjectID == "":
		metrics.RecordReviewRejected("invalid")
		return "", fmt.Errorf("%w: reviewerId, reviewedUserId and projectId are required", ErrInvalidReview)
	case in.ReviewerID == in.ReviewedUserID:
		metrics.RecordReviewRejected("self")
		return "", ErrSelfReview
	}

	id, err := e.storeReview(ctx, in)
	if err != nil {
		return "", err
	}
	metrics.RecordReviewSubmitted()

	if _, err := e.ComputeScore(ctx, in.ReviewedUserID); err != nil {
		return id, err
	}
	return id, nil
}

func (e *Engine) storeReview(ctx context.Context, in ReviewInput) (string, error) {
	unlock := e.locks.Lock("review:" + in.ReviewerID + "|" + in.ReviewedUserID + "|" + in.ProjectID)
	defer unlock()

	exists, err := e.reviews.Exists(ctx, in.ReviewerID, in.ReviewedUserID, in.ProjectID)
	if err != nil {
		return "", fmt.Errorf("check existing review: %w", err)
	}
	if exists {
		metrics.RecordReviewRejected("duplicate")
		return "", ErrDuplicateReview
	}

	id, err := e.reviews.Create(ctx, model.PeerReview{
		ReviewerID:     in.ReviewerID,
		ReviewedUserID: in.ReviewedUserID,
		ProjectID:      in.ProjectID,
		Score:          scoring.ClampReview(in.Score),
		Comment:        in.Comment,
		CreatedAt:      e.now(),
	})
	if err != nil {
		return "", fmt.Errorf("store review: %w", err)
	}
	return id, nil
}

// GetUserReviews returns reviews received by userID, newest first.
func (e *Engine) GetUserReviews(ctx context.Context, userID string, limit int) ([]model.PeerReview, error) {
	reviews, err := e.reviews.ListForUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("read reviews: %w", err)
	}
	return reviews, nil
}

// chronological reverses newest-first entries in place.
func chronological(entries []model.ScoreHistoryEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
