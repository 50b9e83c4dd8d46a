package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	eventqueue "github.com/okian/skillsync/internal/adapters/mq/queue"
	workerpool "github.com/okian/skillsync/internal/adapters/mq/worker"
	"github.com/okian/skillsync/internal/adapters/repository"
	"github.com/okian/skillsync/internal/domain/dedupe"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/types"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

const defaultLeaderboardLimit = 10

// Publisher fans task and project changes out to project rooms.
type Publisher interface {
	PublishTaskUpdate(ctx context.Context, u model.TaskUpdate)
	PublishProjectUpdate(ctx context.Context, u model.ProjectUpdate)
}

type nopPublisher struct{}

func (nopPublisher) PublishTaskUpdate(context.Context, model.TaskUpdate)       {}
func (nopPublisher) PublishProjectUpdate(context.Context, model.ProjectUpdate) {}

// TaskInput describes a task to create. Empty status and priority default to
// todo and medium.
type TaskInput struct {
	ProjectID    string           `json:"projectId"`
	Title        string           `json:"title"`
	Description  string           `json:"description,omitempty"`
	Status       model.TaskStatus `json:"status,omitempty"`
	Priority     model.Priority   `json:"priority,omitempty"`
	AssigneeID   string           `json:"assigneeId,omitempty"`
	AssigneeName string           `json:"assigneeName,omitempty"`
	Deadline     *time.Time       `json:"deadline,omitempty"`
}

// TaskPatch lists the task fields to change; nil fields are left alone.
type TaskPatch struct {
	Title        *string           `json:"title,omitempty"`
	Description  *string           `json:"description,omitempty"`
	Status       *model.TaskStatus `json:"status,omitempty"`
	Priority     *model.Priority   `json:"priority,omitempty"`
	AssigneeID   *string           `json:"assigneeId,omitempty"`
	AssigneeName *string           `json:"assigneeName,omitempty"`
	Deadline     *time.Time        `json:"deadline,omitempty"`
}

// Service implements the API dependencies of SkillSync.
type Service struct {
	mu sync.RWMutex

	// Core components
	engine    *Engine
	users     *repository.Users
	tasks     *repository.Tasks
	reviews   *repository.Reviews
	deduper   dedupe.Deduper
	queue     *eventqueue.InMemoryQueue
	pool      *workerpool.Pool
	publisher Publisher

	// Configuration
	workerCount    int
	queueSize      int
	dedupeSize     int
	maxLeaderboard int
	engineOpts     []EngineOption
	now            func() time.Time

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of recompute workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the capacity of the recompute queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize bounds the set of users with a pending recompute.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithMaxLeaderboardLimit caps leaderboard page sizes.
func WithMaxLeaderboardLimit(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxLeaderboard = n
		}
	}
}

// WithPublisher sets where task and project changes are broadcast.
func WithPublisher(p Publisher) Option {
	return func(s *Service) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithEngineOptions passes options through to the score engine.
func WithEngineOptions(opts ...EngineOption) Option {
	return func(s *Service) {
		s.engineOpts = append(s.engineOpts, opts...)
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Service over store. The engine is usable immediately;
// Start is needed for background recomputes.
func New(store repository.DocumentStore, opts ...Option) *Service {
	s := &Service{
		users:          repository.NewUsers(store),
		tasks:          repository.NewTasks(store),
		reviews:        repository.NewReviews(store),
		publisher:      nopPublisher{},
		workerCount:    runtime.NumCPU() * 2,
		queueSize:      10_000,
		dedupeSize:     50_000,
		maxLeaderboard: 100,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	s.engine = NewEngine(store, s.engineOpts...)
	s.now = s.engine.now
	return s
}

// Engine returns the score engine.
func (s *Service) Engine() *Engine { return s.engine }

// SetPublisher swaps the broadcast target, for wiring a hub created after the
// service.
func (s *Service) SetPublisher(p Publisher) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p == nil {
		p = nopPublisher{}
	}
	s.publisher = p
}

func (s *Service) pub() Publisher {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.publisher
}

// Start initializes and starts the recompute pipeline.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.pool = workerpool.NewPool(s.workerCount, s.queue, s)
	// workers outlive the caller's context; Stop ends them
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "skillsync service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the recompute queue and stops the workers.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	pool := s.pool
	s.mu.Unlock()

	// workers call back into Recompute, so the lock is released first
	ctx := context.Background()
	if err := pool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool shutdown", logger.Error(err))
	}
	s.logger.Info(ctx, "skillsync service stopped")
}

// EnqueueRecompute schedules a background recompute of userID. A user that
// already has one pending is coalesced into it.
func (s *Service) EnqueueRecompute(ctx context.Context, userID, reason string) error {
	s.mu.RLock()
	started, q, d := s.started, s.queue, s.deduper
	s.mu.RUnlock()
	if !started {
		return ErrNotStarted
	}

	if d.SeenAndRecord(ctx, userID) {
		metrics.RecordRecomputeCoalesced()
		return nil
	}
	if err := q.Enqueue(ctx, model.RecomputeJob{UserID: userID, Reason: reason, EnqueuedAt: s.now()}); err != nil {
		d.Unrecord(ctx, userID)
		return fmt.Errorf("enqueue recompute for %s: %w", userID, err)
	}
	return nil
}

// Recompute runs one queued recompute. It is called by the worker pool.
func (s *Service) Recompute(ctx context.Context, job model.RecomputeJob) error {
	s.mu.RLock()
	d := s.deduper
	s.mu.RUnlock()
	if d != nil {
		// later changes must schedule a fresh recompute
		d.Unrecord(ctx, job.UserID)
	}

	res, err := s.engine.ComputeScore(ctx, job.UserID)
	if err != nil {
		return err
	}
	if errors.Is(res.Err, repository.ErrNotFound) {
		// assignee ids are free text; nothing to record for unknown users
		return nil
	}
	return res.Err
}

// CreateUser registers a user with the default commitment score.
func (s *Service) CreateUser(ctx context.Context, name string) (model.User, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.User{}, fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	u := model.User{Name: name, CommitmentScore: model.DefaultCommitmentScore, CreatedAt: s.now()}
	id, err := s.users.Create(ctx, u)
	if err != nil {
		return model.User{}, fmt.Errorf("create user: %w", err)
	}
	u.ID = id
	return u, nil
}

// GetUser returns repository.ErrNotFound for unknown ids.
func (s *Service) GetUser(ctx context.Context, id string) (model.User, error) {
	return s.users.Get(ctx, id)
}

// CreateTask stores a new task and announces it to the project room.
func (s *Service) CreateTask(ctx context.Context, in TaskInput, actorID string) (model.Task, error) {
	now := s.now()
	t := model.Task{
		ProjectID:    in.ProjectID,
		Title:        strings.TrimSpace(in.Title),
		Description:  in.Description,
		Status:       in.Status,
		Priority:     in.Priority,
		AssigneeID:   in.AssigneeID,
		AssigneeName: in.AssigneeName,
		Deadline:     in.Deadline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if t.Status == "" {
		t.Status = model.StatusTodo
	}
	if t.Priority == "" {
		t.Priority = model.PriorityMedium
	}
	if t.Status == model.StatusCompleted {
		ts := now
		t.CompletedAt = &ts
	}
	if err := t.Validate(); err != nil {
		return model.Task{}, fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}

	id, err := s.tasks.Create(ctx, t)
	if err != nil {
		return model.Task{}, fmt.Errorf("create task: %w", err)
	}
	t.ID = id

	s.pub().PublishTaskUpdate(ctx, model.TaskUpdate{
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		NewStatus: t.Status,
		Task:      &t,
		UpdatedBy: actorID,
	})
	s.recomputeAssignees(ctx, "task_created", t.AssigneeID)
	return t, nil
}

// GetTask returns repository.ErrNotFound for unknown ids.
func (s *Service) GetTask(ctx context.Context, id string) (model.Task, error) {
	return s.tasks.Get(ctx, id)
}

// ListTasks returns a project's tasks, oldest first.
func (s *Service) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: projectId is required", ErrInvalidTask)
	}
	return s.tasks.ListByProject(ctx, projectID)
}

// UpdateTask applies patch, persists the task and announces the change.
// Concurrent updates of the same task resolve last write wins.
func (s *Service) UpdateTask(ctx context.Context, id string, patch TaskPatch, actorID string) (model.Task, error) {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return model.Task{}, err
	}
	now := s.now()
	oldStatus := t.Status
	oldAssignee := t.AssigneeID
	oldDeadline := t.Deadline

	if patch.Title != nil {
		t.Title = strings.TrimSpace(*patch.Title)
	}
	if patch.Description != nil {
		t.Description = *patch.Description
	}
	if patch.Priority != nil {
		t.Priority = *patch.Priority
	}
	if patch.AssigneeID != nil {
		t.AssigneeID = *patch.AssigneeID
	}
	if patch.AssigneeName != nil {
		t.AssigneeName = *patch.AssigneeName
	}
	if patch.Deadline != nil {
		d := *patch.Deadline
		t.Deadline = &d
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return model.Task{}, fmt.Errorf("%w: invalid status %q", ErrInvalidTask, *patch.Status)
		}
		t.MoveTo(*patch.Status, now)
	}
	t.UpdatedAt = now
	if err := t.Validate(); err != nil {
		return model.Task{}, fmt.Errorf("%w: %w", ErrInvalidTask, err)
	}

	if err := s.tasks.Save(ctx, t); err != nil {
		return model.Task{}, fmt.Errorf("save task: %w", err)
	}

	s.pub().PublishTaskUpdate(ctx, model.TaskUpdate{
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		OldStatus: oldStatus,
		NewStatus: t.Status,
		Task:      &t,
		UpdatedBy: actorID,
	})

	completionChanged := (oldStatus == model.StatusCompleted) != (t.Status == model.StatusCompleted)
	deadlineChanged := patch.Deadline != nil && (oldDeadline == nil || !oldDeadline.Equal(*t.Deadline))
	switch {
	case oldAssignee != t.AssigneeID:
		s.recomputeAssignees(ctx, "task_reassigned", oldAssignee, t.AssigneeID)
	case completionChanged:
		s.recomputeAssignees(ctx, "task_status", t.AssigneeID)
	case deadlineChanged && t.Status == model.StatusCompleted:
		s.recomputeAssignees(ctx, "task_deadline", t.AssigneeID)
	}
	return t, nil
}

// DeleteTask removes a task and announces the deletion.
func (s *Service) DeleteTask(ctx context.Context, id, actorID string) error {
	t, err := s.tasks.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.tasks.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	s.pub().PublishTaskUpdate(ctx, model.TaskUpdate{
		ProjectID: t.ProjectID,
		TaskID:    t.ID,
		Action:    model.TaskActionDelete,
		Status:    t.Status,
		UpdatedBy: actorID,
	})
	s.recomputeAssignees(ctx, "task_deleted", t.AssigneeID)
	return nil
}

// PublishProjectUpdate relays a consumer-defined project update.
func (s *Service) PublishProjectUpdate(ctx context.Context, u model.ProjectUpdate) error {
	if u.ProjectID == "" || u.Type() == "" {
		return fmt.Errorf("%w: projectId and update.type are required", ErrInvalidProjectUpdate)
	}
	s.pub().PublishProjectUpdate(ctx, u)
	return nil
}

func (s *Service) recomputeAssignees(ctx context.Context, reason string, userIDs ...string) {
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if err := s.EnqueueRecompute(ctx, id, reason); err != nil && !errors.Is(err, ErrNotStarted) {
			// the next change to this user's tasks or reviews recomputes again
			s.logger.Warn(ctx, "recompute not scheduled",
				logger.String("user_id", id),
				logger.String("reason", reason),
				logger.Error(err),
			)
		}
	}
}

// Leaderboard returns users by commitment score. Non-positive limits use the
// default and large ones are capped.
func (s *Service) Leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > s.maxLeaderboard {
		limit = s.maxLeaderboard
	}
	users, err := s.users.TopByScore(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("read leaderboard: %w", err)
	}
	return types.Rank(users), nil
}

// ScoreView computes and records the user's score and attaches its trend.
// Unknown users yield repository.ErrNotFound; other read failures fall
// through to the engine's fallback.
func (s *Service) ScoreView(ctx context.Context, userID string) (types.ScoreView, error) {
	if _, err := s.users.Get(ctx, userID); errors.Is(err, repository.ErrNotFound) {
		return types.ScoreView{}, err
	}
	res, err := s.engine.ComputeScore(ctx, userID)
	if err != nil {
		return types.ScoreView{}, err
	}
	trend, _ := s.engine.GetTrend(ctx, userID)
	return types.ScoreView{
		UserID:       res.UserID,
		Score:        res.Score,
		Breakdown:    res.Breakdown,
		UsedFallback: res.UsedFallback,
		Trend:        trend,
		ComputedAt:   res.ComputedAt,
	}, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
	}
	if s.started {
		stats["queueLength"] = s.queue.Len(ctx)
		stats["pendingRecomputes"] = s.deduper.Size()
	}
	if n, err := s.users.Count(ctx); err == nil {
		stats["totalUsers"] = n
	}
	if n, err := s.tasks.Count(ctx); err == nil {
		stats["totalTasks"] = n
	}
	if n, err := s.reviews.Count(ctx); err == nil {
		stats["totalReviews"] = n
	}
	return stats
}

// SubmitReview stores a peer review and refreshes the reviewed user's score.
func (s *Service) SubmitReview(ctx context.Context, in ReviewInput) (string, error) {
	return s.engine.SubmitReview(ctx, in)
}

// GetUserReviews returns reviews received by userID, newest first.
func (s *Service) GetUserReviews(ctx context.Context, userID string, limit int) ([]model.PeerReview, error) {
	return s.engine.GetUserReviews(ctx, userID, limit)
}

// GetTrend returns the direction of userID's recent scores.
func (s *Service) GetTrend(ctx context.Context, userID string) (model.Trend, error) {
	return s.engine.GetTrend(ctx, userID)
}

// GetHistory returns userID's recorded scores in chronological order.
func (s *Service) GetHistory(ctx context.Context, userID string, limit int) ([]model.ScoreHistoryEntry, error) {
	return s.engine.GetHistory(ctx, userID, limit)
}
