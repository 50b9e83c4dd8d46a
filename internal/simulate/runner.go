package simulate

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/skillsync/internal/adapters/realtime/client"
	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/auth"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// participant is one simulated user with its sync client and counters.
type participant struct {
	user   model.User
	rest   *restClient
	client *client.Client
	board  *client.Board
	task   model.Task

	mu       sync.Mutex
	online   map[string]bool
	messages atomic.Int64
	updates  atomic.Int64
}

func (p *participant) seenOnline() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.online)
}

// Run executes a full simulation against cfg.BaseURL.
func Run(ctx context.Context, cfg Config) (*Stats, error) {
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	log := logger.Get().Named("simulate")
	stats := &Stats{Clients: cfg.Clients, StartTime: time.Now()}

	log.Info(ctx, "starting simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("project", cfg.Project),
		logger.Int("clients", cfg.Clients),
		logger.Int("messages", cfg.Messages),
	)

	rest := newRESTClient(cfg.BaseURL, cfg.Timeout)
	if err := rest.health(ctx); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	var authn *auth.Authenticator
	if cfg.JWTSecret != "" {
		authn = auth.New(cfg.JWTSecret, time.Hour)
	}

	parts, err := connect(ctx, cfg, rest, authn)
	defer func() {
		for _, p := range parts {
			p.client.Disconnect()
		}
	}()
	if err != nil {
		return nil, err
	}

	if err := waitFor(ctx, cfg.Timeout, func() bool {
		for _, p := range parts {
			if p.seenOnline() < cfg.Clients-1 {
				return false
			}
		}
		return true
	}); err != nil {
		return nil, fmt.Errorf("clients did not all join %s: %w", cfg.Project, err)
	}
	log.Info(ctx, "all clients joined")

	for _, p := range parts {
		p.task, err = p.rest.createTask(ctx, service.TaskInput{
			ProjectID:    cfg.Project,
			Title:        "Simulated task for " + p.user.Name,
			AssigneeID:   p.user.ID,
			AssigneeName: p.user.Name,
		})
		if err != nil {
			return nil, fmt.Errorf("create task: %w", err)
		}
	}

	if err := exchange(ctx, cfg, parts, stats); err != nil {
		return nil, err
	}

	if err := verify(ctx, cfg, parts, stats); err != nil {
		return nil, err
	}
	rows, err := rest.leaderboard(ctx, cfg.Clients)
	if err != nil {
		return nil, fmt.Errorf("leaderboard retrieval failed: %w", err)
	}
	if err := verifyLeaderboardSorted(rows); err != nil {
		return nil, err
	}

	stats.Duration = time.Since(stats.StartTime)
	log.Info(ctx, "simulation completed",
		logger.Int("messagesSent", stats.MessagesSent),
		logger.Int("messagesReceived", stats.MessagesReceived),
		logger.Int("taskUpdates", stats.TaskUpdates),
		logger.Int("moves", stats.Moves),
		logger.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// connect registers one user per client, opens the sync sessions and joins
// the project room.
func connect(ctx context.Context, cfg Config, rest *restClient, authn *auth.Authenticator) ([]*participant, error) {
	parts := make([]*participant, 0, cfg.Clients)
	for i := 0; i < cfg.Clients; i++ {
		u, err := rest.createUser(ctx, fmt.Sprintf("sim-user-%d", i+1))
		if err != nil {
			return parts, fmt.Errorf("create user: %w", err)
		}

		tr := &client.WebsocketTransport{URL: cfg.wsURL()}
		token := ""
		if authn != nil {
			if token, err = authn.Issue(u.ID, u.Name); err != nil {
				return parts, err
			}
			tr.Token = func(string) (string, error) { return token, nil }
		}

		p := &participant{user: u, rest: rest.as(u.ID, token), online: make(map[string]bool)}
		p.client = client.New(tr, client.WithDisplayName(u.Name))
		p.board = client.NewBoard(p.client, cfg.Project, p.rest, p.rest)
		p.client.OnMessage(func(model.Message) { p.messages.Add(1) })
		p.client.OnTaskUpdate(func(model.TaskUpdate) { p.updates.Add(1) })
		p.client.OnStatusChange(func(s model.StatusChange) {
			if s.Status == model.PresenceOnline {
				p.mu.Lock()
				p.online[s.UserID] = true
				p.mu.Unlock()
			}
		})
		parts = append(parts, p)

		if err := p.client.Connect(ctx, u.ID); err != nil {
			return parts, err
		}
		p.client.JoinProject(cfg.Project)
	}
	return parts, nil
}

// exchange has every client send its messages and move its task to done
// through the optimistic board, concurrently.
func exchange(ctx context.Context, cfg Config, parts []*participant, stats *Stats) error {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	var sent, moves atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, p := range parts {
		g.Go(func() error {
			for i := 0; i < cfg.Messages; i++ {
				err := p.client.SendMessage(gctx, model.Message{
					ProjectID: cfg.Project,
					Text:      fmt.Sprintf("update %d from %s", i+1, p.user.Name),
				})
				if err != nil {
					return fmt.Errorf("%s send message: %w", p.user.Name, err)
				}
				sent.Add(1)
			}
			if err := p.board.Load(gctx); err != nil {
				return err
			}
			for _, status := range []model.TaskStatus{model.StatusInProgress, model.StatusCompleted} {
				if err := p.board.Move(gctx, p.task.ID, status); err != nil {
					return fmt.Errorf("%s move task: %w", p.user.Name, err)
				}
				moves.Add(1)
			}
			return nil
		})
	}
	err := g.Wait()
	stats.MessagesSent = int(sent.Load())
	stats.Moves = int(moves.Load())
	return err
}

func waitFor(ctx context.Context, timeout time.Duration, cond func() bool) error {
	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out after %s", timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
	return nil
}
