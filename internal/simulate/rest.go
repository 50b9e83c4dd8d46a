package simulate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	service "github.com/okian/skillsync/internal/app"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/types"
)

// restClient calls the SkillSync HTTP API as one user. It serves as the
// board's TaskLoader and TaskPersister.
type restClient struct {
	base   string
	http   *http.Client
	actor  string
	bearer string
}

func newRESTClient(base string, timeout time.Duration) *restClient {
	return &restClient{base: base, http: &http.Client{Timeout: timeout}}
}

// as returns a client acting as userID with the given token, which may be
// empty when the server runs without a jwt secret.
func (c *restClient) as(userID, token string) *restClient {
	cp := *c
	cp.actor, cp.bearer = userID, token
	return &cp
}

func (c *restClient) do(ctx context.Context, method, path string, body, out any) error {
	var rdr io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rdr = bytes.NewReader(raw)
	}
	target := c.base + path
	if c.actor != "" && c.bearer == "" {
		target += "?user_id=" + url.QueryEscape(c.actor)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rdr)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
	}
	return nil
}

func (c *restClient) health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/healthz", nil, nil)
}

func (c *restClient) createUser(ctx context.Context, name string) (model.User, error) {
	var u model.User
	err := c.do(ctx, http.MethodPost, "/users", map[string]string{"name": name}, &u)
	return u, err
}

func (c *restClient) createTask(ctx context.Context, in service.TaskInput) (model.Task, error) {
	var t model.Task
	err := c.do(ctx, http.MethodPost, "/tasks", in, &t)
	return t, err
}

func (c *restClient) leaderboard(ctx context.Context, limit int) ([]types.LeaderboardEntry, error) {
	var rows []types.LeaderboardEntry
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/leaderboard?limit=%d", limit), nil, &rows)
	return rows, err
}

// ListTasks implements client.TaskLoader.
func (c *restClient) ListTasks(ctx context.Context, projectID string) ([]model.Task, error) {
	var tasks []model.Task
	err := c.do(ctx, http.MethodGet, "/projects/"+url.PathEscape(projectID)+"/tasks", nil, &tasks)
	return tasks, err
}

// MoveTask implements client.TaskPersister.
func (c *restClient) MoveTask(ctx context.Context, taskID string, status model.TaskStatus) (model.Task, error) {
	var t model.Task
	err := c.do(ctx, http.MethodPatch, "/tasks/"+url.PathEscape(taskID), service.TaskPatch{Status: &status}, &t)
	return t, err
}
