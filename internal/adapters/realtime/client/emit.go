package client

import (
	"context"
	"fmt"

	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// JoinProject asks the hub to add this connection to the project room.
// Rooms are remembered and re-joined after a reconnect. Not connected or
// already joined: no-op.
func (c *Client) JoinProject(projectID string) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	if _, ok := c.rooms[projectID]; ok {
		c.mu.Unlock()
		return
	}
	c.rooms[projectID] = struct{}{}
	sess := c.session
	c.mu.Unlock()

	c.fire(sess, model.OpJoin, "", projectID, nil)
}

// LeaveProject leaves the project room. Not connected or not joined: no-op.
func (c *Client) LeaveProject(projectID string) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	if _, ok := c.rooms[projectID]; !ok {
		c.mu.Unlock()
		return
	}
	delete(c.rooms, projectID)
	if t, ok := c.typing[projectID]; ok {
		t.timer.Stop()
		delete(c.typing, projectID)
	}
	sess := c.session
	c.mu.Unlock()

	c.fire(sess, model.OpLeave, "", projectID, nil)
}

// Rooms returns the projects this client asked to join.
func (c *Client) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomListLocked()
}

// SetTypingStatus flags the user as typing in projectID. A true flag lasts
// for the typing timeout unless renewed; false clears it at once.
// Disconnected: silent no-op.
func (c *Client) SetTypingStatus(projectID string, isTyping bool) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	t, wasTyping := c.typing[projectID]
	if wasTyping {
		t.timer.Stop()
		delete(c.typing, projectID)
	}
	if isTyping {
		c.typingSeq++
		gen, seq := c.gen, c.typingSeq
		c.typing[projectID] = typingTimer{
			seq:   seq,
			timer: c.clock.AfterFunc(c.typingTimeout, func() { c.typingExpired(projectID, gen, seq) }),
		}
	}
	sess := c.session
	c.mu.Unlock()

	if isTyping && wasTyping {
		return
	}
	if !isTyping && !wasTyping {
		return
	}
	c.fire(sess, model.OpEmit, model.EventTyping, projectID, c.typingPayload(projectID, isTyping))
}

type typingTimer struct {
	seq   uint64
	timer Timer
}

func (c *Client) typingExpired(projectID string, gen, seq uint64) {
	c.mu.Lock()
	if c.gen != gen || c.state != StateConnected || c.typing[projectID].seq != seq {
		c.mu.Unlock()
		return
	}
	delete(c.typing, projectID)
	sess := c.session
	c.mu.Unlock()

	c.fire(sess, model.OpEmit, model.EventTyping, projectID, c.typingPayload(projectID, false))
}

func (c *Client) typingPayload(projectID string, isTyping bool) model.Typing {
	return model.Typing{
		UserID:    c.UserID(),
		UserName:  c.displayName,
		ProjectID: projectID,
		IsTyping:  isTyping,
	}
}

// SetPresence announces status to every joined room. Disconnected: silent
// no-op.
func (c *Client) SetPresence(status string) {
	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return
	}
	sess := c.session
	rooms := c.roomListLocked()
	uid := c.userID
	c.mu.Unlock()

	for _, p := range rooms {
		c.fire(sess, model.OpEmit, model.EventStatusChange, p, model.StatusChange{UserID: uid, Status: status})
	}
}

// UpdateTask broadcasts a task change to the project room and waits for the
// hub to acknowledge it. It does not persist anything.
func (c *Client) UpdateTask(ctx context.Context, u model.TaskUpdate) error {
	if u.ProjectID == "" {
		return fmt.Errorf("update task: missing projectId")
	}
	return c.request(ctx, model.EventTaskUpdate, u.ProjectID, u)
}

// SendMessage posts a chat line to the project room and waits for the ack.
// An empty SenderName is filled with the client's display name.
func (c *Client) SendMessage(ctx context.Context, m model.Message) error {
	if m.ProjectID == "" {
		return fmt.Errorf("send message: missing projectId")
	}
	if m.SenderName == "" {
		m.SenderName = c.displayName
	}
	return c.request(ctx, model.EventMessage, m.ProjectID, m)
}

// request emits an acknowledged event.
func (c *Client) request(ctx context.Context, event model.EventName, projectID string, payload any) error {
	env, err := model.NewEnvelope(model.OpEmit, event, projectID, payload)
	if err != nil {
		return err
	}
	done := make(chan error, 1)

	c.mu.Lock()
	if c.state != StateConnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	sess := c.session
	c.pending[env.ID] = done
	c.mu.Unlock()

	forget := func() {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
	}
	if err := sess.Send(ctx, env); err != nil {
		forget()
		return fmt.Errorf("send %s: %w", event, err)
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		forget()
		return ctx.Err()
	}
}

// fire sends a frame without waiting for a reply.
func (c *Client) fire(sess Session, op model.Op, event model.EventName, projectID string, payload any) {
	if sess == nil {
		return
	}
	env, err := model.NewEnvelope(op, event, projectID, payload)
	if err != nil {
		c.logger.Error(context.Background(), "encode frame", logger.Error(err))
		return
	}
	if err := sess.Send(context.Background(), env); err != nil {
		c.logger.Debug(context.Background(), "send failed",
			logger.String("op", string(op)),
			logger.String("project_id", projectID),
			logger.Error(err),
		)
	}
}
