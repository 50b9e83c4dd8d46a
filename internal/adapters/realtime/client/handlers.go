package client

import (
	"context"
	"sync"

	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

type handler struct {
	id uint64
	fn func(model.Envelope)
}

type stateHandler struct {
	id uint64
	fn func(State)
}

// Subscription removes one handler registration.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the handler. Calling it again does nothing.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(s.cancel)
}

// On registers fn for event. Handlers run on the session's dispatcher
// goroutine, in delivery order and then registration order, so they may
// call SendMessage or UpdateTask and wait for the ack.
func (c *Client) On(event model.EventName, fn func(model.Envelope)) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	h := &handler{id: c.nextSubID, fn: fn}
	c.handlers[event] = append(c.handlers[event], h)
	return &Subscription{cancel: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		list := c.handlers[event]
		for i, x := range list {
			if x.id == h.id {
				c.handlers[event] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}}
}

// OnStateChange registers fn for connection state transitions.
func (c *Client) OnStateChange(fn func(State)) *Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSubID++
	h := &stateHandler{id: c.nextSubID, fn: fn}
	c.onState = append(c.onState, h)
	return &Subscription{cancel: func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, x := range c.onState {
			if x.id == h.id {
				c.onState = append(c.onState[:i:i], c.onState[i+1:]...)
				return
			}
		}
	}}
}

// OnTaskUpdate registers a typed task:update handler.
func (c *Client) OnTaskUpdate(fn func(model.TaskUpdate)) *Subscription {
	return onTyped(c, model.EventTaskUpdate, fn)
}

// OnMessage registers a typed message handler.
func (c *Client) OnMessage(fn func(model.Message)) *Subscription {
	return onTyped(c, model.EventMessage, fn)
}

// OnTyping registers a typed typing handler.
func (c *Client) OnTyping(fn func(model.Typing)) *Subscription {
	return onTyped(c, model.EventTyping, fn)
}

// OnStatusChange registers a typed presence handler.
func (c *Client) OnStatusChange(fn func(model.StatusChange)) *Subscription {
	return onTyped(c, model.EventStatusChange, fn)
}

// OnProjectUpdate registers a typed project:update handler.
func (c *Client) OnProjectUpdate(fn func(model.ProjectUpdate)) *Subscription {
	return onTyped(c, model.EventProjectUpdate, fn)
}

func onTyped[T any](c *Client, event model.EventName, fn func(T)) *Subscription {
	return c.On(event, func(env model.Envelope) {
		var v T
		if err := env.Decode(&v); err != nil {
			c.logger.Warn(context.Background(), "dropping undecodable event",
				logger.String("event", string(event)),
				logger.Error(err),
			)
			return
		}
		fn(v)
	})
}

// dispatch routes one inbound frame: acks and errors settle pending emits
// at once, events are queued for the dispatcher.
func (c *Client) dispatch(env model.Envelope, events *mailbox) {
	switch env.Op {
	case model.OpAck, model.OpError:
		var err error
		if env.Op == model.OpError {
			err = &RemoteError{Code: env.Error}
		}
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		delete(c.pending, env.ID)
		c.mu.Unlock()
		if ok {
			ch <- err
		} else if err != nil {
			c.logger.Debug(context.Background(), "hub rejected frame",
				logger.String("project_id", env.ProjectID),
				logger.Error(err),
			)
		}
	case model.OpEvent:
		events.put(env)
	}
}

// deliver runs the handlers for one event, at most once per envelope id.
func (c *Client) deliver(env model.Envelope) {
	if env.ID != "" && c.seen.SeenAndRecord(context.Background(), env.ID) {
		return
	}
	c.mu.Lock()
	list := append([]*handler(nil), c.handlers[env.Event]...)
	c.mu.Unlock()
	for _, h := range list {
		h.fn(env)
	}
}
