package client

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/okian/skillsync/internal/domain/model"
)

var errDropped = errors.New("session dropped")

// manualClock fires timers only when advanced.
type manualClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []*manualTimer
}

type manualTimer struct {
	clock *manualClock
	at    time.Time
	fn    func()
	ch    chan time.Time
	done  bool
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), ch: make(chan time.Time, 1)}
	c.waiters = append(c.waiters, t)
	return t.ch
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, at: c.now.Add(d), fn: f}
	c.waiters = append(c.waiters, t)
	return t
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

// Pending counts timers that have not fired or been stopped.
func (c *manualClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.waiters {
		if !t.done {
			n++
		}
	}
	return n
}

// Advance moves time forward and fires due timers in deadline order.
func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	var due []*manualTimer
	kept := c.waiters[:0]
	for _, t := range c.waiters {
		switch {
		case t.done:
		case !t.at.After(now):
			t.done = true
			due = append(due, t)
		default:
			kept = append(kept, t)
		}
	}
	c.waiters = kept
	c.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		if t.fn != nil {
			t.fn()
		} else {
			t.ch <- now
		}
	}
}

// fakeSession is an in-memory Session. Acknowledged emits are answered
// automatically unless reject is set.
type fakeSession struct {
	mu     sync.Mutex
	sent   []model.Envelope
	in     chan model.Envelope
	closed chan struct{}
	once   sync.Once
	reject string
}

func newFakeSession() *fakeSession {
	return &fakeSession{in: make(chan model.Envelope, 64), closed: make(chan struct{})}
}

func (s *fakeSession) Send(_ context.Context, env model.Envelope) error {
	select {
	case <-s.closed:
		return errDropped
	default:
	}
	s.mu.Lock()
	s.sent = append(s.sent, env)
	reject := s.reject
	s.mu.Unlock()

	if env.Op == model.OpEmit && env.Event.RequiresAck() {
		reply := model.Envelope{ID: env.ID, Op: model.OpAck, Event: env.Event, ProjectID: env.ProjectID}
		if reject != "" {
			reply.Op, reply.Error = model.OpError, reject
		}
		s.in <- reply
	}
	return nil
}

func (s *fakeSession) Recv() (model.Envelope, error) {
	select {
	case env := <-s.in:
		return env, nil
	case <-s.closed:
		return model.Envelope{}, errDropped
	}
}

func (s *fakeSession) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// Drop simulates the transport going away.
func (s *fakeSession) Drop() { _ = s.Close() }

// Deliver injects an inbound frame.
func (s *fakeSession) Deliver(env model.Envelope) { s.in <- env }

// Sent returns the frames written so far, optionally filtered by op.
func (s *fakeSession) Sent(op model.Op) []model.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Envelope
	for _, e := range s.sent {
		if op == "" || e.Op == op {
			out = append(out, e)
		}
	}
	return out
}

// fakeTransport hands out fakeSessions; fail makes Dial return an error.
type fakeTransport struct {
	mu       sync.Mutex
	sessions []*fakeSession
	dials    []string
	fail     bool
}

func (t *fakeTransport) Dial(_ context.Context, userID string) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials = append(t.dials, userID)
	if t.fail {
		return nil, errors.New("connection refused")
	}
	s := newFakeSession()
	t.sessions = append(t.sessions, s)
	return s, nil
}

func (t *fakeTransport) SetFail(fail bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fail = fail
}

func (t *fakeTransport) Dials() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.dials)
}

func (t *fakeTransport) Last() *fakeSession {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.sessions) == 0 {
		return nil
	}
	return t.sessions[len(t.sessions)-1]
}

func (t *fakeTransport) Sessions() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}
