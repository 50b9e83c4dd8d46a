// Package client is the realtime sync client: it keeps one session to the
// hub, re-joins rooms after reconnecting and dispatches room events to
// registered handlers.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/skillsync/internal/domain/dedupe"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
)

// State is the connection state of a Client.
type State string

// Connection states.
const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// Client is a sync client bound to one user per connection.
type Client struct {
	mu        sync.Mutex
	state     State
	userID    string
	session   Session
	gen       uint64 // bumped for every new or abandoned session
	rooms     map[string]struct{}
	pending   map[string]chan error
	typing    map[string]typingTimer
	typingSeq uint64
	handlers  map[model.EventName][]*handler
	onState   []*stateHandler
	// pending state notifications, drained by notifyStates
	stateQueue []stateNote
	notifying  bool
	nextSubID  uint64

	seen dedupe.Deduper

	transport         Transport
	clock             Clock
	reconnectAttempts int
	reconnectDelay    time.Duration
	typingTimeout     time.Duration
	displayName       string
	logger            logger.Logger
}

// New creates a disconnected client.
func New(t Transport, opts ...Option) *Client {
	c := &Client{
		state:             StateDisconnected,
		rooms:             make(map[string]struct{}),
		pending:           make(map[string]chan error),
		typing:            make(map[string]typingTimer),
		handlers:          make(map[model.EventName][]*handler),
		seen:              dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(defaultSeenSize)),
		transport:         t,
		clock:             realClock{},
		reconnectAttempts: defaultReconnectAttempts,
		reconnectDelay:    defaultReconnectDelay,
		typingTimeout:     defaultTypingTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("sync-client")
	}
	return c
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// UserID returns the identity of the current or last connection.
func (c *Client) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// Connect opens a session for userID. Calling it again for the same user
// while connecting or connected is a no-op; another user gets
// ErrIdentityChange until Disconnect.
func (c *Client) Connect(ctx context.Context, userID string) error {
	if userID == "" {
		return fmt.Errorf("connect: empty user id")
	}
	c.mu.Lock()
	if c.state != StateDisconnected {
		same := c.userID == userID
		c.mu.Unlock()
		if same {
			return nil
		}
		return ErrIdentityChange
	}
	c.userID = userID
	c.gen++
	gen := c.gen
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	sess, err := c.transport.Dial(ctx, userID)

	c.mu.Lock()
	if c.gen != gen || c.state != StateConnecting {
		c.mu.Unlock()
		if sess != nil {
			_ = sess.Close()
		}
		return ErrNotConnected
	}
	if err != nil {
		c.setStateLocked(StateDisconnected)
		c.mu.Unlock()
		return fmt.Errorf("connect %s: %w", userID, err)
	}
	c.adoptLocked(sess)
	rooms := c.roomListLocked()
	c.mu.Unlock()

	c.rejoin(sess, rooms)
	c.logger.Info(ctx, "connected", logger.String("user_id", userID))
	return nil
}

// Disconnect closes the session from any state, forgets requested rooms and
// drops every handler registration.
func (c *Client) Disconnect() {
	c.mu.Lock()
	sess := c.session
	c.session = nil
	c.gen++
	c.rooms = make(map[string]struct{})
	c.clearTypingLocked()
	c.failPendingLocked(ErrNotConnected)
	c.setStateLocked(StateDisconnected)
	c.handlers = make(map[model.EventName][]*handler)
	c.onState = nil
	c.mu.Unlock()

	if sess != nil {
		_ = sess.Close()
	}
}

// adoptLocked makes sess current and starts its reader.
func (c *Client) adoptLocked(sess Session) {
	c.gen++
	c.session = sess
	c.setStateLocked(StateConnected)
	events := newMailbox()
	go events.run(c.deliver)
	go c.read(sess, c.gen, events)
}

func (c *Client) roomListLocked() []string {
	out := make([]string, 0, len(c.rooms))
	for p := range c.rooms {
		out = append(out, p)
	}
	return out
}

func (c *Client) rejoin(sess Session, rooms []string) {
	for _, p := range rooms {
		env, _ := model.NewEnvelope(model.OpJoin, "", p, nil)
		if err := sess.Send(context.Background(), env); err != nil {
			c.logger.Warn(context.Background(), "rejoin failed", logger.String("project_id", p), logger.Error(err))
		}
	}
}

// read pumps frames from sess until it fails, then starts reconnecting
// unless the session was replaced or abandoned meanwhile. Acks settle here;
// events go to the session's mailbox.
func (c *Client) read(sess Session, gen uint64, events *mailbox) {
	defer events.close()
	for {
		env, err := sess.Recv()
		if err != nil {
			c.mu.Lock()
			if c.gen != gen || c.state != StateConnected {
				c.mu.Unlock()
				return
			}
			c.session = nil
			c.gen++
			next := c.gen
			c.clearTypingLocked()
			c.failPendingLocked(ErrNotConnected)
			c.setStateLocked(StateReconnecting)
			c.mu.Unlock()

			_ = sess.Close()
			c.logger.Warn(context.Background(), "session lost, reconnecting", logger.Error(err))
			go c.reconnect(next)
			return
		}
		c.dispatch(env, events)
	}
}

// reconnect retries with exponential back-off while the client stays in
// the reconnecting state of generation gen.
func (c *Client) reconnect(gen uint64) {
	ctx := context.Background()
	delay := c.reconnectDelay
	for attempt := 1; attempt <= c.reconnectAttempts; attempt++ {
		<-c.clock.After(delay)
		delay *= 2

		c.mu.Lock()
		if c.gen != gen || c.state != StateReconnecting {
			c.mu.Unlock()
			return
		}
		userID := c.userID
		c.mu.Unlock()

		sess, err := c.transport.Dial(ctx, userID)
		if err != nil {
			c.logger.Warn(ctx, "reconnect attempt failed",
				logger.Int("attempt", attempt),
				logger.Error(err),
			)
			continue
		}

		c.mu.Lock()
		if c.gen != gen || c.state != StateReconnecting {
			c.mu.Unlock()
			_ = sess.Close()
			return
		}
		c.adoptLocked(sess)
		rooms := c.roomListLocked()
		c.mu.Unlock()

		c.rejoin(sess, rooms)
		c.logger.Info(ctx, "reconnected", logger.Int("attempt", attempt), logger.Int("rooms", len(rooms)))
		return
	}

	c.mu.Lock()
	if c.gen == gen && c.state == StateReconnecting {
		c.gen++
		c.setStateLocked(StateDisconnected)
	}
	c.mu.Unlock()
	c.logger.Error(ctx, "giving up", logger.Error(ErrReconnectExhausted))
}

func (c *Client) clearTypingLocked() {
	for p, t := range c.typing {
		t.timer.Stop()
		delete(c.typing, p)
	}
}

func (c *Client) failPendingLocked(err error) {
	for id, ch := range c.pending {
		ch <- err
		delete(c.pending, id)
	}
}

// setStateLocked records s and queues it for state handlers. Handlers run
// in transition order on a separate goroutine so they may call back into
// the client.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if len(c.onState) == 0 {
		return
	}
	c.stateQueue = append(c.stateQueue, stateNote{state: s, subs: append([]*stateHandler(nil), c.onState...)})
	if c.notifying {
		return
	}
	c.notifying = true
	go c.notifyStates()
}

type stateNote struct {
	state State
	subs  []*stateHandler
}

func (c *Client) notifyStates() {
	for {
		c.mu.Lock()
		if len(c.stateQueue) == 0 {
			c.notifying = false
			c.mu.Unlock()
			return
		}
		n := c.stateQueue[0]
		c.stateQueue = c.stateQueue[1:]
		c.mu.Unlock()

		for _, h := range n.subs {
			h.fn(n.state)
		}
	}
}
