// Package hub keeps per-project rooms of websocket connections and fans
// events out to room members.
package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/skillsync/internal/auth"
	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

const defaultSendBuffer = 64

// Conn is one client connection registered with the hub.
type Conn struct {
	id   string
	user auth.Identity
	send chan []byte

	// guarded by Hub.mu
	rooms map[string]struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// ID returns the connection id.
func (c *Conn) ID() string { return c.id }

// User returns the identity the connection acts as.
func (c *Conn) User() auth.Identity { return c.user }

// Send returns the outbound frames of the connection.
func (c *Conn) Send() <-chan []byte { return c.send }

// Done is closed once the connection is dropped or unregistered.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

type room struct {
	id      string
	members map[*Conn]struct{}
	typing  map[string]string // user id -> display name
}

// Hub routes frames between connections that joined the same project.
type Hub struct {
	mu     sync.Mutex
	rooms  map[string]*room
	conns  map[*Conn]struct{}
	online map[string]int // user id -> open connections

	sendBuffer     int
	allowedOrigins []string
	auth           *auth.Authenticator
	now            func() time.Time
	logger         logger.Logger
}

// New creates an empty hub.
func New(opts ...Option) *Hub {
	h := &Hub{
		rooms:      make(map[string]*room),
		conns:      make(map[*Conn]struct{}),
		online:     make(map[string]int),
		sendBuffer: defaultSendBuffer,
		auth:       auth.New("", 0),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.logger == nil {
		h.logger = logger.Get().Named("hub")
	}
	return h
}

// Register adds a connection for id.
func (h *Hub) Register(id auth.Identity) *Conn {
	c := &Conn{
		id:    uuid.NewString(),
		user:  id,
		send:  make(chan []byte, h.sendBuffer),
		rooms: make(map[string]struct{}),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.online[id.UserID]++
	h.updateGaugesLocked()
	h.mu.Unlock()

	h.logger.Debug(context.Background(), "connection registered",
		logger.String("conn_id", c.id),
		logger.String("user_id", id.UserID),
	)
	return c
}

// Unregister removes c from every room and closes it. Safe to call twice.
func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c]; !ok {
		h.mu.Unlock()
		c.close()
		return
	}
	for pid := range c.rooms {
		if r := h.rooms[pid]; r != nil {
			h.leaveLocked(c, r)
		}
	}
	delete(h.conns, c)
	if h.online[c.user.UserID]--; h.online[c.user.UserID] <= 0 {
		delete(h.online, c.user.UserID)
	}
	h.updateGaugesLocked()
	h.mu.Unlock()

	c.close()
	h.logger.Debug(context.Background(), "connection unregistered",
		logger.String("conn_id", c.id),
		logger.String("user_id", c.user.UserID),
	)
}

// Join adds c to the project room, creating it on first join. Joining twice
// is a no-op. Other members learn the user is online and c receives the
// presence of everyone already there.
func (h *Hub) Join(c *Conn, projectID string) error {
	if projectID == "" {
		return fmt.Errorf("%w: missing projectId", ErrBadFrame)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.conns[c]; !ok {
		return fmt.Errorf("%w: connection closed", ErrNotMember)
	}
	r := h.rooms[projectID]
	if r == nil {
		r = &room{id: projectID, members: make(map[*Conn]struct{}), typing: make(map[string]string)}
		h.rooms[projectID] = r
	}
	if _, ok := r.members[c]; ok {
		return nil
	}

	alreadyPresent := userInRoom(r, c.user.UserID)
	seen := map[string]bool{c.user.UserID: true}
	for m := range r.members {
		if seen[m.user.UserID] {
			continue
		}
		seen[m.user.UserID] = true
		h.sendLocked(c, h.event(model.EventStatusChange, projectID, m.user.UserID,
			model.StatusChange{UserID: m.user.UserID, Status: model.PresenceOnline}))
	}
	for uid, name := range r.typing {
		h.sendLocked(c, h.event(model.EventTyping, projectID, uid,
			model.Typing{UserID: uid, UserName: name, ProjectID: projectID, IsTyping: true}))
	}

	r.members[c] = struct{}{}
	c.rooms[projectID] = struct{}{}
	if !alreadyPresent {
		h.broadcastLocked(r, h.event(model.EventStatusChange, projectID, c.user.UserID,
			model.StatusChange{UserID: c.user.UserID, Status: model.PresenceOnline}), c)
	}
	h.updateGaugesLocked()
	return nil
}

// Leave removes c from the project room. Leaving a room c is not in is a
// no-op; the last member leaving deletes the room.
func (h *Hub) Leave(c *Conn, projectID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r := h.rooms[projectID]; r != nil {
		if _, ok := r.members[c]; ok {
			h.leaveLocked(c, r)
			h.updateGaugesLocked()
		}
	}
}

func (h *Hub) leaveLocked(c *Conn, r *room) {
	delete(r.members, c)
	delete(c.rooms, r.id)

	uid := c.user.UserID
	if !userInRoom(r, uid) {
		if name, typing := r.typing[uid]; typing {
			delete(r.typing, uid)
			h.broadcastLocked(r, h.event(model.EventTyping, r.id, uid,
				model.Typing{UserID: uid, UserName: name, ProjectID: r.id, IsTyping: false}), nil)
		}
		h.broadcastLocked(r, h.event(model.EventStatusChange, r.id, uid,
			model.StatusChange{UserID: uid, Status: model.PresenceOffline}), nil)
	}
	if len(r.members) == 0 {
		delete(h.rooms, r.id)
	}
}

func userInRoom(r *room, userID string) bool {
	for m := range r.members {
		if m.user.UserID == userID {
			return true
		}
	}
	return false
}

// Emit relays a client event to the other members of its room. The sender's
// identity overrides any user id claimed in the payload.
func (h *Hub) Emit(c *Conn, env model.Envelope) error {
	if !env.Event.Known() {
		return fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	uid := c.user.UserID
	payload, err := h.stamp(c, env)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.rooms[env.ProjectID]
	if r == nil {
		return ErrNotMember
	}
	if _, ok := r.members[c]; !ok {
		return ErrNotMember
	}

	if env.Event == model.EventTyping {
		t := payload.(model.Typing)
		if t.IsTyping {
			r.typing[uid] = t.UserName
		} else {
			delete(r.typing, uid)
		}
	}

	out := model.Envelope{
		ID:        env.ID,
		Op:        model.OpEvent,
		Event:     env.Event,
		ProjectID: env.ProjectID,
		From:      uid,
		TS:        h.now(),
	}
	if out.ID == "" {
		out.ID = uuid.NewString()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode %s payload: %w", env.Event, err)
	}
	out.Payload = raw
	h.broadcastLocked(r, out, c)
	return nil
}

// stamp decodes the payload and forces identity fields to the sender.
func (h *Hub) stamp(c *Conn, env model.Envelope) (any, error) {
	uid := c.user.UserID
	switch env.Event {
	case model.EventTyping:
		var t model.Typing
		if err := env.Decode(&t); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
		t.UserID, t.ProjectID = uid, env.ProjectID
		if t.UserName == "" {
			t.UserName = c.user.Name
		}
		return t, nil
	case model.EventMessage:
		var m model.Message
		if err := env.Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
		m.SenderID, m.ProjectID = uid, env.ProjectID
		if m.SenderName == "" {
			m.SenderName = c.user.Name
		}
		if m.SenderName == "" {
			m.SenderName = uid
		}
		if m.ID == "" {
			m.ID = env.ID
		}
		if m.SentAt.IsZero() {
			m.SentAt = h.now()
		}
		return m, nil
	case model.EventStatusChange:
		var s model.StatusChange
		if err := env.Decode(&s); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
		s.UserID = uid
		return s, nil
	case model.EventTaskUpdate:
		var u model.TaskUpdate
		if err := env.Decode(&u); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
		u.ProjectID, u.UpdatedBy = env.ProjectID, uid
		return u, nil
	default:
		var p model.ProjectUpdate
		if err := env.Decode(&p); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBadFrame, err)
		}
		p.ProjectID = env.ProjectID
		return p, nil
	}
}

// Broadcast delivers env to every member of the project room except the
// given connection, which may be nil.
func (h *Hub) Broadcast(projectID string, env model.Envelope, except *Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r := h.rooms[projectID]; r != nil {
		h.broadcastLocked(r, env, except)
	}
}

// PublishTaskUpdate announces a persisted task change to the project room.
func (h *Hub) PublishTaskUpdate(ctx context.Context, u model.TaskUpdate) {
	env, err := model.NewEnvelope(model.OpEvent, model.EventTaskUpdate, u.ProjectID, u)
	if err != nil {
		h.logger.Error(ctx, "encode task update", logger.Error(err))
		return
	}
	env.From = u.UpdatedBy
	h.Broadcast(u.ProjectID, env, nil)
}

// PublishProjectUpdate announces a project-level change to the project room.
func (h *Hub) PublishProjectUpdate(ctx context.Context, u model.ProjectUpdate) {
	env, err := model.NewEnvelope(model.OpEvent, model.EventProjectUpdate, u.ProjectID, u)
	if err != nil {
		h.logger.Error(ctx, "encode project update", logger.Error(err))
		return
	}
	h.Broadcast(u.ProjectID, env, nil)
}

func (h *Hub) event(name model.EventName, projectID, from string, payload any) model.Envelope {
	env, err := model.NewEnvelope(model.OpEvent, name, projectID, payload)
	if err != nil {
		h.logger.Error(context.Background(), "encode event", logger.String("event", string(name)), logger.Error(err))
	}
	env.From = from
	env.TS = h.now()
	return env
}

func (h *Hub) broadcastLocked(r *room, env model.Envelope, except *Conn) {
	frame, err := json.Marshal(env)
	if err != nil {
		h.logger.Error(context.Background(), "encode frame", logger.Error(err))
		return
	}
	metrics.RecordHubBroadcast(string(env.Event))
	for m := range r.members {
		if m == except {
			continue
		}
		h.deliverLocked(m, frame)
	}
}

func (h *Hub) sendLocked(c *Conn, env model.Envelope) {
	frame, err := json.Marshal(env)
	if err != nil {
		h.logger.Error(context.Background(), "encode frame", logger.Error(err))
		return
	}
	h.deliverLocked(c, frame)
}

// deliverLocked never blocks: a member that cannot keep up is dropped.
func (h *Hub) deliverLocked(c *Conn, frame []byte) {
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- frame:
	default:
		metrics.RecordHubDroppedSend()
		h.logger.Warn(context.Background(), "dropping slow connection",
			logger.String("conn_id", c.id),
			logger.String("user_id", c.user.UserID),
		)
		c.close()
		go h.Unregister(c)
	}
}

// Reply sends a frame to c alone.
func (h *Hub) Reply(c *Conn, env model.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sendLocked(c, env)
}

func (h *Hub) updateGaugesLocked() {
	metrics.UpdateHubConnections(len(h.conns))
	metrics.UpdateHubRooms(len(h.rooms))
}

// Stats describes the hub for the stats endpoint.
type Stats struct {
	Connections int `json:"connections"`
	Rooms       int `json:"rooms"`
	OnlineUsers int `json:"onlineUsers"`
}

// Stats returns current counts.
func (h *Hub) Stats() Stats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return Stats{Connections: len(h.conns), Rooms: len(h.rooms), OnlineUsers: len(h.online)}
}

// Members returns the user ids in a project room, one per connection.
func (h *Hub) Members(projectID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[projectID]
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.members))
	for m := range r.members {
		out = append(out, m.user.UserID)
	}
	return out
}

// Typing returns the user ids currently typing in a project room.
func (h *Hub) Typing(projectID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rooms[projectID]
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.typing))
	for uid := range r.typing {
		out = append(out, uid)
	}
	return out
}
