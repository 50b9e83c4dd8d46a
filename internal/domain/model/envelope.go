package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Op is the frame kind on the realtime socket.
type Op string

// Frame kinds. Clients send join, leave and emit; the hub sends event, ack
// and error.
const (
	OpJoin  Op = "join"
	OpLeave Op = "leave"
	OpEmit  Op = "emit"
	OpEvent Op = "event"
	OpAck   Op = "ack"
	OpError Op = "error"
)

// EventName identifies a room event.
type EventName string

// Room events.
const (
	EventTaskUpdate    EventName = "task:update"
	EventMessage       EventName = "message"
	EventTyping        EventName = "typing"
	EventStatusChange  EventName = "status:change"
	EventProjectUpdate EventName = "project:update"
)

// Known reports whether e is an event the hub relays.
func (e EventName) Known() bool {
	switch e {
	case EventTaskUpdate, EventMessage, EventTyping, EventStatusChange, EventProjectUpdate:
		return true
	}
	return false
}

// RequiresAck reports whether emitting e expects a confirmation from the hub.
// Best-effort events (typing, presence) are fire-and-forget.
func (e EventName) RequiresAck() bool {
	return e == EventTaskUpdate || e == EventMessage || e == EventProjectUpdate
}

// Envelope is a single JSON frame on the realtime socket.
type Envelope struct {
	ID        string          `json:"id"`
	Op        Op              `json:"op"`
	Event     EventName       `json:"event,omitempty"`
	ProjectID string          `json:"projectId,omitempty"`
	From      string          `json:"from,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	TS        time.Time       `json:"ts"`
}

// NewEnvelope builds a frame with a fresh id and the payload encoded as JSON.
func NewEnvelope(op Op, event EventName, projectID string, payload any) (Envelope, error) {
	env := Envelope{
		ID:        uuid.NewString(),
		Op:        op,
		Event:     event,
		ProjectID: projectID,
		TS:        time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Payload = raw
	}
	return env, nil
}

// Decode unmarshals the payload into v.
func (e Envelope) Decode(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("empty %s payload", e.Event)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", e.Event, err)
	}
	return nil
}

// TaskActionDelete marks a task:update that announces a deletion.
const TaskActionDelete = "delete"

// TaskUpdate announces a task change. It is advisory: receivers reload the
// task from the store instead of trusting the embedded copy.
type TaskUpdate struct {
	ProjectID string     `json:"projectId"`
	TaskID    string     `json:"taskId"`
	Action    string     `json:"action,omitempty"`
	OldStatus TaskStatus `json:"oldStatus,omitempty"`
	NewStatus TaskStatus `json:"newStatus,omitempty"`
	Status    TaskStatus `json:"status,omitempty"`
	Task      *Task      `json:"task,omitempty"`
	UpdatedBy string     `json:"updatedBy"`
}

// Message is a chat line. Its payload is authoritative.
type Message struct {
	ID         string    `json:"id"`
	ProjectID  string    `json:"projectId"`
	SenderID   string    `json:"senderId"`
	SenderName string    `json:"senderName"`
	Text       string    `json:"text"`
	SentAt     time.Time `json:"sentAt"`
}

// Typing flags a member as typing in a project room.
type Typing struct {
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	ProjectID string `json:"projectId"`
	IsTyping  bool   `json:"isTyping"`
}

// Presence values carried by status:change.
const (
	PresenceOnline  = "online"
	PresenceAway    = "away"
	PresenceOffline = "offline"
)

// StatusChange is a presence signal.
type StatusChange struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

// ProjectUpdate is a generic project broadcast; Update["type"] names the kind.
type ProjectUpdate struct {
	ProjectID string         `json:"projectId"`
	Update    map[string]any `json:"update"`
}

// Type returns the update kind, or "" when absent.
func (p ProjectUpdate) Type() string {
	t, _ := p.Update["type"].(string)
	return t
}
