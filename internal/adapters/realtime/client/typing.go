package client

import (
	"sort"
	"sync"

	"golang.org/x/text/unicode/norm"

	"github.com/okian/skillsync/internal/domain/model"
)

// TypingIndicator tracks who is typing in one project, excluding the local
// user.
type TypingIndicator struct {
	mu        sync.Mutex
	projectID string
	self      string
	names     map[string]string // userID -> display name
}

// NewTypingIndicator creates an indicator for projectID that ignores
// signals from selfID.
func NewTypingIndicator(projectID, selfID string) *TypingIndicator {
	return &TypingIndicator{projectID: projectID, self: selfID, names: make(map[string]string)}
}

// Attach applies typing and presence events received by c. A user going
// offline stops typing.
func (t *TypingIndicator) Attach(c *Client) []*Subscription {
	return []*Subscription{
		c.OnTyping(t.Apply),
		c.OnStatusChange(func(s model.StatusChange) {
			if s.Status == model.PresenceOffline {
				t.mu.Lock()
				delete(t.names, s.UserID)
				t.mu.Unlock()
			}
		}),
	}
}

// Apply records one typing signal.
func (t *TypingIndicator) Apply(ev model.Typing) {
	if ev.ProjectID != t.projectID || ev.UserID == "" || ev.UserID == t.self {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !ev.IsTyping {
		delete(t.names, ev.UserID)
		return
	}
	name := norm.NFC.String(ev.UserName)
	if name == "" {
		name = ev.UserID
	}
	t.names[ev.UserID] = name
}

// Names returns the typing display names in sorted order.
func (t *TypingIndicator) Names() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.names))
	for _, n := range t.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
