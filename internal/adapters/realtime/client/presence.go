package client

import (
	"sync"

	"github.com/okian/skillsync/internal/domain/model"
)

// PresenceWatcher follows the presence of a single user.
type PresenceWatcher struct {
	mu      sync.Mutex
	subject string
	status  string
	changed func(status string)
}

// NewPresenceWatcher watches subjectID, which starts offline. changed may
// be nil.
func NewPresenceWatcher(subjectID string, changed func(status string)) *PresenceWatcher {
	return &PresenceWatcher{subject: subjectID, status: model.PresenceOffline, changed: changed}
}

// Attach applies presence events received by c.
func (w *PresenceWatcher) Attach(c *Client) *Subscription {
	return c.OnStatusChange(w.Apply)
}

// Apply records a status change for the watched user.
func (w *PresenceWatcher) Apply(s model.StatusChange) {
	if s.UserID != w.subject {
		return
	}
	w.mu.Lock()
	same := w.status == s.Status
	w.status = s.Status
	w.mu.Unlock()
	if !same && w.changed != nil {
		w.changed(s.Status)
	}
}

// Status returns the last known status.
func (w *PresenceWatcher) Status() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Online reports whether the watched user is online.
func (w *PresenceWatcher) Online() bool {
	return w.Status() == model.PresenceOnline
}
