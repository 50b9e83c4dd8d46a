package client

import (
	"sync"

	"github.com/okian/skillsync/internal/domain/model"
)

const defaultFeedLimit = 50

// ActivityFeed keeps the most recent messages of a project, newest first.
type ActivityFeed struct {
	mu        sync.Mutex
	projectID string
	limit     int
	items     []model.Message
}

// NewActivityFeed creates a feed for projectID holding at most limit
// messages. Non-positive limits use 50.
func NewActivityFeed(projectID string, limit int) *ActivityFeed {
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	return &ActivityFeed{projectID: projectID, limit: limit}
}

// Attach feeds messages received by c into f.
func (f *ActivityFeed) Attach(c *Client) *Subscription {
	return c.OnMessage(f.Add)
}

// Add prepends m, evicting the oldest entry when full. Messages for other
// projects are ignored.
func (f *ActivityFeed) Add(m model.Message) {
	if m.ProjectID != f.projectID {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.items = append([]model.Message{m}, f.items...)
	if len(f.items) > f.limit {
		f.items = f.items[:f.limit]
	}
}

// Items returns a copy of the feed, newest first.
func (f *ActivityFeed) Items() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.items...)
}
