package client

import (
	"sync"

	"github.com/okian/skillsync/internal/domain/model"
)

// mailbox hands inbound events from a session reader to its dispatcher.
// It is unbounded so a handler that waits on an ack never stalls the reader
// that has to deliver it.
type mailbox struct {
	mu     sync.Mutex
	items  []model.Envelope
	closed bool
	wake   chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) put(env model.Envelope) {
	m.mu.Lock()
	if !m.closed {
		m.items = append(m.items, env)
	}
	m.mu.Unlock()
	m.signal()
}

// close lets run return once the queued events are handled.
func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *mailbox) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// run calls fn for each event in arrival order until the mailbox is closed
// and empty.
func (m *mailbox) run(fn func(model.Envelope)) {
	for {
		m.mu.Lock()
		if len(m.items) == 0 {
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return
			}
			<-m.wake
			continue
		}
		env := m.items[0]
		m.items[0] = model.Envelope{}
		m.items = m.items[1:]
		m.mu.Unlock()

		fn(env)
	}
}
