package client

import (
	"time"

	"github.com/okian/skillsync/pkg/logger"
)

const (
	defaultReconnectAttempts = 5
	defaultReconnectDelay    = time.Second
	defaultTypingTimeout     = 2 * time.Second
	defaultSeenSize          = 4096
)

// Option applies a configuration option to the Client.
type Option func(*Client)

// WithClock sets the time source used for timers and back-off.
func WithClock(c Clock) Option {
	return func(cl *Client) {
		if c != nil {
			cl.clock = c
		}
	}
}

// WithReconnect sets how many reconnect attempts are made and the first
// delay; each later delay doubles.
func WithReconnect(attempts int, initialDelay time.Duration) Option {
	return func(cl *Client) {
		if attempts >= 0 {
			cl.reconnectAttempts = attempts
		}
		if initialDelay > 0 {
			cl.reconnectDelay = initialDelay
		}
	}
}

// WithTypingTimeout sets how long a typing flag lasts without renewal.
func WithTypingTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.typingTimeout = d
		}
	}
}

// WithDisplayName sets the name sent with typing signals and messages.
func WithDisplayName(name string) Option {
	return func(cl *Client) {
		cl.displayName = name
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(l logger.Logger) Option {
	return func(cl *Client) {
		if l != nil {
			cl.logger = l
		}
	}
}
