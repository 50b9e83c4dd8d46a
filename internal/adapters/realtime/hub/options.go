package hub

import (
	"time"

	"github.com/okian/skillsync/internal/auth"
	"github.com/okian/skillsync/pkg/logger"
)

// Option applies a configuration option to the Hub.
type Option func(*Hub)

// WithSendBuffer sets how many frames may queue per connection before it is
// dropped as a slow consumer.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithAllowedOrigins restricts websocket upgrades to the given origins. An
// empty list allows every origin.
func WithAllowedOrigins(origins []string) Option {
	return func(h *Hub) {
		h.allowedOrigins = append([]string(nil), origins...)
	}
}

// WithAuthenticator sets how socket identities are resolved.
func WithAuthenticator(a *auth.Authenticator) Option {
	return func(h *Hub) {
		if a != nil {
			h.auth = a
		}
	}
}

// WithClock overrides the time source for frame timestamps.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// WithLogger sets a custom logger for the hub.
func WithLogger(l logger.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}
