// Package simulate drives a running SkillSync server with several sync
// clients and checks that room events fan out exactly once.
package simulate

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL  string        // HTTP base URL of the server
	Clients  int           // number of simulated users, at least 2
	Project  string        // project room every client joins
	Messages int           // chat messages sent by each client
	Timeout  time.Duration // per-phase deadline and HTTP timeout
	// JWTSecret signs tokens for the simulated users. Empty means the
	// server runs without a secret and trusts user ids.
	JWTSecret string
	Verbose   bool
}

// Defaults used by the simulate command.
const (
	DefaultClients  = 5
	DefaultMessages = 3
	DefaultTimeout  = 10 * time.Second
)

func (c *Config) setDefaults() {
	if c.Clients == 0 {
		c.Clients = DefaultClients
	}
	if c.Messages == 0 {
		c.Messages = DefaultMessages
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Project == "" {
		c.Project = fmt.Sprintf("sim-%d", time.Now().UnixNano())
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
}

func (c *Config) validate() error {
	if c.Clients < 2 {
		return fmt.Errorf("simulate: need at least 2 clients, got %d", c.Clients)
	}
	if c.Messages < 0 {
		return fmt.Errorf("simulate: negative message count")
	}
	if _, err := url.Parse(c.BaseURL); err != nil || c.BaseURL == "" {
		return fmt.Errorf("simulate: invalid base url %q", c.BaseURL)
	}
	return nil
}

// wsURL maps the HTTP base URL to the websocket endpoint.
func (c *Config) wsURL() string {
	u := c.BaseURL
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + "/ws"
}

// Stats holds the outcome of a run.
type Stats struct {
	Clients          int
	MessagesSent     int
	MessagesReceived int
	TaskUpdates      int
	Moves            int
	StartTime        time.Time
	Duration         time.Duration
}
