package client

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/skillsync/internal/domain/model"
)

// Transport opens sessions to the hub.
type Transport interface {
	Dial(ctx context.Context, userID string) (Session, error)
}

// Session is one open connection. Recv blocks until a frame arrives or the
// session ends; Send may be called from several goroutines.
type Session interface {
	Send(ctx context.Context, env model.Envelope) error
	Recv() (model.Envelope, error)
	Close() error
}

// WebsocketTransport dials the hub's websocket endpoint.
type WebsocketTransport struct {
	// URL is the endpoint, e.g. ws://localhost:9080/ws.
	URL string
	// Token returns a bearer token for userID. When nil the user id is sent
	// as a query parameter, which the hub accepts only without a jwt secret.
	Token func(userID string) (string, error)
	// Name is sent as the display name when no token is used; a token
	// carries its own name.
	Name   string
	Dialer *websocket.Dialer
}

// Dial implements Transport.
func (t *WebsocketTransport) Dial(ctx context.Context, userID string) (Session, error) {
	u, err := url.Parse(t.URL)
	if err != nil {
		return nil, fmt.Errorf("parse hub url: %w", err)
	}
	q := u.Query()
	if t.Token != nil {
		token, err := t.Token(userID)
		if err != nil {
			return nil, fmt.Errorf("token for %s: %w", userID, err)
		}
		q.Set("token", token)
	} else {
		q.Set("user_id", userID)
		if t.Name != "" {
			q.Set("name", t.Name)
		}
	}
	u.RawQuery = q.Encode()

	dialer := t.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial hub: %w", err)
	}
	return &wsSession{ws: ws}, nil
}

type wsSession struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (s *wsSession) Send(ctx context.Context, env model.Envelope) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if deadline, ok := ctx.Deadline(); ok {
		if err := s.ws.SetWriteDeadline(deadline); err != nil {
			return err
		}
		defer s.ws.SetWriteDeadline(time.Time{})
	}
	return s.ws.WriteJSON(env)
}

func (s *wsSession) Recv() (model.Envelope, error) {
	var env model.Envelope
	err := s.ws.ReadJSON(&env)
	return env, err
}

func (s *wsSession) Close() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_ = s.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return s.ws.Close()
}
