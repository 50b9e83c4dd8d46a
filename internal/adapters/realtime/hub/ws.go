package hub

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

func (h *Hub) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if len(h.allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range h.allowedOrigins {
				if origin == allowed {
					return true
				}
			}
			return false
		},
	}
}

// ServeHTTP upgrades the request to a websocket and serves frames until the
// peer goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, err := h.auth.FromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}

	up := h.upgrader()
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}

	c := h.Register(id)
	log := h.logger.With(logger.String("conn_id", c.id), logger.String("user_id", id.UserID))
	log.Info(ctx, "websocket connected")

	go h.writePump(ws, c, log)
	h.readPump(ws, c, log)

	h.Unregister(c)
	log.Info(ctx, "websocket closed")
}

func (h *Hub) readPump(ws *websocket.Conn, c *Conn, log logger.Logger) {
	ctx := context.Background()
	defer ws.Close()

	ws.SetReadLimit(maxMessageSize)
	if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		log.Warn(ctx, "failed to set initial read deadline", logger.Error(err))
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn(ctx, "websocket read error", logger.Error(err))
			}
			return
		}
		if err := ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		h.handleFrame(c, data)
	}
}

// handleFrame applies one client frame and answers with an ack or an error.
func (h *Hub) handleFrame(c *Conn, data []byte) {
	var env model.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		h.replyError(c, model.Envelope{}, ErrBadFrame)
		return
	}
	metrics.RecordHubFrame(string(env.Op))

	var err error
	switch env.Op {
	case model.OpJoin:
		err = h.Join(c, env.ProjectID)
	case model.OpLeave:
		h.Leave(c, env.ProjectID)
	case model.OpEmit:
		err = h.Emit(c, env)
		if err == nil && !env.Event.RequiresAck() {
			return
		}
	default:
		err = ErrUnknownOp
	}
	if err != nil {
		h.replyError(c, env, err)
		return
	}
	h.Reply(c, model.Envelope{ID: env.ID, Op: model.OpAck, Event: env.Event, ProjectID: env.ProjectID, TS: h.now()})
}

func (h *Hub) replyError(c *Conn, in model.Envelope, err error) {
	code := err.Error()
	for _, kind := range []error{ErrNotMember, ErrUnknownEvent, ErrUnknownOp, ErrBadFrame} {
		if errors.Is(err, kind) {
			code = kind.Error()
			break
		}
	}
	h.Reply(c, model.Envelope{ID: in.ID, Op: model.OpError, Event: in.Event, ProjectID: in.ProjectID, Error: code, TS: h.now()})
}

func (h *Hub) writePump(ws *websocket.Conn, c *Conn, log logger.Logger) {
	ctx := context.Background()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Debug(ctx, "websocket write failed", logger.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Debug(ctx, "ping failed", logger.Error(err))
				c.close()
				return
			}
		case <-c.done:
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		}
	}
}
