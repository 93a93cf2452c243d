package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"collabedit/internal/httputil"
	"collabedit/internal/realtime"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingEvery  = (wsPongWait * 9) / 10
	wsSendBuffer = 64
)

// wsEnvelope is the client message shape: {"event": "...", "data": {...}}
type wsEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// wsConn adapts a WebSocket to realtime.Conn. Messages are queued for a
// single writer goroutine; a full queue drops the message.
type wsConn struct {
	id     string
	userID string
	out    chan realtime.Outbound
	done   chan struct{}
	once   sync.Once
}

func newWSConn(userID string) *wsConn {
	return &wsConn{
		id:     uuid.NewString(),
		userID: userID,
		out:    make(chan realtime.Outbound, wsSendBuffer),
		done:   make(chan struct{}),
	}
}

func (c *wsConn) ID() string     { return c.id }
func (c *wsConn) UserID() string { return c.userID }

func (c *wsConn) Send(msg realtime.Outbound) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.out <- msg:
		return true
	default:
		return false
	}
}

func (c *wsConn) close() {
	c.once.Do(func() { close(c.done) })
}

// WSHandler upgrades authenticated requests and pumps messages between the
// socket and the realtime hub
type WSHandler struct {
	hub             *realtime.Hub
	upgrader        websocket.Upgrader
	maxMessageBytes int64
	logger          *slog.Logger
}

// NewWSHandler creates a WebSocket handler. allowedOrigins of "*" accepts any
// origin; requests without an Origin header are always accepted.
func NewWSHandler(hub *realtime.Hub, allowedOrigins []string, maxContentBytes int, logger *slog.Logger) *WSHandler {
	allowAll := slices.Contains(allowedOrigins, "*")
	return &WSHandler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowAll || slices.Contains(allowedOrigins, origin)
			},
		},
		// JSON escaping can double the content in the worst case
		maxMessageBytes: int64(maxContentBytes)*2 + 1024,
		logger:          logger,
	}
}

// ServeWS handles the editor socket
// GET /ws
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := httputil.GetUserID(r)
	if userID == "" {
		httputil.RespondError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	conn := newWSConn(userID)
	h.hub.Register(conn)
	defer h.hub.Disconnect(conn)
	defer conn.close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger := h.logger.With("conn_id", conn.ID(), "user_id", userID)
	logger.Info("websocket connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writePump(ctx, ws, conn)
		// a dead writer means the peer is gone; unblock the reader
		ws.Close()
	}()

	h.readPump(ctx, ws, conn, logger)
	cancel()
	<-writerDone

	logger.Info("websocket disconnected")
}

func (h *WSHandler) readPump(ctx context.Context, ws *websocket.Conn, conn *wsConn, logger *slog.Logger) {
	ws.SetReadLimit(h.maxMessageBytes)
	if err := ws.SetReadDeadline(time.Now().Add(wsPongWait)); err != nil {
		return
	}
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var env wsEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			conn.Send(realtime.Outbound{
				Event: realtime.EventFileError,
				Data:  realtime.FileErrorPayload{Message: "malformed message"},
			})
			continue
		}

		err = h.hub.Submit(ctx, realtime.Inbound{Conn: conn, Event: env.Event, Data: env.Data})
		if errors.Is(err, realtime.ErrHubStopped) || errors.Is(err, context.Canceled) {
			return
		}
	}
}

func (h *WSHandler) writePump(ctx context.Context, ws *websocket.Conn, conn *wsConn) {
	ticker := time.NewTicker(wsPingEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case msg := <-conn.out:
			if err := ws.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := ws.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.SetWriteDeadline(time.Now().Add(wsWriteWait)); err != nil {
				return
			}
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
