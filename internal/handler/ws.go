package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"ridehail/internal/feed"
	"ridehail/internal/geo"
	"ridehail/internal/service"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn is one connected client with write serialization.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsConn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(v)
}

// wsMessage is the envelope pushed to websocket clients.
type wsMessage struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WSHub keeps websocket connections keyed by client and session, fans
// out change-feed events, and delivers notifications for a session's
// watchers. It implements service.Deliverer.
type WSHub struct {
	mu      sync.RWMutex
	clients map[string]*wsConn
	// sessions maps a session id to the client ids watching it.
	sessions map[string]map[string]struct{}
	log      *slog.Logger
}

// NewWSHub creates a new WSHub.
func NewWSHub(log *slog.Logger) *WSHub {
	if log == nil {
		log = slog.Default()
	}
	return &WSHub{
		clients:  make(map[string]*wsConn),
		sessions: make(map[string]map[string]struct{}),
		log:      log,
	}
}

// Handle upgrades GET /ws?client_id=...&session_id=... to a websocket.
// session_id is optional; without it the client receives only global
// location updates.
func (h *WSHub) Handle(c *gin.Context) {
	clientID := c.Query("client_id")
	if clientID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "client_id is required"})
		return
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	h.add(clientID, c.Query("session_id"), conn)

	// Reader loop only detects close; clients do not send payloads.
	go func() {
		defer h.remove(clientID)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *WSHub) add(clientID, sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.clients[clientID]; ok {
		old.conn.Close()
	}
	h.clients[clientID] = &wsConn{conn: conn}
	if sessionID != "" {
		if h.sessions[sessionID] == nil {
			h.sessions[sessionID] = make(map[string]struct{})
		}
		h.sessions[sessionID][clientID] = struct{}{}
	}
}

func (h *WSHub) remove(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[clientID]; ok {
		c.conn.Close()
		delete(h.clients, clientID)
	}
	for sid, watchers := range h.sessions {
		delete(watchers, clientID)
		if len(watchers) == 0 {
			delete(h.sessions, sid)
		}
	}
}

// Deliver pushes a notification to every client watching its session.
func (h *WSHub) Deliver(n service.Notification) {
	h.toSession(n.SessionID, wsMessage{Type: "notification", Payload: n})
}

// Consume subscribes to the change feed and fans events out until ctx is
// cancelled. Session events go to that session's watchers; location
// events go to every connected client.
func (h *WSHub) Consume(ctx context.Context, bus feed.Bus) {
	events, cancel := bus.Subscribe(ctx)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.dispatch(ev)
		}
	}
}

func (h *WSHub) dispatch(ev feed.Event) {
	switch ev.Table {
	case feed.TableMatches:
		if ev.Session == nil {
			return
		}
		h.toSession(ev.Session.SessionID, wsMessage{Type: "session_update", Payload: sessionEventPayload(ev)})
	case feed.TableDriverLocations:
		if ev.Location == nil {
			return
		}
		h.broadcast(wsMessage{Type: "driver_location", Payload: ev.Location})
	}
}

func sessionEventPayload(ev feed.Event) gin.H {
	rec := ev.Session
	payload := gin.H{
		"session_id":     rec.SessionID,
		"status":         rec.Status,
		"phase":          rec.Phase,
		"driver_id":      rec.DriverID,
		"driver_arrived": rec.DriverArrived,
		"dest_arrived":   rec.DestArrived,
	}
	if rec.RoutePolyline != "" {
		if path, err := geo.DecodePolyline(rec.RoutePolyline); err == nil {
			payload["route"] = path
		}
	}
	return payload
}

func (h *WSHub) toSession(sessionID string, msg wsMessage) {
	h.mu.RLock()
	watchers := make([]*wsConn, 0, len(h.sessions[sessionID]))
	for clientID := range h.sessions[sessionID] {
		if c, ok := h.clients[clientID]; ok {
			watchers = append(watchers, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range watchers {
		if err := c.Send(msg); err != nil {
			h.log.Debug("ws send failed", "error", err)
		}
	}
}

func (h *WSHub) broadcast(msg wsMessage) {
	h.mu.RLock()
	conns := make([]*wsConn, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	for _, c := range conns {
		if err := c.Send(msg); err != nil {
			h.log.Debug("ws send failed", "error", err)
		}
	}
}
