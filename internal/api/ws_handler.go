package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/snarg/zmeta/internal/hub"
)

// Connector is the subset of hub.Hub the WebSocket handler depends on.
type Connector interface {
	Connect(socket hub.Socket) string
	Disconnect(id string)
}

// WSHandler serves GET /ws: upgrade, optional shared-secret
// check, greeting frame, then hand the connection to the hub and echo any
// inbound text for diagnostics.
type WSHandler struct {
	hub        Connector
	greeting   string
	authHeader string
	secret     string
	log        zerolog.Logger
	upgrader   websocket.Upgrader
}

func NewWSHandler(h Connector, greeting, authHeader, secret string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:        h,
		greeting:   greeting,
		authHeader: authHeader,
		secret:     secret,
		log:        log.With().Str("component", "ws_handler").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// unauthorizedCloseCode is the WS close code used for a failed
// shared-secret check on the /ws upgrade path.
const unauthorizedCloseCode = 4401

// syncConn serializes writes to a *websocket.Conn. The hub's per-subscriber
// sender goroutine and this handler's echo loop both write to the same
// connection; gorilla/websocket permits only one concurrent writer, so
// every write (greeting, echo, hub broadcast) goes through this mutex.
type syncConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *syncConn) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *syncConn) writeClose(code int, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, reason)
	return s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
}

func (s *syncConn) Close() error {
	return s.conn.Close()
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws upgrade failed")
		return
	}
	conn := &syncConn{conn: raw}

	if h.secret != "" {
		provided := extractSharedSecret(r, h.authHeader)
		if provided != h.secret {
			_ = conn.writeClose(unauthorizedCloseCode, "invalid or missing shared secret")
			_ = conn.Close()
			return
		}
	}

	id := h.hub.Connect(conn)

	if h.greeting != "" {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(h.greeting)); err != nil {
			h.hub.Disconnect(id)
			return
		}
	}

	// Echo inbound text frames for diagnostics; any read error (including
	// the client closing) tears the subscriber down through the hub, which
	// is idempotent with the sender goroutine's own disconnect path.
	for {
		msgType, msg, err := raw.ReadMessage()
		if err != nil {
			h.hub.Disconnect(id)
			return
		}
		if msgType == websocket.TextMessage {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.hub.Disconnect(id)
				return
			}
		}
	}
}
