package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haasonsaas/charlotte/internal/errdefs"
	"github.com/haasonsaas/charlotte/internal/observability"
	"github.com/haasonsaas/charlotte/pkg/models"
)

const (
	wsMaxPayloadBytes = 1 << 20
	wsPingInterval    = 15 * time.Second
	wsPongWait        = 45 * time.Second
	wsWriteWait       = 10 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  8192,
	WriteBufferSize: 8192,
	CheckOrigin: func(*http.Request) bool {
		return true
	},
}

// chatSocket runs chat turns over a WebSocket. Each inbound text frame is
// one turn: either plain text or {"content": "..."}. Every produced
// message goes out as its own JSON frame; a failed turn sends an error
// frame and the connection stays open.
func (s *Server) chatSocket(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	if _, err := s.chat.GetSessionInfo(r.Context(), sessionID); err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "websocket upgrade failed", "error", err)
		return
	}
	ctx, cancel := context.WithCancel(observability.WithSessionID(r.Context(), sessionID))
	c := &wsConn{conn: conn, cancel: cancel}
	defer c.close()

	conn.SetReadLimit(wsMaxPayloadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	go c.pingLoop(ctx)

	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.DebugContext(ctx, "websocket read ended", "session_id", sessionID, "error", err)
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		out, err := s.chat.Chat(ctx, sessionID, models.NewUserMessage(frameContent(data)))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			if werr := c.writeJSON(errorBody{Error: err.Error(), Kind: errdefs.KindOf(err)}); werr != nil {
				return
			}
			if errors.Is(err, errdefs.ErrNotFound) {
				return
			}
			continue
		}
		for _, msg := range out {
			if err := c.writeJSON(msg); err != nil {
				return
			}
		}
	}
}

func frameContent(data []byte) string {
	var frame struct {
		Content *string `json:"content"`
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") && json.Unmarshal(data, &frame) == nil && frame.Content != nil {
		return *frame.Content
	}
	return string(data)
}

// wsConn serializes writes from the turn loop and the pinger.
type wsConn struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
	once   sync.Once
}

func (c *wsConn) writeJSON(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return c.conn.WriteJSON(v)
}

func (c *wsConn) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait))
			c.mu.Unlock()
			if err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *wsConn) close() {
	c.once.Do(func() {
		c.cancel()
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = c.conn.Close()
	})
}
