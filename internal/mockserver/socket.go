package mockserver

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

const (
	directionUser      = 1
	directionAssistant = 2

	writeWait = 5 * time.Second
)

// actionJSON is an inbound client action. session_id may be a number or
// a numeric string.
type actionJSON struct {
	Action    *string         `json:"action"`
	SessionID json.RawMessage `json:"session_id"`
	Message   string          `json:"message"`
	Role      int             `json:"role"`
}

type wsConn struct {
	srv  *Server
	conn *websocket.Conn
	user string

	writeMu sync.Mutex

	mu     sync.Mutex
	closed bool
	joined map[int64]struct{}
}

func (s *Server) serveSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	c := &wsConn{srv: s, conn: conn, user: userFrom(r.Context()), joined: make(map[int64]struct{})}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return
	}
	s.conns[c] = struct{}{}
	s.mu.Unlock()

	s.logger.Info("Socket connected", "user", c.user)
	c.readLoop()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	s.logger.Info("Socket disconnected", "user", c.user)
}

func (c *wsConn) readLoop() {
	defer c.close()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.handle(data)
	}
}

func (c *wsConn) handle(data []byte) {
	var a actionJSON
	if err := json.Unmarshal(data, &a); err != nil {
		c.sendError("Invalid JSON")
		return
	}
	if a.Action == nil {
		c.sendError("Missing action")
		return
	}
	switch *a.Action {
	case "join":
		c.join(a)
	case "leave":
		c.leave(a)
	case "send_message":
		c.sendMessage(a)
	default:
		c.sendError(fmt.Sprintf("Unknown action '%s'", *a.Action))
	}
}

// parseSessionID mirrors int(session_id) on the backend: numbers and
// numeric strings are accepted.
func parseSessionID(raw json.RawMessage) (int64, bool, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false, nil
	}
	var s string
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, true, err
		}
	} else {
		s = string(raw)
	}
	if s == "" {
		return 0, false, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	return id, true, err
}

func (c *wsConn) sessionFor(a actionJSON) (int64, bool) {
	id, present, err := parseSessionID(a.SessionID)
	if !present {
		c.sendError("Missing session_id")
		return 0, false
	}
	if err != nil {
		c.sendError("Invalid session ID")
		return 0, false
	}
	if _, ok := c.srv.store.session(c.user, id); !ok {
		c.sendError("Invalid session ID")
		return 0, false
	}
	return id, true
}

func (c *wsConn) join(a actionJSON) {
	id, ok := c.sessionFor(a)
	if !ok {
		return
	}
	c.mu.Lock()
	_, already := c.joined[id]
	full := len(c.joined) >= MaxActiveSessions
	if !already && !full {
		c.joined[id] = struct{}{}
	}
	c.mu.Unlock()

	switch {
	case already:
		c.sendErrorFor(id, fmt.Sprintf("Session %d is already active", id))
	case full:
		c.sendErrorFor(id, fmt.Sprintf("Max %d active sessions per user reached", MaxActiveSessions))
	default:
		c.srv.logger.Debug("Session joined", "session_id", id, "user", c.user)
		c.write(map[string]any{"status": "joined", "session_id": id})
	}
}

func (c *wsConn) leave(a actionJSON) {
	id, present, err := parseSessionID(a.SessionID)
	if !present {
		c.sendError("Missing session_id")
		return
	}
	if err != nil {
		c.sendError("Invalid session ID")
		return
	}
	c.mu.Lock()
	delete(c.joined, id)
	c.mu.Unlock()
	c.write(map[string]any{"status": "left", "session_id": id})
}

func (c *wsConn) isJoined(id int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.joined[id]
	return ok && !c.closed
}

func (c *wsConn) sendMessage(a actionJSON) {
	id, present, err := parseSessionID(a.SessionID)
	if !present || a.Message == "" {
		c.sendError("Both session_id and message are required")
		return
	}
	if err != nil {
		c.sendError("Invalid session ID")
		return
	}
	if !c.isJoined(id) {
		c.sendErrorFor(id, fmt.Sprintf("You must join session %d before sending messages", id))
		return
	}
	if _, err := c.srv.store.addMessage(id, a.Message, directionUser, "", nil); err != nil {
		c.sendErrorFor(id, "Invalid session ID")
		return
	}
	c.write(map[string]any{"status": "pending", "session_id": id})

	prompt := a.Message
	c.srv.mu.Lock()
	if c.srv.closed {
		c.srv.mu.Unlock()
		return
	}
	c.srv.pending.Add(1)
	c.srv.mu.Unlock()
	time.AfterFunc(c.srv.replyDelay, func() {
		defer c.srv.pending.Done()
		c.reply(id, prompt)
	})
}

func (c *wsConn) reply(id int64, prompt string) {
	r := c.srv.respond(prompt)
	m, err := c.srv.store.addMessage(id, r.Text, directionAssistant, r.FileName, r.FileData)
	if err != nil {
		return
	}
	if !c.isJoined(id) {
		return
	}
	frame := map[string]any{
		"status":     "success",
		"id":         m.ID,
		"session_id": id,
		"direction":  directionAssistant,
		"message":    m.Text,
		"created_at": pythonTime(m.CreatedAt),
		"has_file":   m.hasFile(),
	}
	if m.hasFile() {
		frame["file_name"] = m.FileName
	}
	c.write(frame)
}

func (c *wsConn) sendError(msg string) {
	c.write(map[string]any{"error": msg})
}

func (c *wsConn) sendErrorFor(id int64, msg string) {
	c.write(map[string]any{"error": msg, "session_id": id})
}

func (c *wsConn) write(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		c.srv.logger.Debug("Socket write failed", "error", err)
	}
}

func (c *wsConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(writeWait))
	c.writeMu.Unlock()
	_ = c.conn.Close()
}
