// Package mockserver is an in-memory chat backend speaking the same REST
// and WebSocket protocol as the production service. It backs the
// mock-server command and the end-to-end tests.
package mockserver

import (
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/inercia/chatline/internal/logging"
)

const (
	defaultLimit = 10
	// MaxActiveSessions caps how many sessions one connection may join.
	MaxActiveSessions = 5
	// DefaultReplyDelay is how long the assistant "thinks" before replying.
	DefaultReplyDelay = 200 * time.Millisecond
)

// Reply is an assistant answer. A non-empty FileName attaches FileData.
type Reply struct {
	Text     string
	FileName string
	FileData []byte
}

// Responder produces the assistant reply for a user prompt.
type Responder func(prompt string) Reply

// EchoResponder answers every prompt by echoing it. Prompts starting
// with "/file " get a text file attachment named after the rest.
func EchoResponder(prompt string) Reply {
	if name, ok := strings.CutPrefix(prompt, "/file "); ok {
		name = strings.TrimSpace(name)
		return Reply{
			Text:     "Here is your file.",
			FileName: name,
			FileData: []byte("generated content for " + name + "\n"),
		}
	}
	return Reply{Text: "You said: " + prompt}
}

// Options configures a Server.
type Options struct {
	// Secret enables HS256 token checks when non-empty.
	Secret string
	// ReplyDelay defaults to DefaultReplyDelay. Negative means no delay.
	ReplyDelay time.Duration
	// Responder defaults to EchoResponder.
	Responder Responder
	Logger    *slog.Logger
	Now       func() time.Time
}

// Server is the mock backend. Use Handler to mount it.
type Server struct {
	store      *store
	auth       *Authenticator
	upgrader   websocket.Upgrader
	replyDelay time.Duration
	respond    Responder
	logger     *slog.Logger

	mu      sync.Mutex
	closed  bool
	conns   map[*wsConn]struct{}
	pending sync.WaitGroup
}

// New creates a server.
func New(opts Options) *Server {
	if opts.ReplyDelay == 0 {
		opts.ReplyDelay = DefaultReplyDelay
	}
	if opts.ReplyDelay < 0 {
		opts.ReplyDelay = 0
	}
	if opts.Responder == nil {
		opts.Responder = EchoResponder
	}
	if opts.Logger == nil {
		opts.Logger = logging.Mock()
	}
	return &Server{
		store: newStore(opts.Now),
		auth:  NewAuthenticator(opts.Secret),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		replyDelay: opts.ReplyDelay,
		respond:    opts.Responder,
		logger:     opts.Logger,
		conns:      make(map[*wsConn]struct{}),
	}
}

// Authenticator returns the server's token authority.
func (s *Server) Authenticator() *Authenticator {
	return s.auth
}

// SeedSession creates a session for user with the given messages, oldest
// first, alternating user and assistant. It returns the session id.
func (s *Server) SeedSession(user, name string, texts ...string) int64 {
	sess := s.store.createSession(user, name)
	for i, text := range texts {
		dir := directionUser
		if i%2 == 1 {
			dir = directionAssistant
		}
		_, _ = s.store.addMessage(sess.ID, text, dir, "", nil)
	}
	return sess.ID
}

// Handler returns the HTTP handler serving the REST API and the socket.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)
	r.Use(s.auth.Middleware)

	r.Get("/ws/chat/", s.serveSocket)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Get("/", s.listSessions)
		r.Post("/", s.createSession)
		r.Get("/messages/{messageID}/download", s.downloadFile)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Get("/", s.getSession)
			r.Put("/", s.renameSession)
			r.Get("/messages", s.listMessages)
		})
	})
	return r
}

// Close disconnects every socket and waits for scheduled replies.
func (s *Server) Close() {
	s.mu.Lock()
	s.closed = true
	conns := make([]*wsConn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	s.pending.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("Request served",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type pagerJSON struct {
	Page      int `json:"page"`
	Limit     int `json:"limit"`
	PageCount int `json:"page_count"`
	ItemCount int `json:"item_count"`
}

type listJSON[T any] struct {
	Pager pagerJSON `json:"pager"`
	Items []T       `json:"items"`
}

type sessionJSON struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	IsActive  int    `json:"is_active"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type messageJSON struct {
	ID        int64   `json:"id"`
	Message   string  `json:"message"`
	Direction int     `json:"direction"`
	HasFile   bool    `json:"has_file"`
	FileName  *string `json:"file_name"`
	CreatedAt string  `json:"created_at"`
}

func toSessionJSON(sess session) sessionJSON {
	return sessionJSON{
		ID:        sess.ID,
		Name:      sess.Name,
		IsActive:  1,
		CreatedAt: sess.CreatedAt.Format(time.RFC3339Nano),
		UpdatedAt: sess.UpdatedAt.Format(time.RFC3339Nano),
	}
}

func toMessageJSON(m message) messageJSON {
	out := messageJSON{
		ID:        m.ID,
		Message:   m.Text,
		Direction: m.Direction,
		HasFile:   m.hasFile(),
		CreatedAt: m.CreatedAt.Format(time.RFC3339Nano),
	}
	if m.hasFile() {
		name := m.FileName
		out.FileName = &name
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	return page, limit
}

func (s *Server) sessionParam(w http.ResponseWriter, r *http.Request) (session, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "sessionID"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid session id")
		return session{}, false
	}
	sess, ok := s.store.session(userFrom(r.Context()), id)
	if !ok {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return session{}, false
	}
	return sess, true
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	page, limit := pageParams(r)
	items, pages, total := s.store.listSessions(userFrom(r.Context()), page, limit)
	out := listJSON[sessionJSON]{
		Pager: pagerJSON{Page: page, Limit: limit, PageCount: pages, ItemCount: total},
		Items: make([]sessionJSON, 0, len(items)),
	}
	for _, sess := range items {
		out.Items = append(out.Items, toSessionJSON(sess))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	sess := s.store.createSession(userFrom(r.Context()), "")
	s.logger.Info("Session created", "session_id", sess.ID, "user", sess.Owner)
	writeJSON(w, http.StatusCreated, toSessionJSON(sess))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	if sess, ok := s.sessionParam(w, r); ok {
		writeJSON(w, http.StatusOK, toSessionJSON(sess))
	}
}

func (s *Server) renameSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		writeDetail(w, http.StatusBadRequest, "name is required")
		return
	}
	sess, err := s.store.renameSession(sess.Owner, sess.ID, strings.TrimSpace(body.Name))
	if err != nil {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	writeJSON(w, http.StatusOK, toSessionJSON(sess))
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionParam(w, r)
	if !ok {
		return
	}
	page, limit := pageParams(r)
	items, pages, total := s.store.listMessages(sess.ID, page, limit)
	out := listJSON[messageJSON]{
		Pager: pagerJSON{Page: page, Limit: limit, PageCount: pages, ItemCount: total},
		Items: make([]messageJSON, 0, len(items)),
	}
	for _, m := range items {
		out.Items = append(out.Items, toMessageJSON(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) downloadFile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid message id")
		return
	}
	m, ok := s.store.message(userFrom(r.Context()), id)
	if !ok || !m.hasFile() {
		writeDetail(w, http.StatusNotFound, "Not found.")
		return
	}
	ctype := mime.TypeByExtension(fileExt(m.FileName))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": m.FileName}))
	w.Header().Set("Content-Length", strconv.Itoa(len(m.FileData)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(m.FileData)
}

func fileExt(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i:]
	}
	return ""
}

// pythonTime formats t the way the backend's str(datetime) does.
func pythonTime(t time.Time) string {
	return fmt.Sprintf("%s+00:00", t.UTC().Format("2006-01-02 15:04:05.000000"))
}
