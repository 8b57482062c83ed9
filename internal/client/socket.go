package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/inercia/chatline/internal/chat"
	"github.com/inercia/chatline/internal/logging"
	"github.com/inercia/chatline/internal/metrics"
	"github.com/inercia/chatline/internal/token"
)

// ErrNotOpen is returned by Send when the socket is not open.
var ErrNotOpen = errors.New("socket not open")

// State is the connection state of a Socket.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SocketConfig configures a Socket.
type SocketConfig struct {
	// URL is the socket origin, e.g. "ws://localhost:8000". http and https
	// schemes are converted to ws and wss.
	URL string
	// HandshakeTimeout bounds the dial. Defaults to 10s.
	HandshakeTimeout time.Duration
	// Reconnect re-dials with exponential backoff after an unexpected close.
	Reconnect bool
	// ReconnectInitialDelay defaults to 1s.
	ReconnectInitialDelay time.Duration
	// ReconnectMaxDelay defaults to 32s.
	ReconnectMaxDelay time.Duration
	// SendRate limits outbound actions per second. Zero means unlimited.
	SendRate float64
}

// SocketCallbacks receive socket events. All callbacks are optional.
// They run on the socket's read goroutine except OnOpen for the first
// connection, which runs on the Connect caller.
type SocketCallbacks struct {
	// OnOpen is called every time a connection opens, including reconnects.
	OnOpen func()
	// OnFrame is called for each parsed inbound frame.
	OnFrame func(chat.Frame)
	// OnClose is called when a connection ends. err is nil for a normal close.
	OnClose func(err error)
}

// SocketOption configures a Socket.
type SocketOption func(*Socket)

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) SocketOption {
	return func(s *Socket) {
		s.dialer = d
	}
}

// WithSocketLogger sets the base logger.
func WithSocketLogger(l *slog.Logger) SocketOption {
	return func(s *Socket) {
		s.logger = l
	}
}

// Socket is the one WebSocket connection shared by every chat session.
// It is safe for concurrent use.
type Socket struct {
	cfg      SocketConfig
	tokens   token.Provider
	dialer   *websocket.Dialer
	limiter  *rate.Limiter
	logger   *slog.Logger
	clientID string

	mu        sync.Mutex
	state     State
	conn      *websocket.Conn
	callbacks SocketCallbacks
	runCtx    context.Context
	cancel    context.CancelFunc

	// writeMu serializes writes; gorilla allows one concurrent writer.
	writeMu sync.Mutex

	wg sync.WaitGroup
}

// NewSocket creates an idle socket. tokens supplies the access token sent
// as the token query parameter.
func NewSocket(cfg SocketConfig, tokens token.Provider, opts ...SocketOption) *Socket {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.ReconnectInitialDelay <= 0 {
		cfg.ReconnectInitialDelay = time.Second
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = 32 * time.Second
	}

	s := &Socket{
		cfg:      cfg,
		tokens:   tokens,
		logger:   logging.Socket(),
		clientID: uuid.NewString(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.dialer == nil {
		s.dialer = &websocket.Dialer{
			Proxy:            websocket.DefaultDialer.Proxy,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	if cfg.SendRate > 0 {
		burst := int(cfg.SendRate)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SendRate), burst)
	}
	s.logger = logging.WithClient(s.logger, s.clientID)
	return s
}

// ClientID returns the id tagging this socket's log lines.
func (s *Socket) ClientID() string {
	return s.clientID
}

// State returns the connection state.
func (s *Socket) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsOpen reports whether frames can be sent.
func (s *Socket) IsOpen() bool {
	return s.State() == StateOpen
}

func (s *Socket) setStateLocked(st State) {
	s.state = st
	metrics.SocketState.Set(float64(st))
}

// Connect opens the socket. It is a no-op while a connection exists or a
// dial is in progress, so callers may invoke it freely.
func (s *Socket) Connect(ctx context.Context, cb SocketCallbacks) error {
	s.mu.Lock()
	if s.state == StateConnecting || s.state == StateOpen {
		s.mu.Unlock()
		return nil
	}
	s.setStateLocked(StateConnecting)
	s.callbacks = cb
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	conn, err := s.dial(ctx)
	if err != nil {
		s.mu.Lock()
		s.setStateLocked(StateClosed)
		s.cancel()
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.state != StateConnecting {
		// Closed while dialing.
		s.mu.Unlock()
		conn.Close()
		return ErrNotOpen
	}
	s.conn = conn
	s.setStateLocked(StateOpen)
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("WebSocket connected", "url", s.cfg.URL)
	go s.readLoop(conn)
	s.safeCall("open", func() {
		if cb.OnOpen != nil {
			cb.OnOpen()
		}
	})
	return nil
}

// socketURL builds {URL}/ws/chat/?token=...
func (s *Socket) socketURL() (string, error) {
	u, err := url.Parse(s.cfg.URL)
	if err != nil {
		return "", fmt.Errorf("parse socket URL: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/chat/"

	var tok string
	if s.tokens != nil {
		tok, err = s.tokens.AccessToken()
		if err != nil && !errors.Is(err, token.ErrNoToken) {
			return "", fmt.Errorf("access token: %w", err)
		}
	}
	q := url.Values{}
	q.Set("token", tok)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := s.socketURL()
	if err != nil {
		return nil, err
	}
	conn, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket connect: %w", err)
	}
	return conn, nil
}

// Send writes an action. It returns ErrNotOpen when the socket is not open.
func (s *Socket) Send(ctx context.Context, a chat.Action) error {
	s.mu.Lock()
	conn := s.conn
	open := s.state == StateOpen
	s.mu.Unlock()

	if !open || conn == nil {
		metrics.SendFailures.WithLabelValues("not_open").Inc()
		s.logger.Warn("WebSocket not open, dropping action", "action", a.Kind, "session_id", int64(a.SessionID))
		return ErrNotOpen
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			metrics.SendFailures.WithLabelValues("rate_limited").Inc()
			return fmt.Errorf("send %s: %w", a.Kind, err)
		}
	}

	data, err := EncodeAction(a)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
	} else {
		_ = conn.SetWriteDeadline(time.Time{})
	}
	err = conn.WriteMessage(websocket.TextMessage, data)
	s.writeMu.Unlock()
	if err != nil {
		metrics.SendFailures.WithLabelValues("write").Inc()
		return fmt.Errorf("send %s: %w", a.Kind, err)
	}

	metrics.FramesSent.WithLabelValues(string(a.Kind)).Inc()
	s.logger.Debug("Action sent", "action", a.Kind, "session_id", int64(a.SessionID))
	return nil
}

func (s *Socket) readLoop(conn *websocket.Conn) {
	defer s.wg.Done()

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			s.handleDisconnect(conn, err)
			return
		}
		if mt != websocket.TextMessage {
			continue
		}

		f, err := ParseFrame(data)
		if err != nil {
			metrics.FramesReceived.WithLabelValues("malformed").Inc()
			s.logger.Warn("Dropping malformed frame", "error", err, "size", len(data))
			continue
		}
		metrics.FramesReceived.WithLabelValues(frameKind(f)).Inc()

		s.mu.Lock()
		onFrame := s.callbacks.OnFrame
		s.mu.Unlock()
		if onFrame != nil {
			s.safeCall("frame", func() { onFrame(f) })
		}
	}
}

// handleDisconnect runs once per connection when its read loop ends.
func (s *Socket) handleDisconnect(conn *websocket.Conn, err error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	closing := s.state == StateClosed
	reconnect := s.cfg.Reconnect && !closing
	if reconnect {
		s.setStateLocked(StateConnecting)
	} else {
		s.setStateLocked(StateClosed)
	}
	cb := s.callbacks
	runCtx := s.runCtx
	if reconnect {
		s.wg.Add(1)
	}
	s.mu.Unlock()

	conn.Close()
	if closing || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		err = nil
	}
	if err != nil {
		s.logger.Warn("WebSocket closed", "error", err)
	} else {
		s.logger.Info("WebSocket closed")
	}
	if cb.OnClose != nil {
		s.safeCall("close", func() { cb.OnClose(err) })
	}

	if reconnect {
		go s.reconnectLoop(runCtx)
	}
}

// reconnectLoop re-dials with exponential backoff until it succeeds or
// the socket is closed.
func (s *Socket) reconnectLoop(ctx context.Context) {
	defer s.wg.Done()

	delay := s.cfg.ReconnectInitialDelay
	for {
		s.logger.Info("Reconnecting", "delay", delay)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		conn, err := s.dial(ctx)
		if err != nil {
			metrics.Reconnects.WithLabelValues("failure").Inc()
			s.logger.Warn("Reconnect failed", "error", err)
			delay *= 2
			if delay > s.cfg.ReconnectMaxDelay {
				delay = s.cfg.ReconnectMaxDelay
			}
			continue
		}

		s.mu.Lock()
		if ctx.Err() != nil || s.state != StateConnecting {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conn = conn
		s.setStateLocked(StateOpen)
		onOpen := s.callbacks.OnOpen
		s.wg.Add(1)
		s.mu.Unlock()

		metrics.Reconnects.WithLabelValues("success").Inc()
		s.logger.Info("WebSocket reconnected")
		go s.readLoop(conn)
		if onOpen != nil {
			s.safeCall("open", onOpen)
		}
		return
	}
}

// safeCall runs a callback, logging instead of propagating a panic.
func (s *Socket) safeCall(name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Socket callback panicked", "callback", name, "panic", r)
		}
	}()
	fn()
}

// Close sends a normal close frame, stops reconnecting and waits for the
// socket goroutines to finish. It is safe to call more than once.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.state == StateIdle || (s.state == StateClosed && s.conn == nil) {
		s.mu.Unlock()
		s.wg.Wait()
		return nil
	}
	s.setStateLocked(StateClosed)
	conn := s.conn
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	var err error
	if conn != nil {
		s.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		s.writeMu.Unlock()
		err = conn.Close()
	}
	s.wg.Wait()
	return err
}
