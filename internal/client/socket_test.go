package client_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/inercia/chatline/internal/chat"
	"github.com/inercia/chatline/internal/client"
	"github.com/inercia/chatline/internal/token"
)

// wsServer is a scripted WebSocket peer.
type wsServer struct {
	*httptest.Server

	mu       sync.Mutex
	conns    []*websocket.Conn
	received []string
	tokens   []string
	paths    []string
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()
	ws := &wsServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.mu.Lock()
		ws.conns = append(ws.conns, conn)
		ws.tokens = append(ws.tokens, r.URL.Query().Get("token"))
		ws.paths = append(ws.paths, r.URL.Path)
		ws.mu.Unlock()

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			ws.mu.Lock()
			ws.received = append(ws.received, string(data))
			ws.mu.Unlock()
		}
	}))
	t.Cleanup(ws.Close)
	return ws
}

func (ws *wsServer) push(t *testing.T, frame string) {
	t.Helper()
	ws.mu.Lock()
	conn := ws.conns[len(ws.conns)-1]
	ws.mu.Unlock()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func (ws *wsServer) dropAll() {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	for _, c := range ws.conns {
		c.Close()
	}
}

func (ws *wsServer) connCount() int {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return len(ws.conns)
}

func (ws *wsServer) messages() []string {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return append([]string(nil), ws.received...)
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestSocket_ConnectSendReceive(t *testing.T) {
	ws := newWSServer(t)
	sock := client.NewSocket(client.SocketConfig{URL: ws.URL}, token.Static("tok en"))
	defer sock.Close()

	frames := make(chan chat.Frame, 4)
	opened := make(chan struct{}, 1)
	err := sock.Connect(context.Background(), client.SocketCallbacks{
		OnOpen:  func() { opened <- struct{}{} },
		OnFrame: func(f chat.Frame) { frames <- f },
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-opened
	if sock.State() != client.StateOpen || !sock.IsOpen() {
		t.Fatalf("State = %v, want open", sock.State())
	}

	// A second Connect while open is a no-op.
	if err := sock.Connect(context.Background(), client.SocketCallbacks{}); err != nil {
		t.Fatalf("second Connect failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return ws.connCount() == 1 })

	ws.mu.Lock()
	gotToken, gotPath := ws.tokens[0], ws.paths[0]
	ws.mu.Unlock()
	if gotToken != "tok en" || gotPath != "/ws/chat/" {
		t.Errorf("dialed path %q token %q", gotPath, gotToken)
	}

	if err := sock.Send(context.Background(), chat.Action{Kind: chat.ActionJoin, SessionID: 3}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	waitUntil(t, time.Second, func() bool { return len(ws.messages()) == 1 })
	if got := ws.messages()[0]; got != `{"action":"join","session_id":"3"}` {
		t.Errorf("server received %s", got)
	}

	ws.push(t, `not json`)
	ws.push(t, `{"status":"joined","session_id":3}`)
	ws.push(t, `{"session_id":3,"message":"hello","direction":2}`)

	first := <-frames
	if ig, ok := first.(chat.IgnoredFrame); !ok || ig.Kind != "joined" {
		t.Errorf("first frame = %#v, want joined ack (malformed frame dropped)", first)
	}
	second := <-frames
	if cf, ok := second.(chat.ContentFrame); !ok || cf.Message != "hello" || cf.SessionID != 3 {
		t.Errorf("second frame = %#v", second)
	}
}

func TestSocket_SendWhenNotOpen(t *testing.T) {
	sock := client.NewSocket(client.SocketConfig{URL: "ws://127.0.0.1:1"}, nil)
	err := sock.Send(context.Background(), chat.Action{Kind: chat.ActionJoin, SessionID: 1})
	if !errors.Is(err, client.ErrNotOpen) {
		t.Errorf("Send error = %v, want ErrNotOpen", err)
	}
	if sock.State() != client.StateIdle {
		t.Errorf("State = %v, want idle", sock.State())
	}
}

func TestSocket_ConnectFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	sock := client.NewSocket(client.SocketConfig{URL: srv.URL, HandshakeTimeout: time.Second}, nil)
	if err := sock.Connect(context.Background(), client.SocketCallbacks{}); err == nil {
		t.Fatal("expected a handshake error")
	}
	if sock.State() != client.StateClosed {
		t.Errorf("State = %v, want closed", sock.State())
	}
}

func TestSocket_ServerCloseNotifies(t *testing.T) {
	ws := newWSServer(t)
	sock := client.NewSocket(client.SocketConfig{URL: ws.URL}, nil)
	defer sock.Close()

	closed := make(chan error, 1)
	if err := sock.Connect(context.Background(), client.SocketCallbacks{
		OnClose: func(err error) { closed <- err },
	}); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, func() bool { return ws.connCount() == 1 })
	ws.dropAll()

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("OnClose not called")
	}
	waitUntil(t, time.Second, func() bool { return sock.State() == client.StateClosed })
	if err := sock.Send(context.Background(), chat.Action{Kind: chat.ActionJoin, SessionID: 1}); !errors.Is(err, client.ErrNotOpen) {
		t.Errorf("Send after close = %v, want ErrNotOpen", err)
	}
}

func TestSocket_ReconnectCallsOnOpenAgain(t *testing.T) {
	ws := newWSServer(t)
	sock := client.NewSocket(client.SocketConfig{
		URL:                   ws.URL,
		Reconnect:             true,
		ReconnectInitialDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:     40 * time.Millisecond,
	}, nil)
	defer sock.Close()

	var mu sync.Mutex
	opens := 0
	if err := sock.Connect(context.Background(), client.SocketCallbacks{
		OnOpen: func() {
			mu.Lock()
			opens++
			mu.Unlock()
		},
	}); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, func() bool { return ws.connCount() == 1 })
	ws.dropAll()

	waitUntil(t, 2*time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return opens == 2
	})
	if ws.connCount() != 2 {
		t.Errorf("server saw %d connections, want 2", ws.connCount())
	}
	if !sock.IsOpen() {
		t.Errorf("State = %v, want open after reconnect", sock.State())
	}
}

func TestSocket_CloseIsIdempotent(t *testing.T) {
	ws := newWSServer(t)
	sock := client.NewSocket(client.SocketConfig{URL: strings.Replace(ws.URL, "http://", "ws://", 1)}, nil)

	var closeErr error
	closed := make(chan struct{})
	if err := sock.Connect(context.Background(), client.SocketCallbacks{
		OnClose: func(err error) {
			closeErr = err
			close(closed)
		},
	}); err != nil {
		t.Fatal(err)
	}
	if err := sock.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	<-closed
	if closeErr != nil {
		t.Errorf("OnClose error after Close = %v, want nil", closeErr)
	}
	if err := sock.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
	if sock.State() != client.StateClosed {
		t.Errorf("State = %v, want closed", sock.State())
	}
}

func TestSocket_CallbackPanicRecovered(t *testing.T) {
	ws := newWSServer(t)
	sock := client.NewSocket(client.SocketConfig{URL: ws.URL}, nil)
	defer sock.Close()

	got := make(chan chat.Frame, 2)
	calls := 0
	if err := sock.Connect(context.Background(), client.SocketCallbacks{
		OnFrame: func(f chat.Frame) {
			calls++
			if calls == 1 {
				panic("boom")
			}
			got <- f
		},
	}); err != nil {
		t.Fatal(err)
	}
	waitUntil(t, time.Second, func() bool { return ws.connCount() == 1 })
	ws.push(t, `{"type":"ping"}`)
	ws.push(t, `{"error":"later"}`)

	select {
	case f := <-got:
		if ef, ok := f.(chat.ErrorFrame); !ok || ef.Error != "later" {
			t.Errorf("frame = %#v", f)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not survive a panicking callback")
	}
}

type emptyHistory struct{}

func (emptyHistory) FetchMessages(_ context.Context, _ chat.SessionID, page, _ int) (*chat.RecordPage, error) {
	return &chat.RecordPage{Page: page, PageCount: 1}, nil
}

func TestSocket_ErrorFrameWithUnreadableSessionMarksActive(t *testing.T) {
	ws := newWSServer(t)
	sock := client.NewSocket(client.SocketConfig{URL: ws.URL}, nil)
	defer sock.Close()

	view := chat.NewView(sock, emptyHistory{}, chat.Options{JoinDelay: 10 * time.Millisecond, PollInterval: time.Hour})
	defer view.Close()

	opened := make(chan struct{}, 1)
	err := sock.Connect(context.Background(), client.SocketCallbacks{
		OnOpen:  func() { view.HandleOpen(); opened <- struct{}{} },
		OnFrame: view.HandleFrame,
	})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	<-opened

	ctx := context.Background()
	if err := view.SelectSession(ctx, 3); err != nil {
		t.Fatalf("SelectSession failed: %v", err)
	}
	if err := view.Send(ctx, "hi"); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if !view.State().Pending {
		t.Fatal("Pending should be true after sending")
	}

	ws.push(t, `{"error":"x","session_id":"A"}`)

	waitUntil(t, time.Second, func() bool { return view.Errors().Errored(3) })
	if st := view.State(); st.Pending || st.CanSend {
		t.Errorf("after error: Pending = %v, CanSend = %v; want false, false", st.Pending, st.CanSend)
	}
}
