package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeSender records actions and reports a configurable open state.
type fakeSender struct {
	mu     sync.Mutex
	open   bool
	sent   []Action
	failOn ActionKind
}

func newFakeSender(open bool) *fakeSender {
	return &fakeSender{open: open}
}

func (s *fakeSender) Send(_ context.Context, a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return errors.New("socket not open")
	}
	if s.failOn != "" && a.Kind == s.failOn {
		return errors.New("write failed")
	}
	s.sent = append(s.sent, a)
	return nil
}

func (s *fakeSender) IsOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

func (s *fakeSender) setOpen(open bool) {
	s.mu.Lock()
	s.open = open
	s.mu.Unlock()
}

func (s *fakeSender) actions() []Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Action(nil), s.sent...)
}

func (s *fakeSender) count(kind ActionKind, id SessionID) int {
	n := 0
	for _, a := range s.actions() {
		if a.Kind == kind && a.SessionID == id {
			n++
		}
	}
	return n
}

type fetchCall struct {
	ID    SessionID
	Page  int
	Limit int
}

// fakeFetcher serves canned history pages. A gate blocks fetches for a
// session until it is closed.
type fakeFetcher struct {
	mu    sync.Mutex
	pages map[SessionID][]*RecordPage
	gates map[SessionID]chan struct{}
	calls []fetchCall
	err   error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		pages: make(map[SessionID][]*RecordPage),
		gates: make(map[SessionID]chan struct{}),
	}
}

func (f *fakeFetcher) set(id SessionID, pages ...*RecordPage) {
	f.mu.Lock()
	f.pages[id] = pages
	f.mu.Unlock()
}

func (f *fakeFetcher) gate(id SessionID) chan struct{} {
	ch := make(chan struct{})
	f.mu.Lock()
	f.gates[id] = ch
	f.mu.Unlock()
	return ch
}

func (f *fakeFetcher) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeFetcher) FetchMessages(ctx context.Context, id SessionID, page, limit int) (*RecordPage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{ID: id, Page: page, Limit: limit})
	gate := f.gates[id]
	err := f.err
	var rp *RecordPage
	if ps := f.pages[id]; page-1 < len(ps) {
		rp = ps[page-1]
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if rp == nil {
		return &RecordPage{Page: page, PageCount: 1}, nil
	}
	return rp, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeFetcher) lastCall() fetchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return fetchCall{}
	}
	return f.calls[len(f.calls)-1]
}

// recordingNotifier collects notifications.
type recordingNotifier struct {
	mu  sync.Mutex
	got []Notification
}

func (n *recordingNotifier) Notify(note Notification) {
	n.mu.Lock()
	n.got = append(n.got, note)
	n.mu.Unlock()
}

func (n *recordingNotifier) all() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.got...)
}

func record(id int64, text string, dir Direction) Record {
	return Record{ID: id, Message: text, Direction: dir, CreatedAt: "2024-05-01T10:00:00Z"}
}

func page(n, count int, items ...Record) *RecordPage {
	return &RecordPage{Items: items, Page: n, PageCount: count}
}

// waitFor polls cond until it holds or the timeout elapses.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
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
