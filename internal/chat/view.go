package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/inercia/chatline/internal/logging"
	"github.com/inercia/chatline/internal/metrics"
)

// DefaultJoinDelay is how long a join waits after a leave on session change.
const DefaultJoinDelay = 300 * time.Millisecond

// Options configures a View.
type Options struct {
	// JoinDelay is the delay between leaving the previous session and
	// joining the new one. Defaults to DefaultJoinDelay.
	JoinDelay time.Duration
	// PollInterval is the polling fallback interval. Defaults to DefaultPollInterval.
	PollInterval time.Duration
	// PageSize is the history page size. Defaults to DefaultPageSize.
	PageSize int
	// Notifier receives transient error notifications. May be nil.
	Notifier Notifier
	// Logger is the base logger. Defaults to the chat component logger.
	Logger *slog.Logger
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// ViewState is a point-in-time copy of the view.
type ViewState struct {
	Active        SessionID
	Messages      []Message
	Compose       string
	Pending       bool
	Errored       bool
	Loading       bool
	ManualLoading bool
	LoadingMore   bool
	Page          int
	HasMore       bool
	CanSend       bool
}

// View is the chat screen model for one shared socket.
//
// It owns the active session, coordinates join/leave on session change,
// reconciles optimistic sends, pushed frames and history pages into one
// newest-first list, and runs the polling fallback while a reply is
// pending. Frames reach it through HandleOpen, HandleFrame and HandleClose.
type View struct {
	sender    Sender
	history   *HistoryLoader
	errors    *ErrorFlags
	notifier  Notifier
	logger    *slog.Logger
	now       func() time.Time
	joinDelay time.Duration
	poller    *Poller

	active ActiveSession

	// ctx scopes background fetches (poll ticks) to the view lifetime.
	ctx    context.Context
	cancel context.CancelFunc

	// selectMu serializes session changes.
	selectMu sync.Mutex

	mu            sync.Mutex
	messages      MessageList
	compose       string
	pending       bool
	loading       bool
	manualLoading bool
	loadingMore   bool
	// selection counts session changes; in-flight loads started under an
	// older selection are discarded.
	selection uint64
	page          int
	hasMore       bool
	joinTimer     *time.Timer
	closed        bool
	subscribers   []chan struct{}
}

// NewView creates a view that sends over sender and loads history through fetcher.
func NewView(sender Sender, fetcher MessageFetcher, opts Options) *View {
	if opts.JoinDelay <= 0 {
		opts.JoinDelay = DefaultJoinDelay
	}
	if opts.Notifier == nil {
		opts.Notifier = discardNotifier{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Chat()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	v := &View{
		sender:    sender,
		history:   NewHistoryLoader(fetcher, opts.PageSize),
		errors:    NewErrorFlags(),
		notifier:  opts.Notifier,
		logger:    opts.Logger,
		now:       opts.Now,
		joinDelay: opts.JoinDelay,
		ctx:       ctx,
		cancel:    cancel,
		page:      1,
		hasMore:   true,
	}
	v.poller = NewPoller(opts.PollInterval, v.pollTick)
	return v
}

// Active returns the active session.
func (v *View) Active() SessionID {
	return v.active.Load()
}

// Errors returns the per-session error flags.
func (v *View) Errors() *ErrorFlags {
	return v.errors
}

// SelectSession makes id the active session: it leaves the previous one,
// schedules a delayed join, resets local state and reloads the first
// history page. Passing NoSession leaves and clears.
func (v *View) SelectSession(ctx context.Context, id SessionID) error {
	if !v.switchTo(ctx, id) || id == NoSession {
		return nil
	}
	return v.loadPage(ctx, id, 1, false, true)
}

// switchTo performs the synchronous part of a session change. It reports
// false when the view is closed.
func (v *View) switchTo(ctx context.Context, id SessionID) bool {
	v.selectMu.Lock()
	defer v.selectMu.Unlock()

	previous := v.active.Load()
	if v.sender.IsOpen() && previous != NoSession {
		if err := v.sender.Send(ctx, Action{Kind: ActionLeave, SessionID: previous}); err != nil {
			v.logger.Warn("Failed to leave session", "session_id", int64(previous), "error", err)
		}
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return false
	}
	v.active.Store(id)
	v.selection++
	if v.joinTimer != nil {
		v.joinTimer.Stop()
		v.joinTimer = nil
	}
	if id != NoSession && v.sender.IsOpen() {
		v.joinTimer = time.AfterFunc(v.joinDelay, func() { v.delayedJoin(id) })
	}
	v.errors.Reset(id)
	v.messages.Clear()
	v.compose = ""
	v.pending = false
	v.page = 1
	v.hasMore = true
	v.loadingMore = false
	v.loading = id != NoSession
	v.poller.Stop()
	if id != NoSession {
		v.poller.Restart()
	}
	v.mu.Unlock()

	v.logger.Info("Session selected", "session_id", int64(id), "previous", int64(previous))
	v.notify()
	return true
}

func (v *View) delayedJoin(id SessionID) {
	if !v.active.Is(id) {
		v.logger.Debug("Dropping delayed join for inactive session", "session_id", int64(id))
		return
	}
	if !v.sender.IsOpen() {
		return
	}
	if err := v.sender.Send(v.ctx, Action{Kind: ActionJoin, SessionID: id}); err != nil {
		v.logger.Warn("Failed to join session", "session_id", int64(id), "error", err)
	}
}

// HandleOpen joins the active session right away. It is called each time
// the socket opens, including after a reconnect.
func (v *View) HandleOpen() {
	id := v.active.Load()
	if id == NoSession {
		return
	}
	if err := v.sender.Send(v.ctx, Action{Kind: ActionJoin, SessionID: id}); err != nil {
		v.logger.Warn("Failed to join session on open", "session_id", int64(id), "error", err)
	}
}

// HandleClose records a socket close. State is kept; the next open rejoins.
func (v *View) HandleClose(err error) {
	if err != nil {
		v.logger.Warn("Socket closed", "error", err)
	} else {
		v.logger.Info("Socket closed")
	}
	v.notify()
}

// HandleFrame applies an inbound frame.
func (v *View) HandleFrame(f Frame) {
	switch f := f.(type) {
	case ErrorFrame:
		v.handleError(f)
	case ContentFrame:
		v.handleContent(f)
	case IgnoredFrame:
		v.logger.Debug("Ignoring frame", "kind", f.Kind)
	}
}

func (v *View) handleError(f ErrorFrame) {
	target := f.SessionID
	if target == NoSession {
		target = v.active.Load()
	}

	v.mu.Lock()
	v.pending = false
	v.mu.Unlock()

	if target != NoSession {
		v.errors.Mark(target)
	}
	v.poller.Stop()
	metrics.SessionErrors.Inc()

	logging.WithSession(v.logger, int64(target)).Warn("Session error received", "error", f.Error)
	v.notifier.Notify(Notification{
		Text:     f.Error,
		Level:    LevelError,
		Duration: DefaultNotificationDuration,
	})
	v.notify()
}

func (v *View) handleContent(f ContentFrame) {
	if f.Message == "" {
		v.logger.Debug("Ignoring content frame without message", "session_id", int64(f.SessionID))
		return
	}

	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	if f.SessionID == NoSession || !v.active.Is(f.SessionID) {
		v.mu.Unlock()
		metrics.StaleFrames.Inc()
		v.logger.Debug("Dropping frame for inactive session",
			"session_id", int64(f.SessionID),
			"active", int64(v.active.Load()))
		return
	}
	m := f.toMessage(v.now())
	v.messages.Prepend(m)
	if m.Direction == DirectionSystem {
		v.pending = false
	}
	v.mu.Unlock()

	v.restartPoller()
	v.notify()
}

// loadPage fetches one history page for id and merges it into the list
// if id is still active. manual marks a user-visible full reload.
func (v *View) loadPage(ctx context.Context, id SessionID, page int, appendOlder, manual bool) error {
	v.mu.Lock()
	selection := v.selection
	v.loading = true
	if manual {
		v.manualLoading = true
	}
	v.mu.Unlock()
	v.notify()

	defer func() {
		v.mu.Lock()
		v.loading = false
		if manual {
			v.manualLoading = false
		}
		v.mu.Unlock()
		v.notify()
	}()

	hp, err := v.history.Load(ctx, id, page)
	if err != nil {
		logging.WithSession(v.logger, int64(id)).Error("Failed to load messages", "page", page, "error", err)
		return err
	}

	v.mu.Lock()
	if v.closed || !v.active.Is(id) || v.selection != selection {
		v.mu.Unlock()
		metrics.HistoryFetches.WithLabelValues("stale").Inc()
		v.logger.Debug("Discarding history page for inactive session", "session_id", int64(id), "page", page)
		return nil
	}
	if page == 1 && !appendOlder {
		v.messages.Replace(hp.Messages)
	} else {
		v.messages.AppendOlder(hp.Messages...)
	}
	if newest, ok := v.messages.Newest(); ok {
		v.pending = newest.FromUser()
	}
	v.page = hp.Page
	v.hasMore = hp.HasMore()
	v.mu.Unlock()

	v.restartPoller()
	return nil
}

// LoadMore fetches the next older page. It returns false without issuing a
// request when a load-more is already in flight, when no older pages remain
// or when no session is active.
func (v *View) LoadMore(ctx context.Context) bool {
	id := v.active.Load()

	v.mu.Lock()
	if id == NoSession || v.loadingMore || !v.hasMore {
		v.mu.Unlock()
		return false
	}
	v.loadingMore = true
	selection := v.selection
	next := v.page + 1
	v.mu.Unlock()

	defer func() {
		v.mu.Lock()
		if v.selection == selection {
			v.loadingMore = false
		}
		v.mu.Unlock()
		v.notify()
	}()

	_ = v.loadPage(ctx, id, next, true, false)
	return true
}

func (v *View) pollTick() {
	id := v.active.Load()
	if id == NoSession {
		return
	}

	v.mu.Lock()
	newest, ok := v.messages.Newest()
	closed := v.closed
	v.mu.Unlock()

	if closed || !ok || !newest.FromUser() {
		return
	}
	metrics.PollTicks.Inc()
	logging.WithSession(logging.Poll(), int64(id)).Debug("Polling for reply")
	_ = v.loadPage(v.ctx, id, 1, false, false)
}

// CanSend reports whether text could be sent now.
func (v *View) CanSend(text string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.canSendLocked(text)
}

func (v *View) canSendLocked(text string) bool {
	id := v.active.Load()
	return !v.closed &&
		!v.pending &&
		id != NoSession &&
		!v.errors.Errored(id) &&
		strings.TrimSpace(text) != "" &&
		v.sender.IsOpen()
}

// Send sends text to the active session. The message is shown right away
// as an optimistic entry and the view waits for a reply.
func (v *View) Send(ctx context.Context, text string) error {
	id := v.active.Load()
	if id == NoSession {
		return ErrNoSession
	}
	v.mu.Lock()
	if !v.canSendLocked(text) {
		v.mu.Unlock()
		return ErrSendDisabled
	}
	now := v.now()
	v.messages.Prepend(Message{
		ID:         now.UnixMilli(),
		Content:    TextContent{Body: text},
		Direction:  DirectionUser,
		CreatedAt:  now,
		Optimistic: true,
	})
	v.pending = true
	v.mu.Unlock()
	v.notify()

	if err := v.sender.Send(ctx, Action{
		Kind:      ActionSendMessage,
		SessionID: id,
		Message:   text,
		Role:      DirectionUser,
	}); err != nil {
		logging.WithSession(v.logger, int64(id)).Error("Failed to send message", "error", err)
		return fmt.Errorf("send message: %w", err)
	}

	v.mu.Lock()
	v.compose = ""
	v.mu.Unlock()

	v.restartPoller()
	v.notify()
	return nil
}

// SetCompose stores the compose box text.
func (v *View) SetCompose(text string) {
	v.mu.Lock()
	v.compose = text
	v.mu.Unlock()
	v.notify()
}

// SendCompose sends the compose box text.
func (v *View) SendCompose(ctx context.Context) error {
	v.mu.Lock()
	text := v.compose
	v.mu.Unlock()
	return v.Send(ctx, text)
}

// State returns a copy of the current state.
func (v *View) State() ViewState {
	v.mu.Lock()
	defer v.mu.Unlock()

	id := v.active.Load()
	return ViewState{
		Active:        id,
		Messages:      v.messages.Snapshot(),
		Compose:       v.compose,
		Pending:       v.pending,
		Errored:       v.errors.Errored(id),
		Loading:       v.loading,
		ManualLoading: v.manualLoading,
		LoadingMore:   v.loadingMore,
		Page:          v.page,
		HasMore:       v.hasMore,
		CanSend:       v.canSendLocked(v.compose),
	}
}

// Subscribe returns a channel signalled after state changes. Signals are
// coalesced; a slow reader sees one pending signal. The channel is closed
// by Close.
func (v *View) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		close(ch)
		return ch
	}
	v.subscribers = append(v.subscribers, ch)
	return ch
}

func (v *View) notify() {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, ch := range v.subscribers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (v *View) restartPoller() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.closed {
		v.poller.Restart()
	}
}

// Close stops timers and background fetches and closes subscriber channels.
// It does not close the socket.
func (v *View) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	if v.joinTimer != nil {
		v.joinTimer.Stop()
		v.joinTimer = nil
	}
	v.poller.Stop()
	subs := v.subscribers
	v.subscribers = nil
	v.mu.Unlock()

	v.cancel()
	for _, ch := range subs {
		close(ch)
	}
}
