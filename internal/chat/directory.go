package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/inercia/chatline/internal/logging"
)

// SessionPage is one page of the session list, newest first.
type SessionPage struct {
	Items     []Session
	Page      int
	PageCount int
}

// SessionSource is the REST side of the session list.
type SessionSource interface {
	ListSessions(ctx context.Context, page, limit int) (*SessionPage, error)
	CreateSession(ctx context.Context) (Session, error)
	RenameSession(ctx context.Context, id SessionID, name string) (Session, error)
}

// Directory is the cached, paginated list of the user's sessions.
// It is safe for concurrent use.
type Directory struct {
	source   SessionSource
	pageSize int
	logger   *slog.Logger

	mu        sync.Mutex
	sessions  []Session
	page      int
	pageCount int
}

// NewDirectory creates an empty directory backed by source.
func NewDirectory(source SessionSource, pageSize int) *Directory {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Directory{
		source:   source,
		pageSize: pageSize,
		logger:   logging.Chat(),
	}
}

// Fetch loads a page of sessions. Page 1 replaces the cached list and later
// pages are appended. On error the cached list is left alone and an empty
// slice is returned along with the error.
func (d *Directory) Fetch(ctx context.Context, page int) ([]Session, error) {
	if page < 1 {
		page = 1
	}
	sp, err := d.source.ListSessions(ctx, page, d.pageSize)
	if err != nil {
		d.logger.Error("Failed to fetch sessions", "page", page, "error", err)
		return []Session{}, fmt.Errorf("fetch sessions page %d: %w", page, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if page == 1 {
		d.sessions = append([]Session(nil), sp.Items...)
	} else {
		d.sessions = append(d.sessions, sp.Items...)
	}
	d.page = page
	d.pageCount = sp.PageCount
	return append([]Session(nil), d.sessions...), nil
}

// HasMore reports whether more session pages remain.
func (d *Directory) HasMore() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page < d.pageCount
}

// Page returns the last fetched page number.
func (d *Directory) Page() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.page
}

// Sessions returns a copy of the cached list.
func (d *Directory) Sessions() []Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Session(nil), d.sessions...)
}

// Create creates a new session and puts it at the head of the list.
func (d *Directory) Create(ctx context.Context) (Session, error) {
	s, err := d.source.CreateSession(ctx)
	if err != nil {
		d.logger.Error("Failed to create session", "error", err)
		return Session{}, fmt.Errorf("create session: %w", err)
	}

	d.mu.Lock()
	d.sessions = append([]Session{s}, d.sessions...)
	d.mu.Unlock()

	d.logger.Info("Session created", "session_id", int64(s.ID))
	return s, nil
}

// Rename renames a session and updates the cached entry.
func (d *Directory) Rename(ctx context.Context, id SessionID, name string) (Session, error) {
	s, err := d.source.RenameSession(ctx, id, name)
	if err != nil {
		d.logger.Error("Failed to rename session", "session_id", int64(id), "error", err)
		return Session{}, fmt.Errorf("rename session %s: %w", id, err)
	}
	if s.ID == NoSession {
		s.ID = id
	}
	if s.Name == "" {
		s.Name = name
	}

	d.mu.Lock()
	for i := range d.sessions {
		if d.sessions[i].ID == id {
			d.sessions[i] = s
		}
	}
	d.mu.Unlock()
	return s, nil
}

// OpenLatest returns the most recent session, creating one when the user
// has none.
func (d *Directory) OpenLatest(ctx context.Context) (Session, error) {
	sessions, err := d.Fetch(ctx, 1)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) > 0 {
		return sessions[0], nil
	}
	return d.Create(ctx)
}
