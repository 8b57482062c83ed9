package mockserver

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

var errUnknownSession = errors.New("unknown session")

// session is a stored conversation.
type session struct {
	ID        int64
	Owner     string
	Name      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// message is a stored utterance. Direction is 1 for the user and 2 for
// the assistant.
type message struct {
	ID        int64
	SessionID int64
	Text      string
	Direction int
	FileName  string
	FileData  []byte
	CreatedAt time.Time
}

func (m message) hasFile() bool { return m.FileName != "" }

// store is an in-memory session and message database.
type store struct {
	mu       sync.Mutex
	now      func() time.Time
	nextSess int64
	nextMsg  int64
	sessions map[int64]*session
	messages map[int64][]message // per session, oldest first
	byID     map[int64]message
}

func newStore(now func() time.Time) *store {
	if now == nil {
		now = time.Now
	}
	return &store{
		now:      now,
		sessions: make(map[int64]*session),
		messages: make(map[int64][]message),
		byID:     make(map[int64]message),
	}
}

func (s *store) createSession(owner, name string) session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSess++
	now := s.now().UTC()
	if name == "" {
		name = fmt.Sprintf("Session %d", s.nextSess)
	}
	sess := &session{ID: s.nextSess, Owner: owner, Name: name, CreatedAt: now, UpdatedAt: now}
	s.sessions[sess.ID] = sess
	return *sess
}

func (s *store) session(owner string, id int64) (session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Owner != owner {
		return session{}, false
	}
	return *sess, true
}

func (s *store) renameSession(owner string, id int64, name string) (session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Owner != owner {
		return session{}, errUnknownSession
	}
	sess.Name = name
	sess.UpdatedAt = s.now().UTC()
	return *sess, nil
}

// listSessions returns a page of the owner's sessions, most recently
// updated first, and the page count.
func (s *store) listSessions(owner string, page, limit int) ([]session, int, int) {
	s.mu.Lock()
	var all []session
	for _, sess := range s.sessions {
		if sess.Owner == owner {
			all = append(all, *sess)
		}
	}
	s.mu.Unlock()

	slices.SortFunc(all, func(a, b session) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	items, pages := paginate(all, page, limit)
	return items, pages, len(all)
}

func (s *store) addMessage(sessionID int64, text string, direction int, fileName string, fileData []byte) (message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return message{}, errUnknownSession
	}
	s.nextMsg++
	m := message{
		ID:        s.nextMsg,
		SessionID: sessionID,
		Text:      text,
		Direction: direction,
		FileName:  fileName,
		FileData:  fileData,
		CreatedAt: s.now().UTC(),
	}
	s.messages[sessionID] = append(s.messages[sessionID], m)
	s.byID[m.ID] = m
	sess.UpdatedAt = m.CreatedAt
	return m, nil
}

// listMessages returns a page of a session's messages, newest first.
func (s *store) listMessages(sessionID int64, page, limit int) ([]message, int, int) {
	s.mu.Lock()
	all := slices.Clone(s.messages[sessionID])
	s.mu.Unlock()

	slices.Reverse(all)
	items, pages := paginate(all, page, limit)
	return items, pages, len(all)
}

func (s *store) message(owner string, id int64) (message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return message{}, false
	}
	if sess := s.sessions[m.SessionID]; sess == nil || sess.Owner != owner {
		return message{}, false
	}
	return m, true
}

// paginate returns the 1-based page of items and the page count. An
// empty list has one (empty) page.
func paginate[T any](items []T, page, limit int) ([]T, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if page < 1 {
		page = 1
	}
	pages := (len(items) + limit - 1) / limit
	if pages == 0 {
		pages = 1
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return []T{}, pages
	}
	end := min(start+limit, len(items))
	return items[start:end], pages
}
