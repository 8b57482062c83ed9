// Package chat implements the real-time chat session logic: the active
// session reference, per-session error flags, the newest-first message list,
// history loading, the pending-reply tracker with its polling fallback and
// the View that coordinates join/leave over one shared socket.
package chat

import (
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// SessionID identifies a chat session (conversation thread).
type SessionID int64

// NoSession is the zero SessionID, used when no session is active.
const NoSession SessionID = 0

// String returns the decimal form used on the wire and in URLs.
func (id SessionID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ParseSessionID parses a decimal session id.
func ParseSessionID(s string) (SessionID, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return NoSession, err
	}
	return SessionID(n), nil
}

// MarshalJSON encodes the id as a JSON string, matching what browsers send.
func (id SessionID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON accepts a JSON number, a numeric string or null.
func (id *SessionID) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*id = NoSession
		return nil
	}
	s = strings.Trim(s, `"`)
	parsed, err := ParseSessionID(s)
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Direction tells who authored a message.
type Direction int

const (
	// DirectionUser marks a message written by the user.
	DirectionUser Direction = 1
	// DirectionSystem marks a system/assistant reply.
	DirectionSystem Direction = 2
)

func (d Direction) String() string {
	switch d {
	case DirectionUser:
		return "user"
	case DirectionSystem:
		return "system"
	default:
		return "direction(" + strconv.Itoa(int(d)) + ")"
	}
}

// Content is the body of a message: either TextContent or FileContent.
type Content interface {
	// Text returns the raw message body.
	Text() string
	isContent()
}

// TextContent is a plain text (markdown) message body.
type TextContent struct {
	Body string
}

func (c TextContent) Text() string { return c.Body }
func (TextContent) isContent() {}

// FileContent is a message that carries a downloadable file.
// The file itself is fetched separately by message id.
type FileContent struct {
	Body     string
	Filename string
}

func (c FileContent) Text() string { return c.Body }
func (FileContent) isContent() {}

// Message is one chat utterance.
type Message struct {
	// ID is server-assigned, or the send time in Unix milliseconds for
	// optimistic messages.
	ID        int64
	Content   Content
	Direction Direction
	CreatedAt time.Time
	// Optimistic is set on messages inserted locally before the server
	// confirmed them.
	Optimistic bool
}

// Text returns the raw message body.
func (m Message) Text() string {
	if m.Content == nil {
		return ""
	}
	return m.Content.Text()
}

// File returns the file part of the message, if it carries one.
func (m Message) File() (FileContent, bool) {
	fc, ok := m.Content.(FileContent)
	return fc, ok
}

// FromUser reports whether the user authored the message.
func (m Message) FromUser() bool {
	return m.Direction == DirectionUser
}

// Session is a conversation thread summary.
type Session struct {
	ID   SessionID
	Name string
}

// Record is a message as returned by the history endpoint, before
// normalization.
type Record struct {
	ID        int64
	Message   string
	Direction Direction
	CreatedAt string
	HasFile   bool
	FileName  string
}

// Normalize converts a server record into a Message.
func (r Record) Normalize() Message {
	var content Content = TextContent{Body: r.Message}
	if r.HasFile {
		content = FileContent{Body: r.Message, Filename: r.FileName}
	}
	return Message{
		ID:        r.ID,
		Content:   content,
		Direction: r.Direction,
		CreatedAt: ParseTimestamp(r.CreatedAt),
	}
}

// ParseTimestamp parses an ISO-8601 or Python str(datetime) timestamp.
// Unparsable input yields the zero time.
func ParseTimestamp(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05.999999Z07:00", "2006-01-02 15:04:05.999999"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// MessageList is a session's messages ordered newest-first.
// It is not safe for concurrent use; the View guards it.
type MessageList struct {
	items []Message
}

// Len returns the number of messages.
func (l *MessageList) Len() int { return len(l.items) }

// Prepend inserts a message at the head (newest position).
func (l *MessageList) Prepend(m Message) {
	l.items = append([]Message{m}, l.items...)
}

// AppendOlder adds an older page at the tail, keeping newest-first order.
func (l *MessageList) AppendOlder(msgs ...Message) {
	l.items = append(l.items, msgs...)
}

// Replace discards the current contents in favour of msgs.
func (l *MessageList) Replace(msgs []Message) {
	l.items = append([]Message(nil), msgs...)
}

// Clear empties the list.
func (l *MessageList) Clear() {
	l.items = nil
}

// Newest returns the head of the list.
func (l *MessageList) Newest() (Message, bool) {
	if len(l.items) == 0 {
		return Message{}, false
	}
	return l.items[0], true
}

// Snapshot returns a copy of the messages, newest first.
func (l *MessageList) Snapshot() []Message {
	return append([]Message(nil), l.items...)
}
