package chat

import (
	"context"
	"time"
)

// ActionKind is an outbound socket action.
type ActionKind string

const (
	ActionJoin        ActionKind = "join"
	ActionLeave       ActionKind = "leave"
	ActionSendMessage ActionKind = "send_message"
)

// Action is an outbound frame. Message and Role are only set for send_message.
type Action struct {
	Kind      ActionKind
	SessionID SessionID
	Message   string
	Role      Direction
}

// Frame is a parsed inbound socket frame:
// ErrorFrame, ContentFrame or IgnoredFrame.
type Frame interface {
	isFrame()
}

// ErrorFrame reports a session-scoped or connection-scoped failure.
// SessionID is NoSession when the server did not name a session.
type ErrorFrame struct {
	Error     string
	SessionID SessionID
}

// ContentFrame carries a new message for a session.
// Zero values mean the field was absent from the frame.
type ContentFrame struct {
	SessionID SessionID
	Message   string
	ID        int64
	Direction Direction
	HasFile   bool
	FileName  string
	CreatedAt time.Time
}

// IgnoredFrame is any other well-formed frame (join/leave acks, pings).
type IgnoredFrame struct {
	Kind string
}

func (ErrorFrame) isFrame()   {}
func (ContentFrame) isFrame() {}
func (IgnoredFrame) isFrame() {}

// toMessage normalizes a content frame, filling absent fields from now.
func (f ContentFrame) toMessage(now time.Time) Message {
	m := Message{
		ID:        f.ID,
		Direction: f.Direction,
		CreatedAt: f.CreatedAt,
		Content:   TextContent{Body: f.Message},
	}
	if m.ID == 0 {
		m.ID = now.UnixMilli()
	}
	if m.Direction == 0 {
		m.Direction = DirectionSystem
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	if f.HasFile {
		m.Content = FileContent{Body: f.Message, Filename: f.FileName}
	}
	return m
}

// Sender is the outbound side of the shared socket.
type Sender interface {
	Send(ctx context.Context, a Action) error
	IsOpen() bool
}
