package client

import (
	"fmt"
	"math"
	"strings"

	"github.com/goccy/go-json"

	"github.com/inercia/chatline/internal/chat"
)

// ActionFrame is the JSON form of an outbound action.
type ActionFrame struct {
	Action    chat.ActionKind `json:"action"`
	SessionID chat.SessionID  `json:"session_id"`
	Message   string          `json:"message,omitempty"`
	Role      chat.Direction  `json:"role,omitempty"`
}

// EncodeAction serializes an action for the socket.
func EncodeAction(a chat.Action) ([]byte, error) {
	f := ActionFrame{Action: a.Kind, SessionID: a.SessionID}
	if a.Kind == chat.ActionSendMessage {
		f.Message = a.Message
		f.Role = a.Role
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", a.Kind, err)
	}
	return data, nil
}

// ParseFrame classifies a server frame. Frames with a non-empty error are
// ErrorFrames; frames with a message body are ContentFrames; everything
// else (join/leave/pending acks, pings) is an IgnoredFrame.
//
// Only a frame that is not a JSON object is an error. Fields are read one
// by one and an unreadable optional field falls back to its zero value, so
// one odd field never drops the whole frame.
func ParseFrame(data []byte) (chat.Frame, error) {
	var in map[string]json.RawMessage
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if in == nil {
		return nil, fmt.Errorf("parse frame: not an object")
	}

	sessionID := rawSessionID(in["session_id"])
	if msg := rawText(in["error"]); msg != "" {
		return chat.ErrorFrame{Error: msg, SessionID: sessionID}, nil
	}
	if msg := rawText(in["message"]); msg != "" {
		return chat.ContentFrame{
			SessionID: sessionID,
			Message:   msg,
			ID:        rawInt(in["id"]),
			Direction: chat.Direction(rawInt(in["direction"])),
			HasFile:   rawBool(in["has_file"]),
			FileName:  rawString(in["file_name"]),
			CreatedAt: chat.ParseTimestamp(rawString(in["created_at"])),
		}, nil
	}

	kind := rawString(in["status"])
	if kind == "" {
		kind = rawString(in["type"])
	}
	if kind == "" {
		kind = "unknown"
	}
	return chat.IgnoredFrame{Kind: kind}, nil
}

// rawString returns the value when it is a JSON string and "" otherwise.
func rawString(raw json.RawMessage) string {
	var s string
	if len(raw) == 0 || json.Unmarshal(raw, &s) != nil {
		return ""
	}
	return s
}

// rawText is rawString that also accepts other truthy scalars (numbers,
// true) in their JSON text form. null, false, 0 and "" yield "".
func rawText(raw json.RawMessage) string {
	if s := rawString(raw); s != "" {
		return s
	}
	text := strings.TrimSpace(string(raw))
	switch text {
	case "", "null", "false", "0", `""`:
		return ""
	}
	if strings.HasPrefix(text, `"`) {
		return ""
	}
	return text
}

// rawInt reads an integral JSON number or numeric string. Anything else is 0.
func rawInt(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		s := rawString(raw)
		if s == "" {
			return 0
		}
		n = json.Number(strings.TrimSpace(s))
	}
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return int64(f)
	}
	return 0
}

// rawSessionID is rawInt as a session id; unreadable ids are NoSession.
func rawSessionID(raw json.RawMessage) chat.SessionID {
	return chat.SessionID(rawInt(raw))
}

func rawBool(raw json.RawMessage) bool {
	var b bool
	if len(raw) == 0 || json.Unmarshal(raw, &b) != nil {
		return false
	}
	return b
}

func frameKind(f chat.Frame) string {
	switch f.(type) {
	case chat.ErrorFrame:
		return "error"
	case chat.ContentFrame:
		return "content"
	default:
		return "ignored"
	}
}
