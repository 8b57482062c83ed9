package client

import "github.com/inercia/chatline/internal/chat"

// Pager is the pagination block of list responses.
type Pager struct {
	Page      int `json:"page"`
	Limit     int `json:"limit"`
	PageCount int `json:"page_count"`
	ItemCount int `json:"item_count"`
}

// ListResponse is a paginated list response.
type ListResponse[T any] struct {
	Pager Pager `json:"pager"`
	Items []T   `json:"items"`
}

// SessionInfo is a session as returned by the API.
type SessionInfo struct {
	ID        chat.SessionID `json:"id"`
	Name      string         `json:"name"`
	IsActive  int            `json:"is_active,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
	UpdatedAt string         `json:"updated_at,omitempty"`
}

func (s SessionInfo) toSession() chat.Session {
	return chat.Session{ID: s.ID, Name: s.Name}
}

// MessageInfo is a history message as returned by the API.
type MessageInfo struct {
	ID        int64          `json:"id"`
	Message   string         `json:"message"`
	Direction chat.Direction `json:"direction"`
	HasFile   bool           `json:"has_file"`
	FileName  *string        `json:"file_name"`
	CreatedAt string         `json:"created_at"`
}

func (m MessageInfo) toRecord() chat.Record {
	r := chat.Record{
		ID:        m.ID,
		Message:   m.Message,
		Direction: m.Direction,
		CreatedAt: m.CreatedAt,
		HasFile:   m.HasFile,
	}
	if m.FileName != nil {
		r.FileName = *m.FileName
	}
	return r
}

// renameRequest is the body of a session rename.
type renameRequest struct {
	Name string `json:"name"`
}
