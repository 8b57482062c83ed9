package conversion

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/inercia/chatline/internal/chat"
)

// Transcript is a session and its messages, ready for export.
type Transcript struct {
	Session chat.Session
	// Messages are newest first, as held by the chat view.
	Messages []chat.Message
}

// chronological returns the messages oldest first.
func (t Transcript) chronological() []chat.Message {
	msgs := slices.Clone(t.Messages)
	slices.Reverse(msgs)
	return msgs
}

func (t Transcript) title() string {
	if name := strings.TrimSpace(t.Session.Name); name != "" {
		return name
	}
	return "Session " + t.Session.ID.String()
}

func speaker(m chat.Message) string {
	if m.FromUser() {
		return "You"
	}
	return "Assistant"
}

func bodyOf(m chat.Message) string {
	if fc, ok := m.File(); ok {
		name := fc.Filename
		if name == "" {
			name = "attachment"
		}
		text := strings.TrimSpace(fc.Body)
		if text == "" {
			return fmt.Sprintf("[file: %s]", name)
		}
		return fmt.Sprintf("%s\n\n[file: %s]", NormalizeNewlines(text), name)
	}
	return MessageText(m.Text(), false)
}

// Markdown renders the transcript oldest first.
func (t Transcript) Markdown() string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n", t.title())
	for _, m := range t.chronological() {
		fmt.Fprintf(&b, "\n**%s** _%s_\n\n%s\n", speaker(m), m.CreatedAt.Format(time.RFC3339), bodyOf(m))
	}
	return b.String()
}

// HTML renders the transcript as a standalone HTML document.
func (t Transcript) HTML(c *Converter) string {
	if c == nil {
		c = DefaultConverter()
	}
	var b strings.Builder
	title := EscapeHTML(t.title())
	fmt.Fprintf(&b, "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>%s</title>\n</head>\n<body>\n<h1>%s</h1>\n", title, title)
	for _, m := range t.chronological() {
		class := "assistant"
		if m.FromUser() {
			class = "user"
		}
		fmt.Fprintf(&b, "<section class=\"message %s\">\n<header>%s <time datetime=\"%s\">%s</time></header>\n%s</section>\n",
			class, speaker(m), m.CreatedAt.Format(time.RFC3339), m.CreatedAt.Format("2006-01-02 15:04"),
			c.ConvertToSafeHTML(bodyOf(m)))
	}
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

// ExportedMessage is the JSON shape of one exported message.
type ExportedMessage struct {
	ID        int64     `json:"id"`
	Direction string    `json:"direction"`
	Message   string    `json:"message"`
	HasFile   bool      `json:"has_file"`
	FileName  string    `json:"file_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ExportedTranscript is the JSON shape of an exported session.
type ExportedTranscript struct {
	SessionID chat.SessionID    `json:"session_id"`
	Name      string            `json:"name"`
	Messages  []ExportedMessage `json:"messages"`
}

// Export returns the JSON export value, oldest message first.
func (t Transcript) Export() ExportedTranscript {
	out := ExportedTranscript{
		SessionID: t.Session.ID,
		Name:      t.Session.Name,
		Messages:  make([]ExportedMessage, 0, len(t.Messages)),
	}
	for _, m := range t.chronological() {
		em := ExportedMessage{
			ID:        m.ID,
			Direction: m.Direction.String(),
			Message:   m.Text(),
			CreatedAt: m.CreatedAt,
		}
		if fc, ok := m.File(); ok {
			em.HasFile = true
			em.FileName = fc.Filename
		}
		out.Messages = append(out.Messages, em)
	}
	return out
}

// JSON renders the transcript as indented JSON.
func (t Transcript) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(t.Export(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	return data, nil
}
