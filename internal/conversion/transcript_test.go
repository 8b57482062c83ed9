package conversion

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/inercia/chatline/internal/chat"
)

func sampleTranscript() Transcript {
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return Transcript{
		Session: chat.Session{ID: 12, Name: "Billing"},
		// newest first
		Messages: []chat.Message{
			{ID: 3, Direction: chat.DirectionSystem, CreatedAt: t0.Add(2 * time.Minute),
				Content: chat.FileContent{Body: "Here it is", Filename: "invoice.pdf"}},
			{ID: 2, Direction: chat.DirectionSystem, CreatedAt: t0.Add(time.Minute),
				Content: chat.TextContent{Body: `Sure\nOne moment`}},
			{ID: 1, Direction: chat.DirectionUser, CreatedAt: t0,
				Content: chat.TextContent{Body: "Send my invoice"}},
		},
	}
}

func TestTranscript_Markdown(t *testing.T) {
	md := sampleTranscript().Markdown()

	if !strings.HasPrefix(md, "# Billing\n") {
		t.Errorf("missing title: %q", md)
	}
	first := strings.Index(md, "Send my invoice")
	second := strings.Index(md, "One moment")
	third := strings.Index(md, "[file: invoice.pdf]")
	if first < 0 || second < 0 || third < 0 || !(first < second && second < third) {
		t.Errorf("messages not oldest first:\n%s", md)
	}
	if !strings.Contains(md, "Sure\nOne moment") {
		t.Errorf("escaped newline not normalized:\n%s", md)
	}
	if !strings.Contains(md, "**You**") || !strings.Contains(md, "**Assistant**") {
		t.Errorf("speakers missing:\n%s", md)
	}
}

func TestTranscript_UntitledSession(t *testing.T) {
	tr := Transcript{Session: chat.Session{ID: 4}}
	if md := tr.Markdown(); !strings.HasPrefix(md, "# Session 4\n") {
		t.Errorf("Markdown() = %q", md)
	}
}

func TestTranscript_HTML(t *testing.T) {
	tr := sampleTranscript()
	tr.Session.Name = "<b>Billing</b>"
	out := tr.HTML(nil)

	if !strings.Contains(out, "<title>&lt;b&gt;Billing&lt;/b&gt;</title>") {
		t.Errorf("title not escaped:\n%s", out)
	}
	if strings.Count(out, `class="message user"`) != 1 || strings.Count(out, `class="message assistant"`) != 2 {
		t.Errorf("unexpected message sections:\n%s", out)
	}
}

func TestTranscript_JSON(t *testing.T) {
	data, err := sampleTranscript().JSON()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}

	var got ExportedTranscript
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.SessionID != 12 || got.Name != "Billing" || len(got.Messages) != 3 {
		t.Fatalf("export = %+v", got)
	}
	if got.Messages[0].ID != 1 || got.Messages[0].Direction != "user" {
		t.Errorf("first message = %+v", got.Messages[0])
	}
	last := got.Messages[2]
	if !last.HasFile || last.FileName != "invoice.pdf" {
		t.Errorf("file message = %+v", last)
	}
}

func TestTranscript_EmptyReplyUsesFallback(t *testing.T) {
	tr := Transcript{Messages: []chat.Message{{ID: 1, Direction: chat.DirectionSystem, Content: chat.TextContent{}}}}
	if md := tr.Markdown(); !strings.Contains(md, FallbackReply) {
		t.Errorf("Markdown() = %q, want fallback reply", md)
	}
}
