package cmd

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/inercia/chatline/internal/chat"
	"github.com/inercia/chatline/internal/conversion"
)

type msgKey struct {
	id         int64
	optimistic bool
}

// transcriptPrinter writes new messages of the chat view to a terminal.
// It remembers what it has shown for the current session and prints only
// messages that appeared at the head of the list since the last update.
type transcriptPrinter struct {
	out io.Writer

	mu      sync.Mutex
	session chat.SessionID
	seen    map[msgKey]bool
	primed  bool
	pending bool
}

func newTranscriptPrinter(out io.Writer) *transcriptPrinter {
	return &transcriptPrinter{out: out, seen: make(map[msgKey]bool)}
}

// reset forgets the shown messages, e.g. before reprinting a session.
func (p *transcriptPrinter) reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.session = chat.NoSession
	p.seen = make(map[msgKey]bool)
	p.primed = false
	p.pending = false
}

// update prints whatever is new in st.
func (p *transcriptPrinter) update(st chat.ViewState) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if st.Active != p.session {
		p.session = st.Active
		p.seen = make(map[msgKey]bool)
		p.primed = false
		p.pending = false
	}
	if st.Loading {
		return
	}

	// On the first print of a session everything is shown. Afterwards the
	// user's own messages are already on screen from the prompt.
	initial := !p.primed
	p.primed = true
	var fresh []chat.Message
	for _, m := range st.Messages {
		if p.seen[msgKey{id: m.ID, optimistic: m.Optimistic}] {
			break
		}
		fresh = append(fresh, m)
	}
	for i := len(fresh) - 1; i >= 0; i-- {
		m := fresh[i]
		p.seen[msgKey{id: m.ID, optimistic: m.Optimistic}] = true
		if m.FromUser() && !initial {
			continue
		}
		fmt.Fprint(p.out, formatMessage(m))
	}

	if st.Pending && !p.pending {
		fmt.Fprintln(p.out, "⏳ waiting for a reply...")
	}
	p.pending = st.Pending
}

// printOlder writes msgs (newest first) as an older block above what was
// shown and marks them seen.
func (p *transcriptPrinter) printOlder(msgs []chat.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, "── older messages ──")
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		p.seen[msgKey{id: m.ID, optimistic: m.Optimistic}] = true
		fmt.Fprint(p.out, formatMessage(m))
	}
	fmt.Fprintln(p.out, "── end of older messages ──")
}

// formatMessage renders one message for the terminal.
func formatMessage(m chat.Message) string {
	var b strings.Builder
	who := "assistant"
	if m.FromUser() {
		who = "you"
	}
	ts := ""
	if !m.CreatedAt.IsZero() {
		ts = m.CreatedAt.Local().Format("15:04") + " "
	}
	if fc, ok := m.File(); ok {
		body := strings.TrimSpace(conversion.NormalizeNewlines(fc.Body))
		fmt.Fprintf(&b, "%s%s> %s\n", ts, who, body)
		name := fc.Filename
		if name == "" {
			name = "file"
		}
		fmt.Fprintf(&b, "   📎 %s (/download %d)\n", name, m.ID)
		return b.String()
	}
	fmt.Fprintf(&b, "%s%s> %s\n", ts, who, conversion.MessageText(m.Text(), false))
	return b.String()
}
