package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/shlex"
	"github.com/reeflective/readline"
	"github.com/spf13/cobra"

	"github.com/inercia/chatline/internal/chat"
	"github.com/inercia/chatline/internal/client"
	"github.com/inercia/chatline/internal/config"
	"github.com/inercia/chatline/internal/fileutil"
	"github.com/inercia/chatline/internal/logging"
	"github.com/inercia/chatline/internal/shutdown"
	"github.com/inercia/chatline/internal/token"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [session-id]",
	Short: "Interactive chat with the assistant",
	Long: `Open a session and chat with the assistant.

Without a session id the most recent session is opened, or a new one is
created when you have none.

Commands:
  /switch ID     - Switch to another session
  /new           - Start a new session
  /sessions [N]  - List sessions (page N)
  /more          - Load older messages
  /rename NAME   - Rename the current session
  /prompts       - List quick replies
  /p N           - Send quick reply N
  /download ID   - Download the file attached to message ID
  /state         - Show connection and session state
  /quit          - Exit`,
	Args: cobra.MaximumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// repl is the interactive chat loop and its collaborators.
type repl struct {
	out     io.Writer
	view    *chat.View
	dir     *chat.Directory
	api     *client.Client
	sock    *client.Socket
	printer *transcriptPrinter
	quick   []config.QuickReply
	saveDir string
	quit    func()
}

func runChat(cmd *cobra.Command, args []string) error {
	c, err := requireConfig()
	if err != nil {
		return err
	}

	var initial chat.SessionID
	if len(args) == 1 {
		if initial, err = chat.ParseSessionID(args[0]); err != nil {
			return err
		}
	}

	tokens, err := newTokenSource(c)
	if err != nil {
		return err
	}
	tokens.watch()
	warnIfExpired(os.Stdout, tokens)

	out := os.Stdout
	api := newAPIClient(c, tokens)
	sock := newSocket(c, tokens)
	view := chat.NewView(sock, api, chat.Options{
		JoinDelay:    c.Chat.JoinDelay,
		PollInterval: c.Chat.PollInterval,
		PageSize:     c.Chat.PageSize,
		Notifier: chat.NotifierFunc(func(n chat.Notification) {
			prefix := "ℹ️ "
			if n.Level == chat.LevelError {
				prefix = "❌ "
			}
			fmt.Fprintf(out, "\n%s%s\n", prefix, n.Text)
		}),
	})

	sm := shutdown.New()
	sm.AddCleanup(func(string) { view.Close() })
	sm.AddCleanup(func(string) { _ = sock.Close() })
	sm.AddCleanup(func(string) { _ = tokens.Close() })
	sm.Start()
	defer sm.Shutdown("chat finished")
	ctx := sm.Context()

	if err := sock.Connect(ctx, client.SocketCallbacks{
		OnOpen:  view.HandleOpen,
		OnFrame: view.HandleFrame,
		OnClose: view.HandleClose,
	}); err != nil {
		fmt.Fprintf(out, "⚠️  Could not connect to %s: %v\n   Messages can be read but not sent.\n", c.Server.WSURL, err)
	}

	cwd, _ := os.Getwd()
	r := &repl{
		out:     out,
		view:    view,
		dir:     chat.NewDirectory(api, c.Chat.SessionPageSize),
		api:     api,
		sock:    sock,
		printer: newTranscriptPrinter(out),
		quick:   c.QuickReplies,
		saveDir: cwd,
	}

	go r.follow(view.Subscribe())

	if err := r.open(ctx, initial); err != nil {
		return err
	}
	return r.loop(ctx, sm)
}

func warnIfExpired(out io.Writer, p token.Provider) {
	tok, err := p.AccessToken()
	if errors.Is(err, token.ErrNoToken) {
		fmt.Fprintln(out, "⚠️  No access token configured; use 'chatline token set' or --token.")
		return
	}
	if err == nil && token.Expired(tok, time.Now()) {
		fmt.Fprintln(out, "⚠️  Your access token has expired; requests will be rejected.")
	}
}

// follow prints view updates until the view is closed.
func (r *repl) follow(updates <-chan struct{}) {
	for range updates {
		r.printer.update(r.view.State())
	}
}

// open selects id, or the most recent session when id is NoSession.
func (r *repl) open(ctx context.Context, id chat.SessionID) error {
	name := ""
	if id == chat.NoSession {
		sess, err := r.dir.OpenLatest(ctx)
		if err != nil {
			return fmt.Errorf("failed to open a session: %w", err)
		}
		id, name = sess.ID, sess.Name
	}
	return r.switchTo(ctx, id, name)
}

func (r *repl) switchTo(ctx context.Context, id chat.SessionID, name string) error {
	r.printer.reset()
	if name == "" {
		name = "session " + id.String()
	}
	fmt.Fprintf(r.out, "\n💬 %s (#%s)\n", name, id)
	if err := r.view.SelectSession(ctx, id); err != nil {
		fmt.Fprintf(r.out, "❌ Could not load messages: %v\n", err)
	}
	r.printer.update(r.view.State())
	return nil
}

// slashCommands defines the available slash commands with their descriptions.
var slashCommands = []struct {
	name        string
	description string
}{
	{"/help", "Show available commands"},
	{"/h", "Show available commands (alias)"},
	{"/?", "Show available commands (alias)"},
	{"/switch", "Switch to another session"},
	{"/new", "Start a new session"},
	{"/sessions", "List sessions"},
	{"/more", "Load older messages"},
	{"/rename", "Rename the current session"},
	{"/prompts", "List quick replies"},
	{"/p", "Send a quick reply"},
	{"/download", "Download a message's file"},
	{"/state", "Show connection and session state"},
	{"/quit", "Exit"},
	{"/exit", "Exit (alias)"},
	{"/q", "Exit (alias)"},
}

func (r *repl) loop(ctx context.Context, sm *shutdown.Manager) error {
	rl := readline.NewShell()
	rl.Prompt.Primary(func() string { return "chatline> " })

	history := readline.NewInMemoryHistory()
	rl.History.Add("default", history)

	rl.Completer = func(line []rune, cursor int) readline.Completions {
		return completeInput(string(line), cursor)
	}

	r.quit = func() { sm.Shutdown("user quit") }
	fmt.Fprintln(r.out, "\n📝 Type your message and press Enter. Use /help for commands. Tab completes commands.")

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				fmt.Fprintln(r.out, "\n👋 Goodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if done := r.handleCommand(ctx, line); done {
				return nil
			}
			continue
		}
		r.send(ctx, line)
	}
}

// send sends text, telling the user why when sending is not possible.
func (r *repl) send(ctx context.Context, text string) {
	err := r.view.Send(ctx, text)
	if errors.Is(err, chat.ErrSendDisabled) || errors.Is(err, chat.ErrNoSession) {
		fmt.Fprintf(r.out, "✋ %s\n", sendBlockedReason(r.view.State(), r.sock.IsOpen()))
		return
	}
	if err != nil {
		fmt.Fprintf(r.out, "❌ %v\n", err)
	}
}

// sendBlockedReason explains why CanSend is false.
func sendBlockedReason(st chat.ViewState, socketOpen bool) string {
	switch {
	case st.Active == chat.NoSession:
		return "No session selected; use /new or /switch."
	case !socketOpen:
		return "Not connected to the chat server."
	case st.Errored:
		return "This session reported an error; /switch to it again to retry."
	case st.Pending:
		return "Still waiting for the previous reply."
	default:
		return "Message not sent."
	}
}

// command is a parsed slash command.
type command struct {
	name string
	args []string
}

// parseCommand splits a slash command line with shell quoting rules.
func parseCommand(line string) (command, error) {
	parts, err := shlex.Split(strings.TrimPrefix(strings.TrimSpace(line), "/"))
	if err != nil {
		return command{}, fmt.Errorf("invalid command: %w", err)
	}
	if len(parts) == 0 {
		return command{}, errors.New("empty command")
	}
	return command{name: strings.ToLower(parts[0]), args: parts[1:]}, nil
}

// handleCommand runs a slash command. It returns true when the loop should exit.
func (r *repl) handleCommand(ctx context.Context, line string) bool {
	cmd, err := parseCommand(line)
	if err != nil {
		fmt.Fprintf(r.out, "❓ %v\n", err)
		return false
	}

	switch cmd.name {
	case "quit", "exit", "q":
		fmt.Fprintln(r.out, "👋 Goodbye!")
		if r.quit != nil {
			r.quit()
		}
		return true
	case "help", "h", "?":
		printHelp(r.out)
	case "switch":
		if len(cmd.args) != 1 {
			fmt.Fprintln(r.out, "usage: /switch ID")
			return false
		}
		id, err := chat.ParseSessionID(cmd.args[0])
		if err != nil {
			fmt.Fprintf(r.out, "❌ %v\n", err)
			return false
		}
		_ = r.switchTo(ctx, id, r.sessionName(id))
	case "new":
		sess, err := r.dir.Create(ctx)
		if err != nil {
			fmt.Fprintf(r.out, "❌ %v\n", err)
			return false
		}
		_ = r.switchTo(ctx, sess.ID, sess.Name)
	case "sessions":
		r.listSessions(ctx, cmd.args)
	case "more":
		r.loadMore(ctx)
	case "rename":
		name := strings.TrimSpace(strings.Join(cmd.args, " "))
		if name == "" {
			fmt.Fprintln(r.out, "usage: /rename NAME")
			return false
		}
		sess, err := r.dir.Rename(ctx, r.view.Active(), name)
		if err != nil {
			fmt.Fprintf(r.out, "❌ %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "✏️  Renamed to %q\n", sess.Name)
	case "prompts":
		printQuickReplies(r.out, r.quick)
	case "p":
		if len(cmd.args) != 1 {
			fmt.Fprintln(r.out, "usage: /p N")
			return false
		}
		prompt, err := quickReply(r.quick, cmd.args[0])
		if err != nil {
			fmt.Fprintf(r.out, "❌ %v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "you> %s\n", prompt)
		r.send(ctx, prompt)
	case "download":
		r.download(ctx, cmd.args)
	case "state":
		printState(r.out, r.view.State(), r.view.Errors().Snapshot(), r.sock)
	default:
		fmt.Fprintf(r.out, "❓ Unknown command: %s (use /help for available commands)\n", cmd.name)
	}
	return false
}

func (r *repl) sessionName(id chat.SessionID) string {
	for _, s := range r.dir.Sessions() {
		if s.ID == id {
			return s.Name
		}
	}
	return ""
}

func (r *repl) listSessions(ctx context.Context, args []string) {
	page := 1
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			fmt.Fprintln(r.out, "usage: /sessions [PAGE]")
			return
		}
		page = n
	}
	sessions, err := r.dir.Fetch(ctx, page)
	if err != nil {
		fmt.Fprintf(r.out, "❌ %v\n", err)
		return
	}
	active := r.view.Active()
	for _, s := range sessions {
		marker := " "
		if s.ID == active {
			marker = "*"
		}
		fmt.Fprintf(r.out, "%s %6s  %s\n", marker, s.ID, s.Name)
	}
	if r.dir.HasMore() {
		fmt.Fprintf(r.out, "  ... more with /sessions %d\n", r.dir.Page()+1)
	}
}

func (r *repl) loadMore(ctx context.Context) {
	before := len(r.view.State().Messages)
	if !r.view.LoadMore(ctx) {
		fmt.Fprintln(r.out, "No older messages.")
		return
	}
	msgs := r.view.State().Messages
	if len(msgs) <= before {
		fmt.Fprintln(r.out, "No older messages.")
		return
	}
	r.printer.printOlder(msgs[before:])
}

func (r *repl) download(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Fprintln(r.out, "usage: /download MESSAGE_ID [DIR]")
		return
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintf(r.out, "❌ invalid message id %q\n", args[0])
		return
	}
	dir := r.saveDir
	if len(args) == 2 {
		dir = args[1]
	}

	fallback := ""
	for _, m := range r.view.State().Messages {
		if fc, ok := m.File(); ok && m.ID == id {
			fallback = fc.Filename
		}
	}
	path, err := saveDownload(ctx, r.api, id, fallback, dir)
	if err != nil {
		fmt.Fprintf(r.out, "❌ File download failed: %v\n", err)
		return
	}
	fmt.Fprintf(r.out, "📥 Saved %s\n", path)
}

// saveDownload fetches a message's file and writes it into dir.
func saveDownload(ctx context.Context, api *client.Client, messageID int64, fallback, dir string) (string, error) {
	dl, err := api.DownloadMessageFile(ctx, messageID, fallback)
	if err != nil {
		return "", err
	}
	defer dl.Body.Close()

	data, err := io.ReadAll(dl.Body)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", dl.Filename, err)
	}
	path := filepath.Join(dir, fileutil.SafeFilename(dl.Filename, client.DefaultDownloadName))
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	logging.History().Info("File downloaded", "message_id", messageID, "path", path, "bytes", len(data))
	return path, nil
}

func quickReply(replies []config.QuickReply, arg string) (string, error) {
	n, err := strconv.Atoi(arg)
	if err != nil || n < 1 || n > len(replies) {
		return "", fmt.Errorf("no quick reply %q (have %d)", arg, len(replies))
	}
	return strings.TrimSpace(replies[n-1].Prompt), nil
}

func printQuickReplies(out io.Writer, replies []config.QuickReply) {
	if len(replies) == 0 {
		fmt.Fprintln(out, "No quick replies configured (see quick_replies in the config file).")
		return
	}
	for i, q := range replies {
		label := q.Name
		if label == "" {
			label = strings.TrimSpace(q.Prompt)
		}
		fmt.Fprintf(out, "  %d. %s\n", i+1, label)
	}
}

func printState(out io.Writer, st chat.ViewState, flags map[chat.SessionID]bool, sock *client.Socket) {
	fmt.Fprintf(out, "socket:   %s (client %s)\n", sock.State(), sock.ClientID())
	fmt.Fprintf(out, "session:  %s\n", st.Active)
	fmt.Fprintf(out, "messages: %d (page %d, more: %v)\n", len(st.Messages), st.Page, st.HasMore)
	fmt.Fprintf(out, "pending:  %v  errored: %v  can send: %v\n", st.Pending, st.Errored, sock.IsOpen() && !st.Pending && !st.Errored && st.Active != chat.NoSession)
	if errored := erroredSessions(flags); len(errored) > 0 {
		fmt.Fprintf(out, "errored sessions: %s\n", strings.Join(errored, ", "))
	}
}

// erroredSessions lists the flagged session ids in ascending order.
func erroredSessions(flags map[chat.SessionID]bool) []string {
	ids := make([]chat.SessionID, 0, len(flags))
	for id, errored := range flags {
		if errored {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func printHelp(out io.Writer) {
	fmt.Fprintln(out, `
Available commands:
  /switch ID        - Switch to another session
  /new              - Start a new session
  /sessions [N]     - List sessions (page N)
  /more             - Load older messages
  /rename NAME      - Rename the current session
  /prompts          - List quick replies
  /p N              - Send quick reply N
  /download ID [DIR]- Download the file attached to message ID
  /state            - Show connection and session state
  /quit, /exit, /q  - Exit
  /help, /h, /?     - Show this help message

Tips:
  - Type your message and press Enter to send it
  - Only one message can wait for a reply at a time
  - Use Tab to autocomplete slash commands`)
}

// completeInput provides tab completion for the chat input.
// It completes slash commands when the input starts with "/".
func completeInput(line string, cursor int) readline.Completions {
	if cursor > len(line) {
		cursor = len(line)
	}
	text := line[:cursor]
	if !strings.HasPrefix(text, "/") || strings.Contains(text, " ") {
		return readline.Completions{}
	}

	pairs := commandMatches(text)
	if len(pairs) == 0 {
		return readline.Completions{}
	}
	return readline.CompleteValuesDescribed(pairs...).
		Tag("commands").
		NoSpace('/')
}

// commandMatches returns value/description pairs of the slash commands
// starting with prefix.
func commandMatches(prefix string) []string {
	var pairs []string
	for _, cmd := range slashCommands {
		if strings.HasPrefix(cmd.name, prefix) {
			pairs = append(pairs, cmd.name, cmd.description)
		}
	}
	return pairs
}
