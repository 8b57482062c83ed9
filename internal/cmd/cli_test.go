package cmd

import (
	"reflect"
	"strings"
	"testing"

	"github.com/inercia/chatline/internal/chat"
	"github.com/inercia/chatline/internal/config"
	"github.com/inercia/chatline/internal/conversion"
)

func TestCommandMatches(t *testing.T) {
	tests := []struct {
		prefix string
		want   []string
	}{
		{"/h", []string{"/help", "/h"}},
		{"/s", []string{"/switch", "/sessions", "/state"}},
		{"/p", []string{"/prompts", "/p"}},
		{"/q", []string{"/quit", "/q"}},
		{"/xyz", nil},
	}
	for _, tt := range tests {
		t.Run(tt.prefix, func(t *testing.T) {
			pairs := commandMatches(tt.prefix)
			var got []string
			for i := 0; i < len(pairs); i += 2 {
				got = append(got, pairs[i])
				if pairs[i+1] == "" {
					t.Errorf("%s has no description", pairs[i])
				}
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("commandMatches(%q) = %v, want %v", tt.prefix, got, tt.want)
			}
		})
	}
}

func TestCompleteInput_NonCommand(t *testing.T) {
	for _, line := range []string{"", "hello", "/switch 12"} {
		c := completeInput(line, len(line))
		if c.PREFIX != "" && c.PREFIX != line {
			t.Errorf("completeInput(%q) offered completions with PREFIX=%q", line, c.PREFIX)
		}
	}
}

func TestSlashCommandsDefinition(t *testing.T) {
	seen := make(map[string]bool)
	for _, cmd := range slashCommands {
		if !strings.HasPrefix(cmd.name, "/") {
			t.Errorf("command %q does not start with /", cmd.name)
		}
		if cmd.description == "" {
			t.Errorf("command %s has empty description", cmd.name)
		}
		if seen[cmd.name] {
			t.Errorf("duplicate command %s", cmd.name)
		}
		seen[cmd.name] = true
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{"/switch 12", command{name: "switch", args: []string{"12"}}, false},
		{"/RENAME \"Billing question\"", command{name: "rename", args: []string{"Billing question"}}, false},
		{"  /more  ", command{name: "more", args: []string{}}, false},
		{"/download 7 '/tmp/my dir'", command{name: "download", args: []string{"7", "/tmp/my dir"}}, false},
		{"/", command{}, true},
		{"/rename \"unterminated", command{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseCommand(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseCommand(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.name != tt.want.name || len(got.args) != len(tt.want.args) {
				t.Fatalf("parseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
			for i := range got.args {
				if got.args[i] != tt.want.args[i] {
					t.Errorf("arg %d = %q, want %q", i, got.args[i], tt.want.args[i])
				}
			}
		})
	}
}

func TestQuickReply(t *testing.T) {
	replies := []config.QuickReply{{Name: "hi", Prompt: " Hello "}, {Name: "cost", Prompt: "What does it cost?"}}

	if got, err := quickReply(replies, "1"); err != nil || got != "Hello" {
		t.Errorf("quickReply(1) = %q, %v", got, err)
	}
	if got, err := quickReply(replies, "2"); err != nil || got != "What does it cost?" {
		t.Errorf("quickReply(2) = %q, %v", got, err)
	}
	for _, bad := range []string{"0", "3", "x"} {
		if _, err := quickReply(replies, bad); err == nil {
			t.Errorf("quickReply(%q) should fail", bad)
		}
	}
}

func TestSendBlockedReason(t *testing.T) {
	tests := []struct {
		name string
		st   chat.ViewState
		open bool
		want string
	}{
		{"no session", chat.ViewState{}, true, "No session"},
		{"closed socket", chat.ViewState{Active: 1}, false, "Not connected"},
		{"errored", chat.ViewState{Active: 1, Errored: true, Pending: true}, true, "reported an error"},
		{"pending", chat.ViewState{Active: 1, Pending: true}, true, "waiting"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sendBlockedReason(tt.st, tt.open); !strings.Contains(got, tt.want) {
				t.Errorf("sendBlockedReason() = %q, want it to mention %q", got, tt.want)
			}
		})
	}
}

func TestMaskToken(t *testing.T) {
	if got := maskToken("short"); got != "*****" {
		t.Errorf("maskToken(short) = %q", got)
	}
	if got := maskToken("abcdefghijklmnopqrstuvwxyz"); got != "abcd********wxyz" {
		t.Errorf("maskToken(long) = %q", got)
	}
}

func TestRenderTranscript(t *testing.T) {
	tr := conversion.Transcript{Session: chat.Session{ID: 3, Name: "Demo"}}
	for _, tt := range []struct{ format, ext, contains string }{
		{"md", "md", "# Demo"},
		{"Markdown", "md", "# Demo"},
		{"html", "html", "<title>Demo</title>"},
		{"json", "json", `"session_id"`},
	} {
		data, ext, err := renderTranscript(tr, tt.format)
		if err != nil {
			t.Fatalf("renderTranscript(%s) error = %v", tt.format, err)
		}
		if ext != tt.ext || !strings.Contains(string(data), tt.contains) {
			t.Errorf("renderTranscript(%s) = %q (.%s)", tt.format, data, ext)
		}
	}
	if _, _, err := renderTranscript(tr, "pdf"); err == nil {
		t.Error("renderTranscript(pdf) should fail")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	defer func() {
		apiURL, wsURL, tokenFlag, logLevel, debug, logComponents = "", "", "", "", false, ""
	}()

	apiURL, wsURL, tokenFlag = "http://api", "ws://api", "tok"
	debug = true
	logComponents = "socket, chat ,"

	c := config.Default()
	applyFlagOverrides(c)

	if c.Server.APIURL != "http://api" || c.Server.WSURL != "ws://api" || c.Auth.Token != "tok" {
		t.Errorf("server/auth = %+v %+v", c.Server, c.Auth)
	}
	if c.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want debug", c.Log.Level)
	}
	if !reflect.DeepEqual(c.Log.Components, []string{"socket", "chat"}) {
		t.Errorf("Log.Components = %v", c.Log.Components)
	}

	logLevel = "warn"
	applyFlagOverrides(c)
	if c.Log.Level != "warn" {
		t.Errorf("--log-level should win over --debug, got %q", c.Log.Level)
	}
}

func TestLogConfig_FilePlacement(t *testing.T) {
	t.Setenv("CHATLINE_DIR", t.TempDir())
	defer resetAppdir()
	resetAppdir()

	c := config.Default()
	c.Log.File = "chatline.log"
	lc, err := logConfig(c)
	if err != nil {
		t.Fatal(err)
	}
	if lc.FileLog == nil || !strings.HasSuffix(lc.FileLog.Path, "logs/chatline.log") {
		t.Errorf("FileLog = %+v", lc.FileLog)
	}

	c.Log.File = "/var/tmp/x.log"
	lc, _ = logConfig(c)
	if lc.FileLog.Path != "/var/tmp/x.log" {
		t.Errorf("absolute path changed: %q", lc.FileLog.Path)
	}

	c.Log.File = ""
	if lc, _ = logConfig(c); lc.FileLog != nil {
		t.Error("FileLog should be nil without a file")
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" socket, chat,,socket ,history")
	want := []string{"socket", "chat", "history"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("splitList = %q, want %q", got, want)
	}
	if got := splitList(""); len(got) != 0 {
		t.Errorf("splitList(\"\") = %q, want empty", got)
	}
}

func TestErroredSessions(t *testing.T) {
	flags := map[chat.SessionID]bool{9: true, 2: true, 5: false}
	if got, want := erroredSessions(flags), []string{"2", "9"}; !reflect.DeepEqual(got, want) {
		t.Errorf("erroredSessions = %q, want %q", got, want)
	}
	if got := erroredSessions(nil); len(got) != 0 {
		t.Errorf("erroredSessions(nil) = %q, want empty", got)
	}
}
