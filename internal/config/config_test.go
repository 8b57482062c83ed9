package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Chat.JoinDelay != 300*time.Millisecond {
		t.Errorf("JoinDelay = %v, want 300ms", cfg.Chat.JoinDelay)
	}
	if cfg.Chat.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.Chat.PollInterval)
	}
	if cfg.Chat.PageSize != 10 || cfg.Chat.SessionPageSize != 10 {
		t.Errorf("page sizes = %d/%d, want 10/10", cfg.Chat.PageSize, cfg.Chat.SessionPageSize)
	}
	if cfg.Socket.Reconnect {
		t.Error("Reconnect should be off by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on defaults = %v", err)
	}
}

func TestParse(t *testing.T) {
	data := []byte(`
server:
  api_url: https://chat.example.com
  ws_url: wss://chat.example.com
chat:
  join_delay: 150ms
  poll_interval: 2s
socket:
  reconnect: true
  send_rate: 4
quick_replies:
  - name: hello
    prompt: "  Hello there "
  - name: dup
    prompt: "Hello there"
  - name: blank
    prompt: "   "
  - name: price
    prompt: What does it cost?
log:
  level: debug
  components: [socket, chat]
`)
	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if cfg.Server.APIURL != "https://chat.example.com" {
		t.Errorf("APIURL = %q", cfg.Server.APIURL)
	}
	if cfg.Chat.JoinDelay != 150*time.Millisecond || cfg.Chat.PollInterval != 2*time.Second {
		t.Errorf("chat timings = %v/%v", cfg.Chat.JoinDelay, cfg.Chat.PollInterval)
	}
	if cfg.Chat.PageSize != 10 {
		t.Errorf("PageSize = %d, want default 10", cfg.Chat.PageSize)
	}
	if !cfg.Socket.Reconnect || cfg.Socket.SendRate != 4 {
		t.Errorf("socket = %+v", cfg.Socket)
	}
	if len(cfg.QuickReplies) != 2 {
		t.Fatalf("QuickReplies = %+v, want 2 entries", cfg.QuickReplies)
	}
	if cfg.QuickReplies[0].Name != "hello" || cfg.QuickReplies[1].Name != "price" {
		t.Errorf("QuickReplies = %+v", cfg.QuickReplies)
	}
	prompts := cfg.QuickReplyPrompts()
	if prompts[0] != "Hello there" {
		t.Errorf("QuickReplyPrompts()[0] = %q", prompts[0])
	}
	if len(cfg.Log.Components) != 2 {
		t.Errorf("Log.Components = %v", cfg.Log.Components)
	}
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil) error = %v", err)
	}
	if cfg.Server.APIURL != Default().Server.APIURL {
		t.Errorf("APIURL = %q, want default", cfg.Server.APIURL)
	}
}

func TestParse_UnknownField(t *testing.T) {
	if _, err := Parse([]byte("chat:\n  join_dealy: 1s\n")); err == nil {
		t.Error("Parse() should reject unknown fields")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no api url", func(c *Config) { c.Server.APIURL = " " }, "server.api_url"},
		{"no ws url", func(c *Config) { c.Server.WSURL = "" }, "server.ws_url"},
		{"zero poll", func(c *Config) { c.Chat.PollInterval = 0 }, "chat.poll_interval"},
		{"negative delay", func(c *Config) { c.Chat.JoinDelay = -time.Second }, "chat.join_delay"},
		{"zero page", func(c *Config) { c.Chat.PageSize = 0 }, "chat.page_size"},
		{"zero session page", func(c *Config) { c.Chat.SessionPageSize = -1 }, "chat.session_page_size"},
		{"negative rate", func(c *Config) { c.Socket.SendRate = -1 }, "socket.send_rate"},
		{"bad ratio", func(c *Config) { c.Breaker.MaxFailuresRatio = 1.5 }, "breaker.max_failures_ratio"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	t.Setenv(EnvWSURL, "")
	t.Setenv(EnvToken, "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Chat.PageSize != 10 {
		t.Errorf("PageSize = %d, want default", cfg.Chat.PageSize)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  api_url: http://file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvAPIURL, "http://env")
	t.Setenv(EnvWSURL, "ws://env")
	t.Setenv(EnvToken, "secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.APIURL != "http://env" || cfg.Server.WSURL != "ws://env" {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Auth.Token != "secret" {
		t.Errorf("Auth.Token = %q", cfg.Auth.Token)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv(EnvAPIURL, "")
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("chat:\n  page_size: 0\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() should fail validation")
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfig, "/tmp/custom.yaml")
	p, err := DefaultPath()
	if err != nil || p != "/tmp/custom.yaml" {
		t.Errorf("DefaultPath() = %q, %v", p, err)
	}
}
