// Package config loads the chatline YAML configuration.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inercia/chatline/internal/appdir"
	"github.com/inercia/chatline/internal/sliceutil"
)

// Environment overrides.
const (
	EnvConfig = "CHATLINE_CONFIG"
	EnvAPIURL = "CHATLINE_API_URL"
	EnvWSURL  = "CHATLINE_WS_URL"
	EnvToken  = "CHATLINE_TOKEN"
)

// ServerConfig locates the backend.
type ServerConfig struct {
	// APIURL is the REST origin, e.g. http://localhost:8000
	APIURL string `yaml:"api_url"`
	// WSURL is the WebSocket origin, e.g. ws://localhost:8000
	WSURL string `yaml:"ws_url"`
	// Timeout is the REST request timeout.
	Timeout time.Duration `yaml:"timeout"`
}

// AuthConfig says where the access token comes from. Sources are tried
// in order: Token, TokenFile, then the system keychain when Keychain is
// set (the default) and supported.
type AuthConfig struct {
	Token     string `yaml:"token"`
	TokenFile string `yaml:"token_file"`
	Keychain  bool   `yaml:"keychain"`
}

// ChatConfig tunes the chat view.
type ChatConfig struct {
	// JoinDelay separates a leave from the following join.
	JoinDelay time.Duration `yaml:"join_delay"`
	// PollInterval is the polling fallback interval while a reply is pending.
	PollInterval time.Duration `yaml:"poll_interval"`
	// PageSize is the message history page size.
	PageSize int `yaml:"page_size"`
	// SessionPageSize is the session list page size.
	SessionPageSize int `yaml:"session_page_size"`
}

// SocketConfig tunes the WebSocket.
type SocketConfig struct {
	HandshakeTimeout      time.Duration `yaml:"handshake_timeout"`
	Reconnect             bool          `yaml:"reconnect"`
	ReconnectInitialDelay time.Duration `yaml:"reconnect_initial_delay"`
	ReconnectMaxDelay     time.Duration `yaml:"reconnect_max_delay"`
	// SendRate caps outbound actions per second; 0 is unlimited.
	SendRate float64 `yaml:"send_rate"`
}

// BreakerConfig tunes the REST circuit breaker.
type BreakerConfig struct {
	MaxFailuresRatio float64       `yaml:"max_failures_ratio"`
	MinRequests      uint32        `yaml:"min_requests"`
	Timeout          time.Duration `yaml:"timeout"`
}

// QuickReply is a canned prompt offered in the chat.
type QuickReply struct {
	Name   string `yaml:"name"`
	Prompt string `yaml:"prompt"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
	// File enables a rotated log file. Relative names go in the logs dir.
	File       string   `yaml:"file"`
	FileLevel  string   `yaml:"file_level"`
	JSON       bool     `yaml:"json"`
	Components []string `yaml:"components"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address of /metrics; empty disables it.
	Addr string `yaml:"addr"`
}

// Config is the complete chatline configuration.
type Config struct {
	Server       ServerConfig  `yaml:"server"`
	Auth         AuthConfig    `yaml:"auth"`
	Chat         ChatConfig    `yaml:"chat"`
	Socket       SocketConfig  `yaml:"socket"`
	Breaker      BreakerConfig `yaml:"breaker"`
	QuickReplies []QuickReply  `yaml:"quick_replies"`
	Log          LogConfig     `yaml:"log"`
	Metrics      MetricsConfig `yaml:"metrics"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			APIURL:  "http://localhost:8000",
			WSURL:   "ws://localhost:8000",
			Timeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Keychain: true,
		},
		Chat: ChatConfig{
			JoinDelay:       300 * time.Millisecond,
			PollInterval:    5 * time.Second,
			PageSize:        10,
			SessionPageSize: 10,
		},
		Socket: SocketConfig{
			HandshakeTimeout:      10 * time.Second,
			ReconnectInitialDelay: time.Second,
			ReconnectMaxDelay:     32 * time.Second,
		},
		Breaker: BreakerConfig{
			MaxFailuresRatio: 0.6,
			MinRequests:      5,
			Timeout:          30 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns CHATLINE_CONFIG or {appdir}/config.yaml.
func DefaultPath() (string, error) {
	if p := os.Getenv(EnvConfig); p != "" {
		return p, nil
	}
	return appdir.ConfigPath()
}

// Load reads path over the defaults. A missing file yields the defaults.
// Environment overrides are applied and the result validated.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	default:
		if cfg, err = Parse(data); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.QuickReplies = sliceutil.DistinctNonEmpty(cfg.QuickReplies, func(q QuickReply) string { return q.Prompt })
	return cfg, nil
}

// ApplyEnv overrides fields from CHATLINE_* variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.Server.APIURL = v
	}
	if v := os.Getenv(EnvWSURL); v != "" {
		c.Server.WSURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Auth.Token = v
	}
}

// Validate rejects configurations the client cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.APIURL) == "" {
		errs = append(errs, errors.New("server.api_url is required"))
	}
	if strings.TrimSpace(c.Server.WSURL) == "" {
		errs = append(errs, errors.New("server.ws_url is required"))
	}
	if c.Chat.JoinDelay < 0 {
		errs = append(errs, errors.New("chat.join_delay must not be negative"))
	}
	if c.Chat.PollInterval <= 0 {
		errs = append(errs, errors.New("chat.poll_interval must be positive"))
	}
	if c.Chat.PageSize <= 0 {
		errs = append(errs, errors.New("chat.page_size must be positive"))
	}
	if c.Chat.SessionPageSize <= 0 {
		errs = append(errs, errors.New("chat.session_page_size must be positive"))
	}
	if c.Socket.SendRate < 0 {
		errs = append(errs, errors.New("socket.send_rate must not be negative"))
	}
	if c.Breaker.MaxFailuresRatio <= 0 || c.Breaker.MaxFailuresRatio > 1 {
		errs = append(errs, errors.New("breaker.max_failures_ratio must be in (0, 1]"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// QuickReplyPrompts returns the prompts of the configured quick replies.
func (c *Config) QuickReplyPrompts() []string {
	out := make([]string, 0, len(c.QuickReplies))
	for _, q := range c.QuickReplies {
		out = append(out, strings.TrimSpace(q.Prompt))
	}
	return out
}
