package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/inercia/chatline/internal/logging"
	"github.com/inercia/chatline/internal/metrics"
	"github.com/inercia/chatline/internal/token"
)

// ErrNotFound is matched by StatusErrors with a 404 code.
var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx REST response.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.Code, e.Body)
}

// Is makes errors.Is(err, ErrNotFound) true for 404 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.Code == http.StatusNotFound
}

// BreakerSettings configures the REST circuit breaker.
type BreakerSettings struct {
	// MaxFailuresRatio opens the breaker once this share of requests failed.
	MaxFailuresRatio float64
	// MinRequests is the sample size needed before the ratio applies.
	MinRequests uint32
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration
}

// DefaultBreakerSettings opens after 60% failures over at least 5 requests.
var DefaultBreakerSettings = BreakerSettings{
	MaxFailuresRatio: 0.6,
	MinRequests:      5,
	Timeout:          30 * time.Second,
}

// Client calls the chat REST API. It is safe for concurrent use.
type Client struct {
	baseURL    string
	tokens     token.Provider
	httpClient *http.Client
	breaker    BreakerSettings
	cb         *gobreaker.CircuitBreaker[*http.Response]
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithBreaker overrides the circuit breaker settings.
func WithBreaker(s BreakerSettings) Option {
	return func(client *Client) {
		client.breaker = s
	}
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) Option {
	return func(client *Client) {
		client.logger = l
	}
}

// New creates a REST client. baseURL is the API origin, e.g.
// "http://localhost:8000". tokens may be nil for unauthenticated use.
func New(baseURL string, tokens token.Provider, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: DefaultBreakerSettings,
		logger:  logging.History(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.WithClient(c.logger, uuid.NewString())
	c.cb = c.newBreaker("chat-api")
	return c
}

func (c *Client) newBreaker(name string) *gobreaker.CircuitBreaker[*http.Response] {
	metrics.BreakerState.WithLabelValues(name).Set(0)
	settings := c.breaker
	return gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < settings.MinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			if ratio >= settings.MaxFailuresRatio {
				c.logger.Warn("Opening circuit breaker",
					"failures", counts.TotalFailures,
					"failure_rate", ratio)
				return true
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.logger.Info("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
			metrics.BreakerState.WithLabelValues(name).Set(breakerStateValue(to))
		},
	})
}

func breakerStateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// BaseURL returns the API origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// apiURL builds an absolute URL for path with optional query values.
func (c *Client) apiURL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// do sends a request through the breaker. Transport errors and 5xx
// responses count as breaker failures; other non-2xx responses are
// returned as *StatusError without tripping it. On success the caller
// owns resp.Body.
func (c *Client) do(ctx context.Context, op, method, u string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal: %w", op, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		tok, err := c.tokens.AccessToken()
		if err != nil && !errors.Is(err, token.ErrNoToken) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if tok != "" {
			req.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.cb.Execute(func() (*http.Response, error) {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, statusError(op, resp)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			c.logger.Warn("Request rejected by circuit breaker", "op", op)
		}
		var se *StatusError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError(op, resp)
	}
	return resp, nil
}

// statusError drains and closes resp.
func statusError(op string, resp *http.Response) *StatusError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	return &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// doJSON performs a request and decodes the JSON response into out.
func (c *Client) doJSON(ctx context.Context, op, method, u string, body, out any) error {
	resp, err := c.do(ctx, op, method, u, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode: %w", op, err)
	}
	return nil
}
