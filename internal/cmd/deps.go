package cmd

import (
	"fmt"

	"github.com/inercia/chatline/internal/appdir"
	"github.com/inercia/chatline/internal/client"
	"github.com/inercia/chatline/internal/config"
	"github.com/inercia/chatline/internal/logging"
	"github.com/inercia/chatline/internal/secrets"
	"github.com/inercia/chatline/internal/token"
)

// tokenSource is the configured access token chain plus the file provider
// (if any) so callers can watch and close it.
type tokenSource struct {
	token.Chain
	file *token.File
}

// Close stops the token file watcher.
func (t *tokenSource) Close() error {
	if t.file == nil {
		return nil
	}
	return t.file.Close()
}

// newTokenSource returns the providers in priority order: explicit token,
// token file, keychain.
func newTokenSource(c *config.Config) (*tokenSource, error) {
	ts := &tokenSource{}
	if c.Auth.Token != "" {
		ts.Chain = append(ts.Chain, token.Static(c.Auth.Token))
	}

	path := c.Auth.TokenFile
	if path == "" {
		var err error
		if path, err = appdir.TokenPath(); err != nil {
			return nil, err
		}
	}
	ts.file = token.NewFile(path)
	ts.Chain = append(ts.Chain, ts.file)

	if c.Auth.Keychain && secrets.IsSupported() {
		ts.Chain = append(ts.Chain, token.Keychain{Store: secrets.Default()})
	}
	return ts, nil
}

// watch follows the token file so a refreshed token is picked up without
// a restart. Failure to watch is logged and otherwise ignored.
func (t *tokenSource) watch() {
	if t.file == nil {
		return
	}
	if err := t.file.Watch(); err != nil {
		logging.Token().Warn("Cannot watch token file", "path", t.file.Path(), "error", err)
	}
}

func newAPIClient(c *config.Config, tokens token.Provider) *client.Client {
	return client.New(c.Server.APIURL, tokens,
		client.WithTimeout(c.Server.Timeout),
		client.WithBreaker(client.BreakerSettings{
			MaxFailuresRatio: c.Breaker.MaxFailuresRatio,
			MinRequests:      c.Breaker.MinRequests,
			Timeout:          c.Breaker.Timeout,
		}),
	)
}

func newSocket(c *config.Config, tokens token.Provider) *client.Socket {
	return client.NewSocket(client.SocketConfig{
		URL:                   c.Server.WSURL,
		HandshakeTimeout:      c.Socket.HandshakeTimeout,
		Reconnect:             c.Socket.Reconnect,
		ReconnectInitialDelay: c.Socket.ReconnectInitialDelay,
		ReconnectMaxDelay:     c.Socket.ReconnectMaxDelay,
		SendRate:              c.Socket.SendRate,
	}, tokens)
}

func requireConfig() (*config.Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration not loaded")
	}
	return cfg, nil
}
