package client

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/inercia/chatline/internal/chat"
)

// GetSessions returns one page of the user's sessions, newest first.
func (c *Client) GetSessions(ctx context.Context, page, limit int) (*ListResponse[SessionInfo], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))

	var out ListResponse[SessionInfo]
	if err := c.doJSON(ctx, "list sessions", http.MethodGet, c.apiURL("/api/sessions", q), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListSessions implements chat.SessionSource.
func (c *Client) ListSessions(ctx context.Context, page, limit int) (*chat.SessionPage, error) {
	resp, err := c.GetSessions(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	sp := &chat.SessionPage{Page: resp.Pager.Page, PageCount: resp.Pager.PageCount}
	for _, s := range resp.Items {
		sp.Items = append(sp.Items, s.toSession())
	}
	return sp, nil
}

// CreateSession creates an empty session.
func (c *Client) CreateSession(ctx context.Context) (chat.Session, error) {
	var out SessionInfo
	if err := c.doJSON(ctx, "create session", http.MethodPost, c.apiURL("/api/sessions", nil), nil, &out); err != nil {
		return chat.Session{}, err
	}
	return out.toSession(), nil
}

// GetSession returns a single session.
func (c *Client) GetSession(ctx context.Context, id chat.SessionID) (chat.Session, error) {
	var out SessionInfo
	u := c.apiURL("/api/sessions/"+url.PathEscape(id.String()), nil)
	if err := c.doJSON(ctx, "get session", http.MethodGet, u, nil, &out); err != nil {
		return chat.Session{}, err
	}
	return out.toSession(), nil
}

// RenameSession sets a session's display name.
func (c *Client) RenameSession(ctx context.Context, id chat.SessionID, name string) (chat.Session, error) {
	var out SessionInfo
	u := c.apiURL("/api/sessions/"+url.PathEscape(id.String()), nil)
	if err := c.doJSON(ctx, "rename session", http.MethodPut, u, renameRequest{Name: name}, &out); err != nil {
		return chat.Session{}, err
	}
	return out.toSession(), nil
}
