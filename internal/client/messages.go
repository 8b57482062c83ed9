package client

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/inercia/chatline/internal/chat"
)

// GetMessages returns one page of a session's history, newest first.
func (c *Client) GetMessages(ctx context.Context, id chat.SessionID, page, limit int) (*ListResponse[MessageInfo], error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	u := c.apiURL("/api/sessions/"+url.PathEscape(id.String())+"/messages", q)

	var out ListResponse[MessageInfo]
	if err := c.doJSON(ctx, "get messages", http.MethodGet, u, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchMessages implements chat.MessageFetcher.
func (c *Client) FetchMessages(ctx context.Context, id chat.SessionID, page, limit int) (*chat.RecordPage, error) {
	resp, err := c.GetMessages(ctx, id, page, limit)
	if err != nil {
		return nil, err
	}
	rp := &chat.RecordPage{Page: resp.Pager.Page, PageCount: resp.Pager.PageCount}
	for _, m := range resp.Items {
		rp.Items = append(rp.Items, m.toRecord())
	}
	return rp, nil
}

// Download is a file attached to a message. The caller must close Body.
type Download struct {
	Body        io.ReadCloser
	Filename    string
	ContentType string
	Size        int64
}

// DefaultDownloadName is used when neither the response nor the caller
// names the file.
const DefaultDownloadName = "download"

// DownloadMessageFile fetches the file generated for a message.
// fallbackName is used when the response carries no filename.
func (c *Client) DownloadMessageFile(ctx context.Context, messageID int64, fallbackName string) (*Download, error) {
	u := c.apiURL("/api/sessions/messages/"+strconv.FormatInt(messageID, 10)+"/download", nil)
	resp, err := c.do(ctx, "download file", http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	name := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = fallbackName
	}
	if name == "" {
		name = DefaultDownloadName
	}
	return &Download{
		Body:        resp.Body,
		Filename:    name,
		ContentType: resp.Header.Get("Content-Type"),
		Size:        resp.ContentLength,
	}, nil
}

func filenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}

// SaveTo copies the download to w and closes the body.
func (d *Download) SaveTo(w io.Writer) (int64, error) {
	defer d.Body.Close()
	n, err := io.Copy(w, d.Body)
	if err != nil {
		return n, fmt.Errorf("save %s: %w", d.Filename, err)
	}
	return n, nil
}
