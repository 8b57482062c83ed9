package chat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/inercia/chatline/internal/logging"
	"github.com/inercia/chatline/internal/metrics"
)

// DefaultPageSize is the number of messages requested per history page.
const DefaultPageSize = 10

// RecordPage is one page of raw history records plus pager metadata.
type RecordPage struct {
	Items     []Record
	Page      int
	PageCount int
}

// MessageFetcher fetches raw history pages. Pages are 1-based and
// newest-first.
type MessageFetcher interface {
	FetchMessages(ctx context.Context, id SessionID, page, limit int) (*RecordPage, error)
}

// HistoryPage is a normalized history page.
type HistoryPage struct {
	Messages  []Message
	Page      int
	PageCount int
}

// HasMore reports whether older pages remain.
func (p *HistoryPage) HasMore() bool {
	return p.Page < p.PageCount
}

// HistoryLoader fetches and normalizes history pages for a session.
type HistoryLoader struct {
	fetcher  MessageFetcher
	pageSize int
	logger   *slog.Logger
}

// NewHistoryLoader creates a loader requesting pageSize messages per page.
// A non-positive pageSize uses DefaultPageSize.
func NewHistoryLoader(fetcher MessageFetcher, pageSize int) *HistoryLoader {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &HistoryLoader{
		fetcher:  fetcher,
		pageSize: pageSize,
		logger:   logging.History(),
	}
}

// PageSize returns the configured page size.
func (l *HistoryLoader) PageSize() int {
	return l.pageSize
}

// Load fetches one page of history for a session.
func (l *HistoryLoader) Load(ctx context.Context, id SessionID, page int) (*HistoryPage, error) {
	if page < 1 {
		page = 1
	}
	rp, err := l.fetcher.FetchMessages(ctx, id, page, l.pageSize)
	if err != nil {
		metrics.HistoryFetches.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("load history for session %s page %d: %w", id, page, err)
	}
	metrics.HistoryFetches.WithLabelValues("ok").Inc()

	msgs := make([]Message, 0, len(rp.Items))
	for _, r := range rp.Items {
		msgs = append(msgs, r.Normalize())
	}
	l.logger.Debug("History page loaded",
		"session_id", int64(id),
		"page", rp.Page,
		"page_count", rp.PageCount,
		"count", len(msgs))

	hp := &HistoryPage{Messages: msgs, Page: rp.Page, PageCount: rp.PageCount}
	if hp.Page < 1 {
		hp.Page = page
	}
	return hp, nil
}

// LoadAll fetches every page of a session's history and returns the
// messages newest first. It stops at the last page or at the first empty
// one.
func (l *HistoryLoader) LoadAll(ctx context.Context, id SessionID) ([]Message, error) {
	var all []Message
	for page := 1; ; page++ {
		hp, err := l.Load(ctx, id, page)
		if err != nil {
			return nil, err
		}
		all = append(all, hp.Messages...)
		if len(hp.Messages) == 0 || !hp.HasMore() {
			return all, nil
		}
	}
}
