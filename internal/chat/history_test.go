package chat

import (
	"context"
	"errors"
	"testing"
)

func TestHistoryLoader_Load(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set(5, page(1, 3, record(2, "b", DirectionSystem), record(1, "a", DirectionUser)))
	l := NewHistoryLoader(fetcher, 0)

	if l.PageSize() != DefaultPageSize {
		t.Errorf("PageSize = %d, want %d", l.PageSize(), DefaultPageSize)
	}

	hp, err := l.Load(context.Background(), 5, 0)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if call := fetcher.lastCall(); call.Page != 1 || call.Limit != DefaultPageSize {
		t.Errorf("fetch call = %+v, want page 1 limit %d", call, DefaultPageSize)
	}
	if len(hp.Messages) != 2 || hp.Messages[0].ID != 2 {
		t.Errorf("Messages = %+v", hp.Messages)
	}
	if !hp.HasMore() {
		t.Error("HasMore should be true for page 1 of 3")
	}
}

func TestHistoryLoader_LoadError(t *testing.T) {
	fetcher := newFakeFetcher()
	cause := errors.New("breaker open")
	fetcher.setErr(cause)

	_, err := NewHistoryLoader(fetcher, 10).Load(context.Background(), 1, 2)
	if !errors.Is(err, cause) {
		t.Errorf("Load error = %v, want wrapped %v", err, cause)
	}
}

func TestHistoryLoader_LoadAll(t *testing.T) {
	fetcher := newFakeFetcher()
	fetcher.set(9,
		page(1, 3, record(6, "f", DirectionSystem), record(5, "e", DirectionUser)),
		page(2, 3, record(4, "d", DirectionSystem), record(3, "c", DirectionUser)),
		page(3, 3, record(2, "b", DirectionSystem)),
	)
	l := NewHistoryLoader(fetcher, 2)

	msgs, err := l.LoadAll(context.Background(), 9)
	if err != nil {
		t.Fatalf("LoadAll failed: %v", err)
	}
	if len(msgs) != 5 || msgs[0].ID != 6 || msgs[4].ID != 2 {
		t.Errorf("LoadAll = %+v", msgs)
	}
	if fetcher.callCount() != 3 {
		t.Errorf("fetches = %d, want 3", fetcher.callCount())
	}
}

func TestHistoryLoader_LoadAllStopsOnEmptyPage(t *testing.T) {
	fetcher := newFakeFetcher()
	// Unknown pages come back empty with a page count of 1.
	l := NewHistoryLoader(fetcher, 2)
	msgs, err := l.LoadAll(context.Background(), 1)
	if err != nil || len(msgs) != 0 {
		t.Errorf("LoadAll = %v, %v", msgs, err)
	}
	if fetcher.callCount() != 1 {
		t.Errorf("fetches = %d, want 1", fetcher.callCount())
	}
}
