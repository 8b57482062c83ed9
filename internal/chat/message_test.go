package chat

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
)

func TestSessionID_JSON(t *testing.T) {
	data, err := json.Marshal(struct {
		ID SessionID `json:"session_id"`
	}{ID: 42})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `{"session_id":"42"}` {
		t.Errorf("Marshal = %s, want session id as a string", data)
	}

	tests := []struct {
		in   string
		want SessionID
	}{
		{`42`, 42},
		{`"42"`, 42},
		{`null`, NoSession},
		{`""`, NoSession},
	}
	for _, tt := range tests {
		var id SessionID
		if err := json.Unmarshal([]byte(tt.in), &id); err != nil {
			t.Errorf("Unmarshal(%s) failed: %v", tt.in, err)
			continue
		}
		if id != tt.want {
			t.Errorf("Unmarshal(%s) = %v, want %v", tt.in, id, tt.want)
		}
	}

	var id SessionID
	if err := json.Unmarshal([]byte(`"abc"`), &id); err == nil {
		t.Error("Unmarshal of a non-numeric string should fail")
	}
}

func TestParseSessionID(t *testing.T) {
	id, err := ParseSessionID(" 17 ")
	if err != nil || id != 17 {
		t.Errorf("ParseSessionID = %v, %v; want 17, nil", id, err)
	}
	if _, err := ParseSessionID("x"); err == nil {
		t.Error("expected an error for a non-numeric id")
	}
}

func TestRecord_Normalize(t *testing.T) {
	r := Record{ID: 7, Message: "see attached", Direction: DirectionSystem, CreatedAt: "2024-05-01T10:00:00.123456Z", HasFile: true, FileName: "a.csv"}
	m := r.Normalize()

	fc, ok := m.File()
	if !ok || fc.Filename != "a.csv" || fc.Body != "see attached" {
		t.Errorf("File() = %+v, %v", fc, ok)
	}
	want := time.Date(2024, 5, 1, 10, 0, 0, 123456000, time.UTC)
	if !m.CreatedAt.Equal(want) {
		t.Errorf("CreatedAt = %v, want %v", m.CreatedAt, want)
	}

	plain := Record{ID: 8, Message: "hi", Direction: DirectionUser, CreatedAt: "bogus"}.Normalize()
	if _, ok := plain.File(); ok {
		t.Error("plain record should not normalize to a file message")
	}
	if !plain.FromUser() || plain.Text() != "hi" || !plain.CreatedAt.IsZero() {
		t.Errorf("plain = %+v", plain)
	}
}

func TestMessageList_Order(t *testing.T) {
	var l MessageList
	if _, ok := l.Newest(); ok {
		t.Fatal("empty list should have no newest message")
	}

	l.Replace([]Message{{ID: 3}, {ID: 2}})
	l.AppendOlder(Message{ID: 1})
	l.Prepend(Message{ID: 4})

	got := l.Snapshot()
	for i, want := range []int64{4, 3, 2, 1} {
		if got[i].ID != want {
			t.Fatalf("Snapshot ids = %v, want newest first", got)
		}
	}
	if newest, _ := l.Newest(); newest.ID != 4 {
		t.Errorf("Newest = %d, want 4", newest.ID)
	}

	got[0].ID = 100
	if newest, _ := l.Newest(); newest.ID != 4 {
		t.Error("Snapshot should return a copy")
	}

	l.Clear()
	if l.Len() != 0 {
		t.Errorf("Len after Clear = %d", l.Len())
	}
}

func TestDirection_String(t *testing.T) {
	if DirectionUser.String() != "user" || DirectionSystem.String() != "system" {
		t.Error("unexpected direction names")
	}
	if Direction(9).String() != "direction(9)" {
		t.Errorf("unknown direction = %q", Direction(9).String())
	}
}
