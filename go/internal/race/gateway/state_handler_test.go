package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mcdev12/puzzlerace/go/internal/race/orchestrator"
	"github.com/mcdev12/puzzlerace/go/internal/race/room"
	"github.com/mcdev12/puzzlerace/go/internal/race/store"
)

type fakeState struct {
	rooms []room.Snapshot
	stats orchestrator.Stats
}

func (f *fakeState) ActiveRooms() []room.Snapshot { return f.rooms }

func (f *fakeState) RoomByCode(code string) (room.Snapshot, error) {
	for _, r := range f.rooms {
		if r.RoomCode == code {
			return r, nil
		}
	}
	return room.Snapshot{}, store.ErrRoomNotFound
}

func (f *fakeState) Stats() orchestrator.Stats { return f.stats }

func newStateMux(state *fakeState, now time.Time) *http.ServeMux {
	h := NewStateHandler(state)
	h.now = func() time.Time { return now }
	mux := http.NewServeMux()
	h.RegisterStateRoutes(mux)
	return mux
}

func TestActiveRoomsSummaries(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	deadline := now.Add(42 * time.Second)
	state := &fakeState{rooms: []room.Snapshot{
		{
			RoomID:   "r1",
			RoomCode: "ABCDEF",
			PuzzleID: "p1",
			State:    room.StateActive,
			Deadline: &deadline,
			Players: []room.PlayerSession{
				{Identity: room.Identity{UserID: "x"}},
				{Identity: room.Identity{UserID: "y"}},
			},
		},
		{RoomID: "r2", RoomCode: "GHJKLM", State: room.StateComplete, Closed: true},
	}}

	rec := httptest.NewRecorder()
	newStateMux(state, now).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/active", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var got []RoomSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d rooms, want 1 (closed room skipped)", len(got))
	}
	if got[0].TimeRemaining == nil || *got[0].TimeRemaining != 42 {
		t.Fatalf("time remaining = %v", got[0].TimeRemaining)
	}
	if len(got[0].Players) != 2 || got[0].Players[0] != "x" {
		t.Fatalf("players = %v", got[0].Players)
	}
}

func TestGetRoomByCode(t *testing.T) {
	state := &fakeState{rooms: []room.Snapshot{{RoomID: "r1", RoomCode: "ABCDEF", State: room.StateWaitingReady}}}
	mux := newStateMux(state, time.Now())

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/abcdef", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var snap room.Snapshot
	if err := json.Unmarshal(rec.Body.Bytes(), &snap); err != nil {
		t.Fatal(err)
	}
	if snap.RoomID != "r1" {
		t.Fatalf("room = %+v", snap)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/rooms/ZZZZZZ", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	state := &fakeState{stats: orchestrator.Stats{QueueLength: 3, ActiveRooms: 2, ActivePlayers: 7}}

	rec := httptest.NewRecorder()
	newStateMux(state, time.Now()).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws/stats", nil))

	var got orchestrator.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got != state.stats {
		t.Fatalf("stats = %+v", got)
	}
}

func TestOriginChecker(t *testing.T) {
	check := OriginChecker([]string{"https://race.example"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	if !check(r) {
		t.Fatal("missing origin should pass")
	}
	r.Header.Set("Origin", "https://race.example")
	if !check(r) {
		t.Fatal("listed origin rejected")
	}
	r.Header.Set("Origin", "https://evil.example")
	if check(r) {
		t.Fatal("unlisted origin accepted")
	}
}
