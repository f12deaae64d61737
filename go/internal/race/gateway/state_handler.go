package gateway

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/puzzlerace/go/internal/race/orchestrator"
	"github.com/mcdev12/puzzlerace/go/internal/race/room"
	"github.com/mcdev12/puzzlerace/go/internal/race/store"
)

// StateProvider exposes read-only race state.
type StateProvider interface {
	ActiveRooms() []room.Snapshot
	RoomByCode(code string) (room.Snapshot, error)
	Stats() orchestrator.Stats
}

// RoomSummary is one entry of GET /api/rooms/active.
type RoomSummary struct {
	RoomID        string     `json:"roomId"`
	RoomCode      string     `json:"roomCode"`
	PuzzleID      string     `json:"puzzleId"`
	State         room.State `json:"state"`
	Players       []string   `json:"players"`
	CreatedAt     time.Time  `json:"createdAt"`
	TimeRemaining *int       `json:"timeRemainingSec,omitempty"`
}

// StateHandler serves the REST side of the gateway.
type StateHandler struct {
	stateProvider StateProvider
	now           func() time.Time
}

func NewStateHandler(provider StateProvider) *StateHandler {
	return &StateHandler{stateProvider: provider, now: time.Now}
}

// HandleGetActiveRooms handles GET /api/rooms/active
func (h *StateHandler) HandleGetActiveRooms(w http.ResponseWriter, r *http.Request) {
	snaps := h.stateProvider.ActiveRooms()
	out := make([]RoomSummary, 0, len(snaps))
	for _, s := range snaps {
		if s.Closed {
			continue
		}
		out = append(out, h.summarize(s))
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetRoom handles GET /api/rooms/{code}
func (h *StateHandler) HandleGetRoom(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(r.PathValue("code"))
	if code == "" {
		http.Error(w, "room code is required", http.StatusBadRequest)
		return
	}

	snap, err := h.stateProvider.RoomByCode(code)
	if errors.Is(err, store.ErrRoomNotFound) {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Error().Err(err).Str("room_code", code).Msg("failed to get room")
		http.Error(w, "failed to get room", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// HandleStats handles GET /ws/stats
func (h *StateHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stateProvider.Stats())
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/rooms/active", h.HandleGetActiveRooms)
	mux.HandleFunc("GET /api/rooms/{code}", h.HandleGetRoom)
	mux.HandleFunc("GET /ws/stats", h.HandleStats)
}

func (h *StateHandler) summarize(s room.Snapshot) RoomSummary {
	sum := RoomSummary{
		RoomID:    s.RoomID,
		RoomCode:  s.RoomCode,
		PuzzleID:  s.PuzzleID,
		State:     s.State,
		CreatedAt: s.CreatedAt,
		Players:   make([]string, 0, len(s.Players)),
	}
	for _, p := range s.Players {
		sum.Players = append(sum.Players, p.UserID)
	}
	if s.State == room.StateActive && s.Deadline != nil {
		remaining := int(s.Deadline.Sub(h.now()).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		sum.TimeRemaining = &remaining
	}
	return sum
}
