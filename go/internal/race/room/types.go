package room

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/puzzlerace/go/internal/race/scoring"
)

// State is the lifecycle position of a room. It only ever moves forward.
type State string

const (
	StateWaitingReady State = "WAITING_READY"
	StateActive       State = "ACTIVE"
	StateComplete     State = "COMPLETE"
)

func (s State) rank() int {
	switch s {
	case StateWaitingReady:
		return 0
	case StateActive:
		return 1
	case StateComplete:
		return 2
	}
	return -1
}

// Identity is the read-only player identity supplied by the profile service.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// PlayerSession is one occupant's state inside a room.
type PlayerSession struct {
	Identity
	Ready            bool       `json:"ready"`
	Completed        bool       `json:"completed"`
	Forfeited        bool       `json:"forfeited,omitempty"`
	Score            int        `json:"score"`
	TimeTakenSeconds float64    `json:"timeTakenSeconds"`
	Disconnected     bool       `json:"disconnected"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// Snapshot is a copy of a room's state safe to hand out without the lock.
type Snapshot struct {
	RoomID    string               `json:"roomId"`
	RoomCode  string               `json:"roomCode"`
	PuzzleID  string               `json:"puzzleId"`
	State     State                `json:"state"`
	CreatedAt time.Time            `json:"createdAt"`
	StartedAt *time.Time           `json:"startedAt,omitempty"`
	Deadline  *time.Time           `json:"deadline,omitempty"`
	Players   []PlayerSession      `json:"players"`
	Result    *scoring.MatchResult `json:"result,omitempty"`
	Closed    bool                 `json:"closed"`
}

// Effect is something the room asks its owner to do after a transition.
type Effect interface {
	effect()
}

// Started is emitted once, when both players are ready.
type Started struct {
	RoomID    string
	StartedAt time.Time
	Deadline  time.Time
	Duration  time.Duration
	Players   []string
}

// MoveRelayed forwards an opponent-progress update. It has no state effect.
type MoveRelayed struct {
	RoomID string
	From   string
	To     string
	Data   json.RawMessage
}

// OpponentDisconnected tells NotifyUserID that UserID dropped.
type OpponentDisconnected struct {
	RoomID       string
	UserID       string
	NotifyUserID string
}

// Finished carries the result of the transition to COMPLETE.
type Finished struct {
	Result   scoring.MatchResult
	TimedOut bool
	Players  []string
}

// Cancelled is emitted when a room is abandoned before the race started.
type Cancelled struct {
	RoomID  string
	Reason  string
	Players []string
}

func (Started) effect()              {}
func (MoveRelayed) effect()          {}
func (OpponentDisconnected) effect() {}
func (Finished) effect()             {}
func (Cancelled) effect()            {}
