package events

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/puzzlerace/go/internal/race/scoring"
)

// Payload types shared between the orchestrator, gateway and outbox.

// Type names a websocket message in either direction.
type Type string

// Inbound
const (
	TypeJoinMatchmaking  Type = "join_matchmaking"
	TypeLeaveMatchmaking Type = "leave_matchmaking"
	TypePlayerReady      Type = "player_ready"
	TypeGameMove         Type = "game_move"
	TypeGameComplete     Type = "game_complete"
	TypeGetActivePlayers Type = "get_active_players"
)

// Outbound
const (
	TypeConnected          Type = "connected"
	TypeMatchmakingJoined  Type = "matchmaking_joined"
	TypeMatchmakingLeft    Type = "matchmaking_left"
	TypeMatchFound         Type = "match_found"
	TypeGameStart          Type = "game_start"
	TypeGameResults        Type = "game_results"
	TypePlayerDisconnected Type = "player_disconnected"
	TypeActivePlayersCount Type = "active_players_count"
	TypeMatchCancelled     Type = "match_cancelled"
	TypeError              Type = "error"
)

// JoinMatchmakingPayload asks to be queued. Identity comes from the
// authenticated connection, so every field is optional.
type JoinMatchmakingPayload struct {
	UserID string `json:"userId,omitempty" validate:"omitempty,max=128"`
}

// LeaveMatchmakingPayload asks to leave the queue.
type LeaveMatchmakingPayload struct {
	UserID string `json:"userId,omitempty" validate:"omitempty,max=128"`
}

// PlayerReadyPayload acknowledges a match.
type PlayerReadyPayload struct {
	UserID string `json:"userId,omitempty" validate:"omitempty,max=128"`
	RoomID string `json:"roomId" validate:"required,uuid"`
}

// GameMovePayload carries opaque opponent-progress data.
type GameMovePayload struct {
	UserID string          `json:"userId,omitempty" validate:"omitempty,max=128"`
	RoomID string          `json:"roomId" validate:"required,uuid"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// GameCompletePayload reports a finished puzzle. Score and TimeTakenSeconds
// are informational; the server scores from its own clock.
type GameCompletePayload struct {
	UserID           string  `json:"userId,omitempty" validate:"omitempty,max=128"`
	RoomID           string  `json:"roomId" validate:"required,uuid"`
	Score            int     `json:"score,omitempty" validate:"gte=0"`
	TimeTakenSeconds float64 `json:"timeTakenSeconds,omitempty" validate:"gte=0"`
	Forfeit          bool    `json:"forfeit,omitempty"`
}

// PlayerInfo is the public identity of a player.
type PlayerInfo struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar,omitempty"`
}

// ConnectedPayload greets a freshly authenticated connection.
type ConnectedPayload struct {
	PlayerInfo
	ConnectionID  string `json:"connectionId"`
	ActivePlayers int    `json:"activePlayers"`
}

// MatchmakingJoinedPayload confirms a queue entry.
type MatchmakingJoinedPayload struct {
	Position  int `json:"position"`
	QueueSize int `json:"queueSize"`
}

// MatchmakingLeftPayload confirms a queue exit.
type MatchmakingLeftPayload struct {
	UserID  string `json:"userId"`
	Removed bool   `json:"removed"`
}

// MatchFoundPayload tells a player who they were paired with.
type MatchFoundPayload struct {
	RoomID          string     `json:"roomId"`
	RoomCode        string     `json:"roomCode"`
	PuzzleID        string     `json:"puzzleId"`
	Opponent        PlayerInfo `json:"opponent"`
	ReadyTimeoutSec int        `json:"readyTimeoutSec,omitempty"`
}

// GameStartPayload starts the shared countdown.
type GameStartPayload struct {
	RoomID          string    `json:"roomId"`
	PuzzleID        string    `json:"puzzleId"`
	StartedAt       time.Time `json:"startedAt"`
	Deadline        time.Time `json:"deadline"`
	DurationSeconds int       `json:"durationSeconds"`
}

// GameResultsPayload carries the final MatchResult.
type GameResultsPayload struct {
	scoring.MatchResult
	TimedOut  bool `json:"timedOut"`
	WinReward int  `json:"winReward,omitempty"`
}

// PlayerDisconnectedPayload tells the remaining player their opponent left.
type PlayerDisconnectedPayload struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId"`
}

// ActivePlayersCountPayload is broadcast whenever the connection count changes.
type ActivePlayersCountPayload struct {
	Count int `json:"count"`
}

// GameMoveRelayPayload forwards an opponent's move.
type GameMoveRelayPayload struct {
	RoomID string          `json:"roomId"`
	UserID string          `json:"userId"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// MatchCancelledPayload closes a match whose ready check never finished.
type MatchCancelledPayload struct {
	RoomID string `json:"roomId"`
	Reason string `json:"reason"`
}

// ErrorPayload answers malformed input.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes sent in ErrorPayload.
const (
	ErrCodeBadJSON     = "bad_json"
	ErrCodeUnknownType = "unknown_type"
	ErrCodeInvalid     = "invalid_payload"
)

// MatchCreatedPayload is published when a room is created.
type MatchCreatedPayload struct {
	RoomID    string    `json:"room_id"`
	RoomCode  string    `json:"room_code"`
	PuzzleID  string    `json:"puzzle_id"`
	Players   []string  `json:"players"`
	CreatedAt time.Time `json:"created_at"`
}

// MatchCompletedPayload is published when a race is scored.
type MatchCompletedPayload struct {
	RoomID       string                 `json:"room_id"`
	PuzzleID     string                 `json:"puzzle_id"`
	WinnerUserID *string                `json:"winner_user_id"`
	Players      []scoring.PlayerResult `json:"players"`
	TimedOut     bool                   `json:"timed_out"`
	CompletedAt  time.Time              `json:"completed_at"`
}
