package room

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mcdev12/puzzlerace/go/internal/race/scoring"
)

// Room is a two-player race around one puzzle. All mutation happens under mu,
// so concurrent ready/complete messages from both occupants never race.
type Room struct {
	ID        string
	Code      string
	PuzzleID  string
	CreatedAt time.Time

	rules scoring.Rules

	mu        sync.Mutex
	players   [2]*PlayerSession
	state     State
	startedAt *time.Time
	deadline  *time.Time
	result    *scoring.MatchResult
	closed    bool
}

// New creates a room in WAITING_READY holding exactly the two given players.
func New(id, code, puzzleID string, a, b Identity, rules scoring.Rules, now time.Time) *Room {
	return &Room{
		ID:        id,
		Code:      code,
		PuzzleID:  puzzleID,
		CreatedAt: now,
		rules:     rules,
		players: [2]*PlayerSession{
			{Identity: a},
			{Identity: b},
		},
		state: StateWaitingReady,
	}
}

// Ready marks userID ready. When both players are ready the room becomes
// ACTIVE and the race clock starts at now.
func (r *Room) Ready(userID string, now time.Time) ([]Effect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.playerLocked(userID)
	if err != nil {
		return nil, err
	}
	if r.state != StateWaitingReady {
		return nil, ErrWrongState
	}
	if p.Ready {
		return nil, ErrAlreadyReady
	}
	p.Ready = true

	for _, ps := range r.players {
		if !ps.Ready {
			return nil, nil
		}
	}

	start := now
	deadline := now.Add(r.rules.RaceDuration)
	r.startedAt = &start
	r.deadline = &deadline
	r.setStateLocked(StateActive)

	return []Effect{Started{
		RoomID:    r.ID,
		StartedAt: start,
		Deadline:  deadline,
		Duration:  r.rules.RaceDuration,
		Players:   r.playerIDsLocked(),
	}}, nil
}

// Complete records userID's completion report. A second report from the same
// player is rejected and leaves the first one untouched. A report arriving at
// or after the deadline resolves the race as a timeout instead.
func (r *Room) Complete(userID string, forfeit bool, now time.Time) ([]Effect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.playerLocked(userID)
	if err != nil {
		return nil, err
	}
	if r.state != StateActive {
		return nil, ErrWrongState
	}
	if p.Completed {
		return nil, ErrAlreadyCompleted
	}
	if !now.Before(*r.deadline) {
		return []Effect{r.finishLocked(true)}, nil
	}

	at := now
	p.Completed = true
	p.Forfeited = forfeit
	p.CompletedAt = &at
	elapsed := now.Sub(*r.startedAt)
	p.TimeTakenSeconds = elapsed.Seconds()
	if !forfeit {
		p.Score = r.rules.Score(elapsed)
	}

	for _, ps := range r.players {
		if !ps.Completed {
			return nil, nil
		}
	}
	return []Effect{r.finishLocked(false)}, nil
}

// Move relays opponent-progress data during the race.
func (r *Room) Move(userID string, data json.RawMessage) ([]Effect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.playerLocked(userID); err != nil {
		return nil, err
	}
	if r.state != StateActive {
		return nil, ErrWrongState
	}
	return []Effect{MoveRelayed{
		RoomID: r.ID,
		From:   userID,
		To:     r.opponentLocked(userID).UserID,
		Data:   data,
	}}, nil
}

// Disconnect flags userID as gone. The race keeps running; a player who never
// comes back is scored like a timeout at the deadline.
func (r *Room) Disconnect(userID string) ([]Effect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.playerLocked(userID)
	if err != nil {
		return nil, err
	}
	if p.Disconnected {
		return nil, nil
	}
	p.Disconnected = true

	if r.state == StateComplete {
		return nil, nil
	}
	return []Effect{OpponentDisconnected{
		RoomID:       r.ID,
		UserID:       userID,
		NotifyUserID: r.opponentLocked(userID).UserID,
	}}, nil
}

// Expire resolves an ACTIVE race whose deadline has passed.
func (r *Room) Expire(now time.Time) ([]Effect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRoomClosed
	}
	if r.state != StateActive {
		return nil, ErrWrongState
	}
	if now.Before(*r.deadline) {
		return nil, ErrDeadlineNotReached
	}
	return []Effect{r.finishLocked(true)}, nil
}

// Abandon closes a room whose ready check never finished.
func (r *Room) Abandon(reason string) ([]Effect, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRoomClosed
	}
	if r.state != StateWaitingReady {
		return nil, ErrWrongState
	}
	r.closed = true
	return []Effect{Cancelled{
		RoomID:  r.ID,
		Reason:  reason,
		Players: r.playerIDsLocked(),
	}}, nil
}

// Close rejects every later command. Used at teardown.
func (r *Room) Close() {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
}

// State returns the current lifecycle state.
func (r *Room) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Deadline returns the race deadline, or false before the race started.
func (r *Room) Deadline() (time.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.deadline == nil {
		return time.Time{}, false
	}
	return *r.deadline, true
}

// Players returns both identities in insertion order.
func (r *Room) Players() [2]Identity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return [2]Identity{r.players[0].Identity, r.players[1].Identity}
}

// Opponent returns the identity of the other occupant.
func (r *Room) Opponent(userID string) (Identity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.findLocked(userID); err != nil {
		return Identity{}, err
	}
	return r.opponentLocked(userID).Identity, nil
}

// Snapshot copies the room for read-only use.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		RoomID:    r.ID,
		RoomCode:  r.Code,
		PuzzleID:  r.PuzzleID,
		State:     r.state,
		CreatedAt: r.CreatedAt,
		Players:   make([]PlayerSession, 0, len(r.players)),
		Closed:    r.closed,
	}
	if r.startedAt != nil {
		t := *r.startedAt
		s.StartedAt = &t
	}
	if r.deadline != nil {
		t := *r.deadline
		s.Deadline = &t
	}
	if r.result != nil {
		res := *r.result
		s.Result = &res
	}
	for _, p := range r.players {
		s.Players = append(s.Players, *p)
	}
	return s
}

func (r *Room) finishLocked(timedOut bool) Finished {
	completions := make([]scoring.Completion, 0, len(r.players))
	for _, p := range r.players {
		c := scoring.Completion{
			UserID:    p.UserID,
			Completed: p.Completed,
			Forfeited: p.Forfeited,
		}
		if p.CompletedAt != nil {
			c.Elapsed = p.CompletedAt.Sub(*r.startedAt)
		}
		completions = append(completions, c)
	}

	result := scoring.Evaluate(r.ID, r.rules, completions)
	for i, pr := range result.Players {
		r.players[i].Score = pr.Score
		r.players[i].TimeTakenSeconds = pr.TimeTakenSeconds
	}
	r.result = &result
	r.setStateLocked(StateComplete)

	return Finished{
		Result:   result,
		TimedOut: timedOut,
		Players:  r.playerIDsLocked(),
	}
}

func (r *Room) setStateLocked(next State) {
	if next.rank() <= r.state.rank() {
		panic(fmt.Sprintf("room %s: illegal transition %s -> %s", r.ID, r.state, next))
	}
	r.state = next
}

func (r *Room) playerLocked(userID string) (*PlayerSession, error) {
	if r.closed {
		return nil, ErrRoomClosed
	}
	return r.findLocked(userID)
}

func (r *Room) findLocked(userID string) (*PlayerSession, error) {
	for _, p := range r.players {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, ErrNotInRoom
}

func (r *Room) opponentLocked(userID string) *PlayerSession {
	if r.players[0].UserID == userID {
		return r.players[1]
	}
	return r.players[0]
}

func (r *Room) playerIDsLocked() []string {
	return []string{r.players[0].UserID, r.players[1].UserID}
}
