package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/puzzlerace/go/internal/race/events"
	"github.com/mcdev12/puzzlerace/go/internal/race/queue"
	"github.com/mcdev12/puzzlerace/go/internal/race/room"
	"github.com/mcdev12/puzzlerace/go/internal/race/store"
)

// JoinMatchmaking queues a player and starts a match when a partner is
// waiting.
func (o *Orchestrator) JoinMatchmaking(ctx context.Context, id room.Identity) error {
	res, pair := o.queue.Enqueue(queue.Entry{Identity: id, EnqueuedAt: o.clock.Now()})

	switch res {
	case queue.InRoom, queue.Reserved:
		return fmt.Errorf("join %s: %w", id.UserID, ErrAlreadyInRoom)
	case queue.AlreadyQueued:
		log.Debug().Str("user_id", id.UserID).Msg("already queued")
	}

	o.notifier.SendToUser(id.UserID, events.TypeMatchmakingJoined, events.MatchmakingJoinedPayload{
		Position:  o.queue.Position(id.UserID),
		QueueSize: o.queue.Len(),
	})

	if pair != nil {
		o.createMatch(ctx, *pair)
	}
	return nil
}

// LeaveMatchmaking removes a waiting player. It does nothing to a player who
// has already been paired.
func (o *Orchestrator) LeaveMatchmaking(userID string) {
	removed := o.queue.Dequeue(userID)
	o.notifier.SendToUser(userID, events.TypeMatchmakingLeft, events.MatchmakingLeftPayload{
		UserID:  userID,
		Removed: removed,
	})
}

func (o *Orchestrator) PlayerReady(ctx context.Context, userID, roomID string) error {
	r, err := o.store.Get(roomID)
	if err != nil {
		return err
	}
	effects, err := r.Ready(userID, o.clock.Now())
	if err != nil {
		return err
	}
	o.apply(ctx, r, effects)
	return nil
}

func (o *Orchestrator) GameMove(ctx context.Context, userID, roomID string, data json.RawMessage) error {
	r, err := o.store.Get(roomID)
	if err != nil {
		return err
	}
	effects, err := r.Move(userID, data)
	if err != nil {
		return err
	}
	o.apply(ctx, r, effects)
	return nil
}

// GameComplete records a completion report timed by the server clock.
func (o *Orchestrator) GameComplete(ctx context.Context, userID, roomID string, forfeit bool) error {
	r, err := o.store.Get(roomID)
	if err != nil {
		return err
	}
	effects, err := r.Complete(userID, forfeit, o.clock.Now())
	if err != nil {
		return err
	}
	o.apply(ctx, r, effects)
	return nil
}

// Disconnect handles a dropped connection: the player leaves the queue, and
// a room they occupy is told about it without ending the race.
func (o *Orchestrator) Disconnect(ctx context.Context, userID string) {
	if o.queue.Dequeue(userID) {
		log.Info().Str("user_id", userID).Msg("removed disconnected player from queue")
	}

	r, err := o.store.RoomOf(userID)
	if errors.Is(err, store.ErrRoomNotFound) {
		return
	}
	effects, err := r.Disconnect(userID)
	if err != nil {
		log.Debug().Err(err).Str("user_id", userID).Str("room_id", r.ID).Msg("disconnect ignored")
		return
	}
	o.apply(ctx, r, effects)
}

// ActivePlayers answers a get_active_players request.
func (o *Orchestrator) ActivePlayers(userID string) {
	o.notifier.SendToUser(userID, events.TypeActivePlayersCount, events.ActivePlayersCountPayload{
		Count: o.notifier.ConnectedCount(),
	})
}

func (o *Orchestrator) createMatch(ctx context.Context, pair queue.Pair) {
	defer o.queue.Release(pair)

	puzzleID, err := o.puzzles.RandomPuzzleID(ctx)
	if err != nil {
		log.Error().Err(err).Strs("players", pair.UserIDs()).Msg("no puzzle for match")
		o.failMatch(pair, fmt.Errorf("%w: %v", ErrNoPuzzle, err))
		return
	}

	now := o.clock.Now()
	r, err := o.store.Create(puzzleID, pair.A.Identity, pair.B.Identity, now)
	if err != nil {
		log.Error().Err(err).Strs("players", pair.UserIDs()).Msg("failed to create room")
		o.failMatch(pair, err)
		return
	}

	log.Info().
		Str("room_id", r.ID).
		Str("room_code", r.Code).
		Str("puzzle_id", puzzleID).
		Strs("players", pair.UserIDs()).
		Msg("match created")

	readySec := int(o.config.ReadyTimeout.Seconds())
	for _, p := range [][2]room.Identity{{pair.A.Identity, pair.B.Identity}, {pair.B.Identity, pair.A.Identity}} {
		o.notifier.SendToUser(p[0].UserID, events.TypeMatchFound, events.MatchFoundPayload{
			RoomID:          r.ID,
			RoomCode:        r.Code,
			PuzzleID:        puzzleID,
			Opponent:        playerInfo(p[1]),
			ReadyTimeoutSec: readySec,
		})
	}

	if o.config.ReadyTimeout > 0 {
		o.schedule(r.ID, timerReady, now.Add(o.config.ReadyTimeout))
	}

	o.publish(ctx, r.ID, events.MatchCreatedPayload{
		RoomID:    r.ID,
		RoomCode:  r.Code,
		PuzzleID:  puzzleID,
		Players:   pair.UserIDs(),
		CreatedAt: now,
	})
}

// failMatch tells both players the pairing fell through. They can queue again.
func (o *Orchestrator) failMatch(pair queue.Pair, cause error) {
	o.notifier.SendToUsers(pair.UserIDs(), events.TypeMatchCancelled, events.MatchCancelledPayload{
		Reason: cause.Error(),
	})
}
