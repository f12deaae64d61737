package orchestrator

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/puzzlerace/go/internal/race/events"
	"github.com/mcdev12/puzzlerace/go/internal/race/outbox"
	"github.com/mcdev12/puzzlerace/go/internal/race/room"
)

// apply carries out what a room transition asked for.
func (o *Orchestrator) apply(ctx context.Context, r *room.Room, effects []room.Effect) {
	for _, e := range effects {
		switch e := e.(type) {
		case room.Started:
			o.schedule(r.ID, timerDeadline, e.Deadline)
			o.notifier.SendToUsers(e.Players, events.TypeGameStart, events.GameStartPayload{
				RoomID:          r.ID,
				PuzzleID:        r.PuzzleID,
				StartedAt:       e.StartedAt,
				Deadline:        e.Deadline,
				DurationSeconds: int(e.Duration.Seconds()),
			})
			log.Info().Str("room_id", r.ID).Time("deadline", e.Deadline).Msg("race started")

		case room.MoveRelayed:
			o.notifier.SendToUser(e.To, events.TypeGameMove, events.GameMoveRelayPayload{
				RoomID: e.RoomID,
				UserID: e.From,
				Data:   e.Data,
			})

		case room.OpponentDisconnected:
			o.notifier.SendToUser(e.NotifyUserID, events.TypePlayerDisconnected, events.PlayerDisconnectedPayload{
				RoomID: e.RoomID,
				UserID: e.UserID,
			})
			log.Info().Str("room_id", e.RoomID).Str("user_id", e.UserID).Msg("player disconnected mid-match")

		case room.Finished:
			o.finish(ctx, r, e)

		case room.Cancelled:
			o.cancelTimer(r.ID)
			o.store.Remove(r.ID)
			o.notifier.SendToUsers(e.Players, events.TypeMatchCancelled, events.MatchCancelledPayload{
				RoomID: e.RoomID,
				Reason: e.Reason,
			})
			log.Info().Str("room_id", e.RoomID).Str("reason", e.Reason).Msg("match cancelled")
		}
	}
}

func (o *Orchestrator) finish(ctx context.Context, r *room.Room, e room.Finished) {
	o.cancelTimer(r.ID)

	reward := 0
	if !e.Result.IsTie() {
		reward = o.config.WinReward
	}
	o.notifier.SendToUsers(e.Players, events.TypeGameResults, events.GameResultsPayload{
		MatchResult: e.Result,
		TimedOut:    e.TimedOut,
		WinReward:   reward,
	})

	ev := log.Info().Str("room_id", r.ID).Bool("timed_out", e.TimedOut)
	if e.Result.WinnerUserID != nil {
		ev = ev.Str("winner", *e.Result.WinnerUserID)
	}
	ev.Msg("race finished")

	if !e.Result.IsTie() {
		o.awardWinner(ctx, r.ID, *e.Result.WinnerUserID)
	}

	o.publish(ctx, r.ID, events.MatchCompletedPayload{
		RoomID:       r.ID,
		PuzzleID:     r.PuzzleID,
		WinnerUserID: e.Result.WinnerUserID,
		Players:      e.Result.Players,
		TimedOut:     e.TimedOut,
		CompletedAt:  o.clock.Now(),
	})

	o.schedule(r.ID, timerTeardown, o.clock.Now().Add(o.config.TeardownGrace))
}

func (o *Orchestrator) awardWinner(ctx context.Context, roomID, userID string) {
	if o.rewards == nil || o.config.WinReward <= 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.config.RewardTimeout)
	defer cancel()

	if err := o.rewards.AwardCoins(ctx, userID, o.config.WinReward, "race_win:"+roomID); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("user_id", userID).Msg("failed to award win reward")
		return
	}
	log.Info().Str("room_id", roomID).Str("user_id", userID).Int("coins", o.config.WinReward).Msg("win reward awarded")
}

func (o *Orchestrator) publish(ctx context.Context, roomID string, payload any) {
	var eventType string
	switch payload.(type) {
	case events.MatchCreatedPayload:
		eventType = outbox.EventTypeMatchCreated
	case events.MatchCompletedPayload:
		eventType = outbox.EventTypeMatchCompleted
	default:
		log.Error().Str("room_id", roomID).Msgf("no event type for %T", payload)
		return
	}

	ev, err := outbox.NewEvent(roomID, eventType, payload, o.clock.Now())
	if err != nil {
		log.Error().Err(err).Str("room_id", roomID).Msg("failed to build match event")
		return
	}
	if err := o.publisher.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("room_id", roomID).Str("event_type", eventType).Msg("failed to publish match event")
	}
}
