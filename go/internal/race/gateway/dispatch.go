package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/puzzlerace/go/internal/race/events"
	"github.com/mcdev12/puzzlerace/go/internal/race/room"
)

// Commands is what the dispatcher needs from the orchestrator.
type Commands interface {
	JoinMatchmaking(ctx context.Context, id room.Identity) error
	LeaveMatchmaking(userID string)
	PlayerReady(ctx context.Context, userID, roomID string) error
	GameMove(ctx context.Context, userID, roomID string, data json.RawMessage) error
	GameComplete(ctx context.Context, userID, roomID string, forfeit bool) error
	Disconnect(ctx context.Context, userID string)
	ActivePlayers(userID string)
}

// Dispatcher turns inbound frames into orchestrator commands.
type Dispatcher struct {
	commands Commands
	manager  *ConnectionManager
	validate *validator.Validate
}

func NewDispatcher(commands Commands, manager *ConnectionManager) *Dispatcher {
	return &Dispatcher{
		commands: commands,
		manager:  manager,
		validate: validator.New(),
	}
}

func (d *Dispatcher) OnConnect(_ context.Context, c *Connection) {
	c.SendEnvelope(events.TypeConnected, events.ConnectedPayload{
		PlayerInfo: events.PlayerInfo{
			UserID:      c.Identity.UserID,
			DisplayName: c.Identity.DisplayName,
			Avatar:      c.Identity.Avatar,
		},
		ConnectionID:  c.ID,
		ActivePlayers: d.manager.ConnectedCount(),
	})
	d.broadcastCount()
}

func (d *Dispatcher) OnDisconnect(ctx context.Context, c *Connection) {
	d.commands.Disconnect(ctx, c.UserID)
	d.broadcastCount()
}

func (d *Dispatcher) broadcastCount() {
	d.manager.Broadcast(events.TypeActivePlayersCount, events.ActivePlayersCountPayload{
		Count: d.manager.ConnectedCount(),
	})
}

func (d *Dispatcher) OnMessage(ctx context.Context, c *Connection, raw []byte) {
	env, err := ParseEnvelope(raw)
	if err != nil {
		d.reject(c, events.ErrCodeBadJSON, "message is not a valid envelope")
		return
	}

	logger := log.With().
		Str("connection_id", c.ID).
		Str("user_id", c.UserID).
		Str("event_type", string(env.Type)).
		Logger()

	switch env.Type {
	case events.TypeJoinMatchmaking:
		var p events.JoinMatchmakingPayload
		if !d.decode(c, env, &p) || !d.owns(c, p.UserID) {
			return
		}
		err = d.commands.JoinMatchmaking(ctx, c.Identity)

	case events.TypeLeaveMatchmaking:
		var p events.LeaveMatchmakingPayload
		if !d.decode(c, env, &p) || !d.owns(c, p.UserID) {
			return
		}
		d.commands.LeaveMatchmaking(c.UserID)

	case events.TypePlayerReady:
		var p events.PlayerReadyPayload
		if !d.decode(c, env, &p) || !d.owns(c, p.UserID) {
			return
		}
		err = d.commands.PlayerReady(ctx, c.UserID, p.RoomID)

	case events.TypeGameMove:
		var p events.GameMovePayload
		if !d.decode(c, env, &p) || !d.owns(c, p.UserID) {
			return
		}
		err = d.commands.GameMove(ctx, c.UserID, p.RoomID, p.Data)

	case events.TypeGameComplete:
		var p events.GameCompletePayload
		if !d.decode(c, env, &p) || !d.owns(c, p.UserID) {
			return
		}
		err = d.commands.GameComplete(ctx, c.UserID, p.RoomID, p.Forfeit)

	case events.TypeGetActivePlayers:
		d.commands.ActivePlayers(c.UserID)

	default:
		d.reject(c, events.ErrCodeUnknownType, "unknown message type "+string(env.Type))
		return
	}

	if err != nil {
		// protocol violations are dropped; the client is not told
		logger.Warn().Err(err).Msg("command rejected")
	}
}

func (d *Dispatcher) decode(c *Connection, env *Envelope, dst any) bool {
	data := env.Data
	if len(data) == 0 || string(data) == "null" {
		data = json.RawMessage("{}")
	}
	if err := json.Unmarshal(data, dst); err != nil {
		d.reject(c, events.ErrCodeBadJSON, "data does not match "+string(env.Type))
		return false
	}
	if err := d.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		msg := err.Error()
		if errors.As(err, &verrs) && len(verrs) > 0 {
			msg = verrs[0].Field() + " failed " + verrs[0].Tag()
		}
		d.reject(c, events.ErrCodeInvalid, msg)
		return false
	}
	return true
}

// owns drops messages that claim to come from someone else.
func (d *Dispatcher) owns(c *Connection, claimed string) bool {
	if claimed == "" || claimed == c.UserID {
		return true
	}
	log.Warn().
		Str("connection_id", c.ID).
		Str("user_id", c.UserID).
		Str("claimed_user_id", claimed).
		Msg("dropping message with mismatched userId")
	return false
}

func (d *Dispatcher) reject(c *Connection, code, message string) {
	log.Debug().Str("connection_id", c.ID).Str("code", code).Msg(message)
	c.SendEnvelope(events.TypeError, events.ErrorPayload{Code: code, Message: message})
}
