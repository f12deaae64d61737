package room

import "errors"

// Protocol violations. Callers log and ignore them; none of them change state.
var (
	ErrNotInRoom          = errors.New("player is not in this room")
	ErrWrongState         = errors.New("action not allowed in current room state")
	ErrAlreadyReady       = errors.New("player already marked ready")
	ErrAlreadyCompleted   = errors.New("player already reported completion")
	ErrRoomClosed         = errors.New("room is closed")
	ErrDeadlineNotReached = errors.New("race deadline not reached")
)
