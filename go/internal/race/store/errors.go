package store

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrUserInRoom    = errors.New("user already in an active room")
	ErrCodeExhausted = errors.New("could not allocate a unique room code")
)
