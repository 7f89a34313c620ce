package domain

import "errors"

var (
	// ErrRoomNotFound means the room never existed or its lifetime elapsed.
	// Terminal; the caller has to create a new room.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomFull means both membership slots are taken.
	ErrRoomFull = errors.New("room is full")

	// ErrUnauthorized means the token is missing, belongs to another room,
	// or the room is gone. There is no refresh path.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrStoreUnavailable wraps store/transport failures that survived the
	// client-side retry budget.
	ErrStoreUnavailable = errors.New("store unavailable")
)
