package repository

import "errors"

// Errors the storage layer distinguishes for callers.
var (
	ErrRoomFull          = errors.New("room is full")
	ErrBannedFromRoom    = errors.New("user is banned from this room")
	ErrInsufficientFunds = errors.New("insufficient coin balance")
)
