package rooms

import "errors"

var (
	ErrRoomAlreadyExists  = errors.New("room already exists")
	ErrRoomNotFound       = errors.New("room does not exist")
	ErrInvalidRoomName    = errors.New("invalid room name")
	ErrCodeTaken          = errors.New("join code already in use")
	ErrCodeSpaceExhausted = errors.New("could not generate a free join code")
)
