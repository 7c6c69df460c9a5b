package presence

import "errors"

var (
	ErrAlreadyPresent = errors.New("connection already joined a room")
	ErrNotPresent     = errors.New("connection is not in a room")
)
