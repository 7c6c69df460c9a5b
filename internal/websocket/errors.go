package websocket

import "errors"

var (
	ErrClientQueueFull = errors.New("client message queue is full")
	ErrInvalidMessage  = errors.New("invalid message format")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrClientClosed    = errors.New("client is closed")
)
