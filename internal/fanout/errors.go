package fanout

import "errors"

var (
	ErrBridgeUnavailable = errors.New("fan-out bridge unavailable")
	ErrBridgeClosed      = errors.New("fan-out bridge closed")
)
