package hub

import "errors"

// Sentinel kinds for hub errors, reported to clients in error frames.
var (
	ErrNotMember    = errors.New("not a member of this project room")
	ErrUnknownEvent = errors.New("unknown event")
	ErrUnknownOp    = errors.New("unknown op")
	ErrBadFrame     = errors.New("malformed frame")
)
