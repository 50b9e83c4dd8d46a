package client

import "errors"

// Sentinel kinds for client errors.
var (
	ErrNotConnected       = errors.New("not connected")
	ErrIdentityChange     = errors.New("connection already bound to another user")
	ErrReconnectExhausted = errors.New("reconnect attempts exhausted")
)

// RemoteError is an error frame returned by the hub for an emit.
type RemoteError struct {
	Code string
}

func (e *RemoteError) Error() string { return "hub rejected frame: " + e.Code }
