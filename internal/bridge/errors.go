package bridge

import "errors"

var (
	// ErrConnect is returned when a connection attempt fails.
	ErrConnect = errors.New("bridge: connect failed")

	// ErrSubscription is returned when the subscribe request fails. It is
	// fatal for the connection attempt it occurred in.
	ErrSubscription = errors.New("bridge: subscription failed")

	// ErrReconnectExhausted is returned when every reconnection attempt
	// has failed.
	ErrReconnectExhausted = errors.New("bridge: reconnection attempts exhausted")
)
