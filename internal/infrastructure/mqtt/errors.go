package mqtt

import "errors"

// Domain-specific errors for MQTT operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrNeverConnected is returned by Reconnect before the first Connect.
	ErrNeverConnected = errors.New("mqtt: reconnect before initial connect")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrServerDisconnect is reported on Lost() when the broker sends DISCONNECT.
	ErrServerDisconnect = errors.New("mqtt: disconnected by server")

	// ErrInvalidQoS is returned when an invalid QoS level is specified.
	// Valid QoS levels are 0, 1, or 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic is returned when an empty or invalid topic is provided.
	ErrInvalidTopic = errors.New("mqtt: invalid topic")

	// ErrUnsupportedScheme is returned for broker URIs this package cannot dial.
	ErrUnsupportedScheme = errors.New("mqtt: unsupported broker URI scheme")
)
