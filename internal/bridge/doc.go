// Package bridge drives the MQTT-to-file bridge.
//
// It holds three cooperating pieces:
//
//   - Manager connects with the configured identity and session policy and
//     reconciles the single "<prefix>/#" subscription against what the
//     broker already remembers.
//   - Supervisor retries a lost connection a fixed number of times at a
//     fixed interval.
//   - Loop consumes messages until two consecutive idle timeouts pass
//     without traffic, or until shutdown.
//
// The transport is abstracted behind Transport so the state machine can be
// tested without a broker; *mqtt.Client is the production implementation.
package bridge
