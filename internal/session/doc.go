// Package session derives the MQTT client identity and session policy for
// mqtt2file.
//
// The client identity is built from the local host name and an optional
// suffix:
//
//	mqtt2file-<host>            clean session, nothing survives a restart
//	mqtt2file-<host>-<suffix>   persistent session, resumable for 100 hours
//
// Because the identity is stable for the same host and suffix, a restarted
// bridge reconnects to the session the broker kept for it and receives the
// messages that were queued while it was away.
package session
