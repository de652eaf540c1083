// Package journal keeps a SQLite record of every message the bridge
// handled: where it was written, how large it was, its SHA-256, and
// whether it was saved, failed or dropped.
//
// The journal is optional. When enabled, *SQLiteRepository is registered
// as a persist.Recorder and receives one Entry per handled message.
package journal
