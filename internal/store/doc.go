// Package store persists task history in SQLite.
//
// The pipeline never reads from the store; a Recorder subscribes to the event
// stream and upserts each task snapshot it sees, so history survives restarts
// and the CLI can list, show, and reconcile tasks without a running daemon.
package store
