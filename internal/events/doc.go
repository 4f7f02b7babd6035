// Package events defines the lifecycle events a batch emits and the Sink port
// that consumers implement.
//
// The pipeline and scheduler publish to a single Sink; Fanout duplicates the
// stream to the in-memory Hub (backing the HTTP API), the task history store,
// Prometheus collectors, and the WebSocket broadcaster. Within one task events
// are published in order; events from different tasks may interleave.
package events
