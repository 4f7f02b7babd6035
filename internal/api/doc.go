// Package api serves the daemon's HTTP surface and the matching client used by
// the CLI.
//
// # Routes
//
// POST /api/batches submits a batch to the scheduler and returns its task IDs.
// GET /api/tasks and /api/tasks/:id read task history from the store, and
// /api/tasks/:id/logs returns the per-task log. POST /api/tasks/:id/cancel
// cancels a queued or running task. GET /api/events long-polls the in-memory
// event hub by sequence number; GET /api/ws streams the same events over a
// WebSocket. GET /metrics exposes Prometheus collectors.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Errors are returned as {"error": "..."} with
// the status derived from the services error taxonomy: validation failures
// map to 400 and missing tasks to 404.
package api
