// Package services defines shared utilities consumed by the pipeline stages
// and the external service clients.
//
// Key responsibilities:
//   - Context helpers that stamp task IDs, batch IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     as spawn, execution, network, api, timeout, filesystem, or cancellation.
//   - Retryable and Kind, which the retry layer and the task history rely on
//     to decide what to attempt again and how to label a failed task.
//
// Clients under services/ return errors tagged with these markers so the
// pipeline never has to inspect transport details.
package services
