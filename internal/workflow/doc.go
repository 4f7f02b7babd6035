// Package workflow schedules batches of tasks onto pipelines.
//
// The Scheduler validates a batch, assigns identifiers, and launches one
// pipeline run per task while a weighted semaphore caps how many are active at
// once. Slots are granted in submission order. A task's failure never touches
// its siblings, and no task is retried here; retries live in the network
// clients. When every task is terminal the Scheduler publishes a single
// batch:complete event.
//
// Each task runs under its own cancelable context so Cancel can stop a task
// whether it is running or still waiting for a slot.
package workflow
