// Package daemon coordinates the long-running subforge process.
//
// It wires configuration, task history, per-task logs, the scheduler, and the
// HTTP API into a single lifecycle with flock-based locking to prevent
// multiple instances. Startup reconciles state left by a previous process:
// tasks that never reached a terminal stage are marked failed, stale scratch
// directories are removed, and expired task logs are pruned.
//
// Keep orchestration logic here: pipeline behaviour lives in its own packages
// while the daemon focuses on startup, shutdown, and event fan-out.
package daemon
