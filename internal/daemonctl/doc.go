// Package daemonctl implements the start, stop, restart, and status controls
// the CLI uses to manage a detached `subforge serve` process. The daemon is
// located through its runtime file and reached over the HTTP API.
package daemonctl
