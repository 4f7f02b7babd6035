// Package daemonrun hosts the foreground `subforge serve` process: it builds
// the logger, starts the daemon, records a runtime file with the PID and API
// address, and blocks until a termination signal arrives.
package daemonrun
