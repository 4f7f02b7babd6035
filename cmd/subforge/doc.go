// Package main hosts the subforge CLI.
//
// `run` processes a batch in-process and streams progress to the terminal;
// `serve` hosts the same scheduler behind the HTTP API. The remaining commands
// read task history and logs from disk, control a detached daemon, or check
// the local environment.
package main
