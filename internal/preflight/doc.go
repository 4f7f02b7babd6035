// Package preflight provides readiness checks for the directories and remote
// services subforge depends on.
//
// The serve command runs RunAll at startup and logs each failure; the deps
// command renders the same results as a table. Checks never retry: a single
// attempt with a short timeout is enough to tell the operator what to fix.
package preflight
