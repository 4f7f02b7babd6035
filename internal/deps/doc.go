// Package deps checks that the external binaries invoked by the pipeline are
// installed and resolvable on PATH.
package deps
