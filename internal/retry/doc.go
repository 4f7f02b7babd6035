// Package retry applies bounded exponential backoff to fallible operations.
//
// Only errors tagged with services.ErrNetwork are retried. Everything else,
// including API rejections and cancellation, is returned after the first
// attempt. Every network call in the pipeline goes through Do.
package retry
