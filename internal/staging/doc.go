// Package staging owns the per-task scratch directories that hold extracted
// audio and original transcripts.
//
// Manager.Reconcile decides what happens to those artifacts once a task is
// terminal: successful tasks are cleaned up, failed tasks keep everything so
// the operator can inspect it. CleanStale and CleanInactive reclaim preserved
// directories later.
package staging
