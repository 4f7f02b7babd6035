// Package pipeline drives a single task through its stage state machine.
//
// A Pipeline sequences audio extraction, transcription, and translation for
// the video workflow, or translation alone for the subtitle workflow. Every
// transition is journaled to the task log and published as an event, and the
// terminal snapshot is handed to a Cleaner that removes or preserves the temp
// artifacts. Stages only move forward; Failed is reachable from any active
// stage.
//
// The pipeline depends on narrow interfaces (Extractor, Transcriber,
// Translator, Journal, Cleaner) satisfied by the ffmpeg, transcription,
// translation, tasklog, and staging packages.
package pipeline
