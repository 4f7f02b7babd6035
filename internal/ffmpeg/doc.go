// Package ffmpeg runs the external audio extraction step.
//
// Runner invokes ffmpeg with a fixed argument set that produces 16 kHz mono
// 16-bit PCM WAV, streams stderr for progress and diagnostics, and reports
// spawn failures separately from non-zero exits. Probe uses ffprobe to read the
// container duration so progress can be expressed as a percentage.
package ffmpeg
