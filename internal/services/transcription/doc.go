// Package transcription drives a remote speech-to-text job from audio upload
// to a downloaded SRT transcript.
//
// Client owns the polling state machine (uploading, created, polling, then
// done or error) and wraps every network call in retry.Do with a per-call
// timeout. Provider implementations speak the wire protocol of a particular
// service: the self-hosted backend or AssemblyAI.
package transcription
