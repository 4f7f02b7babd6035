// Package translation sends SRT content to the translation service.
//
// Every request goes through retry.Do. When all attempts fail with retryable
// errors the client falls back to the original content and reports it in
// Result.Fallback, so a task always ends with a subtitle file. API rejections
// and cancellation are returned to the caller.
package translation
