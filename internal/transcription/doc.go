// Package transcription implements clients for remote speech-to-text
// providers. It handles request construction with base64 audio payloads,
// retry logic with exponential backoff, rate limiting, and the chunked
// pseudo-streaming orchestration used for long uploads.
package transcription
