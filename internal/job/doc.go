// Package job tracks transcription jobs through their lifecycle and
// expires finished jobs after a retention window.
package job
