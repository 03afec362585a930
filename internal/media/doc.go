// Package media wraps ffmpeg/ffprobe for audio extraction from video files
// and decoding of compressed audio formats to WAV. All intermediate files
// live in a configurable temp directory and are cleaned up best-effort.
package media
