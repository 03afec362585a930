// Package audio handles PCM audio decoding, processing, and chunking.
// It implements the high-quality conversion pipeline (resample, downmix,
// normalize, trim silence) and WAV encoding for transcription requests.
package audio
