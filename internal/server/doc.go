// Package server implements the HTTP API and the embedded browser UI:
// multipart upload endpoints for conversion and transcription, a
// WebSocket endpoint for chunked pseudo-streaming, and monitoring
// endpoints (health, stats, config, Prometheus metrics).
package server
