package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/toswari-ai/audio-transcribe/internal/audio"
	"github.com/toswari-ai/audio-transcribe/internal/transcription"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	// The UI is served from the same origin; standalone clients are fine too.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsRequest is the first (text) message a streaming client sends.
type wsRequest struct {
	Model         string  `json:"model"`
	ChunkDuration float64 `json:"chunk_duration,omitempty"` // seconds
	HighQuality   *bool   `json:"high_quality,omitempty"`
	Normalize     *bool   `json:"normalize,omitempty"`
	TrimSilence   *bool   `json:"trim_silence,omitempty"`
	Language      string  `json:"language,omitempty"`
	Format        string  `json:"format,omitempty"`
}

// wsMessage is every message the server sends back.
type wsMessage struct {
	Type     string `json:"type"` // "chunk", "done", "error"
	Index    int    `json:"index,omitempty"`
	Total    int    `json:"total,omitempty"`
	Text     string `json:"text,omitempty"`
	Language string `json:"language,omitempty"`
	Error    string `json:"error,omitempty"`
}

// handleWebSocket implements GET /ws/transcribe. The client sends one
// JSON message with parameters, then one binary message with the audio.
// The server streams a "chunk" message per transcribed window and a
// final "done" message with the full text.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	s.metrics.ActiveWebSockets.Inc()
	defer s.metrics.ActiveWebSockets.Dec()

	conn.SetReadLimit(s.config.Upload.MaxFileSizeBytes() + 64*1024)
	conn.SetReadDeadline(time.Now().Add(2 * time.Minute))

	var req wsRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.writeWSError(conn, fmt.Errorf("invalid request message: %w", err))
		return
	}

	if req.Model == "" {
		req.Model = s.config.Transcription.DefaultModel
	}

	if !s.service.Registry().Contains(req.Model) {
		s.writeWSError(conn, fmt.Errorf("%w: '%s'", transcription.ErrUnknownModel, req.Model))
		return
	}

	msgType, audioData, err := conn.ReadMessage()
	if err != nil {
		s.writeWSError(conn, fmt.Errorf("failed to read audio message: %w", err))
		return
	}

	if msgType != websocket.BinaryMessage || len(audioData) == 0 {
		s.writeWSError(conn, fmt.Errorf("expected a non-empty binary audio message"))
		return
	}

	opts := s.wsConvertOptions(req)

	format := req.Format
	if format == "" {
		format = "wav"
	}

	converted, info, err := s.converter.Convert(r.Context(), audioData, format, opts)
	if err != nil {
		s.writeWSError(conn, fmt.Errorf("audio conversion failed: %w", err))
		return
	}

	s.metrics.RecordConversion(0, info.DurationSeconds, info.Fallback)

	chunkDuration := s.config.Audio.GetChunkDuration()
	if req.ChunkDuration > 0 {
		chunkDuration = time.Duration(req.ChunkDuration * float64(time.Second))
	}

	params := transcription.Params{
		Temperature: s.config.Transcription.Temperature,
		MaxTokens:   s.config.Transcription.MaxTokens,
		Language:    req.Language,
	}

	s.metrics.RecordTranscriptionRequest()
	startTime := time.Now()

	// The request context does not cancel on client disconnect once the
	// connection is hijacked, so a failed write cancels the chunk loop
	// instead of burning vendor calls for a client that is gone
	ctx, cancelChunks := context.WithCancel(r.Context())
	defer cancelChunks()

	result, err := s.service.TranscribeChunked(ctx, converted, req.Model,
		chunkDuration, params, func(c transcription.ChunkResult) {
			s.metrics.RecordChunk(c.Err != nil)

			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(wsMessage{
				Type:  "chunk",
				Index: c.Index,
				Total: c.Total,
				Text:  c.Text,
			}); err != nil {
				s.logger.Warn("WebSocket chunk write failed, stopping",
					slog.String("error", err.Error()),
				)
				cancelChunks()
			}
		})

	if err != nil {
		s.metrics.RecordTranscriptionFailure(time.Since(startTime).Seconds())
		s.writeWSError(conn, err)
		return
	}

	s.metrics.RecordTranscriptionSuccess(time.Since(startTime).Seconds())

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	conn.WriteJSON(wsMessage{
		Type:     "done",
		Total:    result.Chunks,
		Text:     result.Text,
		Language: result.Language,
	})

	conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// wsConvertOptions merges request toggles over configured defaults.
func (s *Server) wsConvertOptions(req wsRequest) audio.ConvertOptions {
	opts := audio.ConvertOptions{
		HighQuality:      s.config.Audio.HighQuality,
		TargetSampleRate: s.config.Audio.TargetSampleRate,
		Normalize:        s.config.Audio.Normalize,
		TrimSilence:      s.config.Audio.TrimSilence,
		Trim: audio.TrimOptions{
			ThresholdDB: s.config.Audio.SilenceThresholdDB,
			MinSilence:  s.config.Audio.GetMinSilenceDuration(),
			Padding:     s.config.Audio.GetSilencePadding(),
		},
	}

	if req.HighQuality != nil {
		opts.HighQuality = *req.HighQuality
	}
	if req.Normalize != nil {
		opts.Normalize = *req.Normalize
	}
	if req.TrimSilence != nil {
		opts.TrimSilence = *req.TrimSilence
	}

	return opts
}

func (s *Server) writeWSError(conn *websocket.Conn, err error) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	conn.WriteJSON(wsMessage{Type: "error", Error: err.Error()})
}
