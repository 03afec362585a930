package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/toswari-ai/audio-transcribe/internal/audio"
	"github.com/toswari-ai/audio-transcribe/internal/config"
	"github.com/toswari-ai/audio-transcribe/internal/job"
	"github.com/toswari-ai/audio-transcribe/internal/media"
	"github.com/toswari-ai/audio-transcribe/internal/metrics"
	"github.com/toswari-ai/audio-transcribe/internal/transcription"
)

//go:embed web
var webFS embed.FS

// Server provides the HTTP API and embedded UI
type Server struct {
	server    *http.Server
	logger    *slog.Logger
	config    *config.Config
	converter *audio.Converter
	extractor *media.Extractor
	service   *transcription.Service
	jobs      *job.Manager
	metrics   *metrics.Metrics

	startTime time.Time
}

// transcribeResponse is the JSON body of a successful transcription.
type transcribeResponse struct {
	JobID    string             `json:"job_id"`
	Model    string             `json:"model"`
	Text     string             `json:"text"`
	Language string             `json:"language,omitempty"`
	Chunks   int                `json:"chunks,omitempty"`
	Elapsed  float64            `json:"elapsed_seconds"`
	Audio    *audio.ConvertInfo `json:"audio,omitempty"`
}

// describeResponse is the JSON body of a successful video description.
type describeResponse struct {
	Model       string  `json:"model"`
	Description string  `json:"description"`
	Frames      int     `json:"frames"`
	Elapsed     float64 `json:"elapsed_seconds"`
}

// NewServer creates the HTTP API server
func NewServer(logger *slog.Logger, cfg *config.Config, converter *audio.Converter,
	extractor *media.Extractor, service *transcription.Service, jobs *job.Manager, m *metrics.Metrics) *Server {

	s := &Server{
		logger:    logger,
		config:    cfg,
		converter: converter,
		extractor: extractor,
		service:   service,
		jobs:      jobs,
		metrics:   m,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupRoutes configures HTTP API routes
func (s *Server) setupRoutes(mux *http.ServeMux) {
	// Browser UI
	mux.HandleFunc("/", s.withMetrics("/", s.handleIndex))

	// Transcription API
	mux.HandleFunc("/api/transcribe", s.withMetrics("/api/transcribe", s.handleTranscribe))
	mux.HandleFunc("/api/convert", s.withMetrics("/api/convert", s.handleConvert))
	mux.HandleFunc("/api/analyze", s.withMetrics("/api/analyze", s.handleAnalyze))
	mux.HandleFunc("/api/describe", s.withMetrics("/api/describe", s.handleDescribe))
	mux.HandleFunc("/api/models", s.withMetrics("/api/models", s.handleModels))

	// Job tracking
	mux.HandleFunc("/api/jobs", s.withMetrics("/api/jobs", s.handleJobs))
	mux.HandleFunc("/api/jobs/", s.withMetrics("/api/jobs/{id}", s.handleJobDetail))

	// WebSocket streaming
	mux.HandleFunc("/ws/transcribe", s.handleWebSocket)

	// Monitoring
	mux.HandleFunc("/health", s.withMetrics("/health", s.handleHealth))
	mux.HandleFunc("/stats", s.withMetrics("/stats", s.handleStats))
	mux.HandleFunc("/config", s.withMetrics("/config", s.handleConfig))
	mux.Handle("/metrics", promhttp.Handler())
}

// withMetrics wraps an HTTP handler with metrics collection
func (s *Server) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		ww := &responseWriter{ResponseWriter: w, statusCode: 200}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		s.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			s.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting HTTP server",
		slog.String("address", s.server.Addr),
	)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server...")

	return s.server.Shutdown(ctx)
}

// handleIndex serves the embedded upload UI
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("UI not available: %w", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

// upload is a validated multipart upload ready for processing.
type upload struct {
	filename string
	ext      string
	data     []byte
	isVideo  bool
}

// readUpload parses and validates the multipart file field.
func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (*upload, error) {
	maxBytes := s.config.Upload.MaxFileSizeBytes()
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024)

	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return nil, fmt.Errorf("failed to parse upload: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("missing 'file' field: %w", err)
	}
	defer file.Close()

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(header.Filename)), ".")

	isAudio := containsFormat(s.config.Upload.AudioFormats, ext)
	isVideo := containsFormat(s.config.Upload.VideoFormats, ext)

	if !isAudio && !isVideo {
		return nil, fmt.Errorf("unsupported file format '.%s' (audio: %s; video: %s)",
			ext,
			strings.Join(s.config.Upload.AudioFormats, ", "),
			strings.Join(s.config.Upload.VideoFormats, ", "))
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}

	if len(data) == 0 {
		return nil, fmt.Errorf("uploaded file is empty")
	}

	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("file too large: %d bytes (limit %d MB)",
			len(data), s.config.Upload.MaxFileSizeMB)
	}

	return &upload{
		filename: header.Filename,
		ext:      ext,
		data:     data,
		isVideo:  isVideo,
	}, nil
}

// convertOptionsFromForm builds conversion options from form toggles,
// falling back to configured defaults for absent fields.
func (s *Server) convertOptionsFromForm(r *http.Request) audio.ConvertOptions {
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

	if v := r.FormValue("high_quality"); v != "" {
		opts.HighQuality = v == "true" || v == "1" || v == "on"
	}
	if v := r.FormValue("normalize"); v != "" {
		opts.Normalize = v == "true" || v == "1" || v == "on"
	}
	if v := r.FormValue("trim_silence"); v != "" {
		opts.TrimSilence = v == "true" || v == "1" || v == "on"
	}
	if v := r.FormValue("target_sample_rate"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
			opts.TargetSampleRate = rate
		}
	}
	if v := r.FormValue("gain_db"); v != "" {
		if gain, err := strconv.ParseFloat(v, 64); err == nil {
			opts.GainDB = gain
		}
	}

	return opts
}

// prepareAudio turns an upload into WAV bytes ready for transcription:
// video uploads go through ffmpeg extraction first, then the conversion
// pipeline runs with the requested options.
func (s *Server) prepareAudio(ctx context.Context, up *upload, opts audio.ConvertOptions) ([]byte, *audio.ConvertInfo, error) {
	data := up.data
	formatHint := up.ext

	if up.isVideo {
		if !s.extractor.Available() {
			return nil, nil, fmt.Errorf("video uploads require ffmpeg, which is not installed")
		}

		wavData, hasAudio, err := s.extractor.ExtractAudioBytes(ctx, data, up.ext)
		if err != nil {
			return nil, nil, fmt.Errorf("audio extraction failed: %w", err)
		}
		if !hasAudio {
			return nil, nil, fmt.Errorf("video file does not contain an audio track")
		}

		data = wavData
		formatHint = "wav"
	}

	convertStart := time.Now()
	converted, info, err := s.converter.Convert(ctx, data, formatHint, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("audio conversion failed: %w", err)
	}

	s.metrics.RecordConversion(time.Since(convertStart).Seconds(), info.DurationSeconds, info.Fallback)

	return converted, info, nil
}

// handleTranscribe implements POST /api/transcribe
func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		s.metrics.RecordUploadRejected()
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.metrics.RecordUpload(len(up.data))

	modelName := r.FormValue("model")
	if modelName == "" {
		modelName = s.config.Transcription.DefaultModel
	}

	// Model resolution happens before any audio work or network I/O
	if !s.service.Registry().Contains(modelName) {
		s.writeError(w, http.StatusBadRequest,
			fmt.Errorf("%w: '%s'", transcription.ErrUnknownModel, modelName))
		return
	}

	j := s.jobs.Create(up.filename, modelName)
	s.metrics.RecordJobCreated()

	s.jobs.SetState(j.ID, job.StateConverting)

	converted, info, err := s.prepareAudio(r.Context(), up, s.convertOptionsFromForm(r))
	if err != nil {
		s.failJob(j.ID, err)
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	params := transcription.Params{
		Temperature: s.config.Transcription.Temperature,
		MaxTokens:   s.config.Transcription.MaxTokens,
		Language:    r.FormValue("language"),
	}

	s.jobs.SetState(j.ID, job.StateTranscribing)
	s.metrics.RecordTranscriptionRequest()

	transcribeStart := time.Now()

	var result *transcription.Result
	if r.FormValue("chunked") == "true" {
		result, err = s.service.TranscribeChunked(r.Context(), converted, modelName,
			s.config.Audio.GetChunkDuration(), params, func(c transcription.ChunkResult) {
				s.jobs.SetChunkProgress(j.ID, c.Index+1, c.Total)
				s.metrics.RecordChunk(c.Err != nil)
			})
	} else {
		result, err = s.service.Transcribe(r.Context(), converted, modelName, params)
	}

	if err != nil {
		s.metrics.RecordTranscriptionFailure(time.Since(transcribeStart).Seconds())
		s.failJob(j.ID, err)

		status := http.StatusBadGateway
		if errors.Is(err, transcription.ErrUnknownModel) {
			status = http.StatusBadRequest
		}
		s.writeError(w, status, err)
		return
	}

	s.metrics.RecordTranscriptionSuccess(time.Since(transcribeStart).Seconds())
	s.jobs.Complete(j.ID, result.Text, result.Language)
	s.metrics.RecordJobFinished(false)

	if r.URL.Query().Get("download") == "wav" {
		w.Header().Set("Content-Type", "audio/wav")
		w.Header().Set("Content-Disposition", `attachment; filename="converted.wav"`)
		w.Write(converted)
		return
	}

	s.writeJSON(w, http.StatusOK, transcribeResponse{
		JobID:    j.ID,
		Model:    result.Model,
		Text:     result.Text,
		Language: result.Language,
		Chunks:   result.Chunks,
		Elapsed:  result.Elapsed.Seconds(),
		Audio:    info,
	})
}

// handleConvert implements POST /api/convert
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		s.metrics.RecordUploadRejected()
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.metrics.RecordUpload(len(up.data))

	converted, info, err := s.prepareAudio(r.Context(), up, s.convertOptionsFromForm(r))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	infoJSON, _ := json.Marshal(info)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("Content-Disposition", `attachment; filename="converted.wav"`)
	w.Header().Set("X-Conversion-Info", string(infoJSON))
	w.Write(converted)
}

// handleAnalyze implements POST /api/analyze: a quality report for an
// upload without converting or transcribing it.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	data := up.data

	// Non-WAV input needs a decode pass before it can be inspected
	if !audio.IsWAV(data) {
		if !s.extractor.Available() {
			s.writeError(w, http.StatusBadRequest,
				fmt.Errorf("analysis of '.%s' files requires ffmpeg, which is not installed", up.ext))
			return
		}

		if up.isVideo {
			wavData, hasAudio, err := s.extractor.ExtractAudioBytes(r.Context(), data, up.ext)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err)
				return
			}
			if !hasAudio {
				s.writeError(w, http.StatusBadRequest,
					fmt.Errorf("video file does not contain an audio track"))
				return
			}
			data = wavData
		} else {
			wavData, err := s.extractor.DecodeToWAV(r.Context(), data, up.ext)
			if err != nil {
				s.writeError(w, http.StatusBadRequest, err)
				return
			}
			data = wavData
		}
	}

	report, err := audio.AnalyzeQuality(data)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

// handleDescribe implements POST /api/describe: frames sampled from a
// video upload are sent to a multimodal model for a content description.
func (s *Server) handleDescribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	up, err := s.readUpload(w, r)
	if err != nil {
		s.metrics.RecordUploadRejected()
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.metrics.RecordUpload(len(up.data))

	if !up.isVideo {
		s.writeError(w, http.StatusBadRequest,
			fmt.Errorf("description requires a video upload, got '.%s'", up.ext))
		return
	}

	modelName := r.FormValue("model")
	if modelName == "" {
		modelName = s.config.Transcription.VideoModel
	}
	if modelName == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("no video model configured"))
		return
	}

	// Model resolution happens before any frame work or network I/O
	if !s.service.Registry().Contains(modelName) {
		s.writeError(w, http.StatusBadRequest,
			fmt.Errorf("%w: '%s'", transcription.ErrUnknownModel, modelName))
		return
	}

	if !s.extractor.Available() {
		s.writeError(w, http.StatusBadRequest,
			fmt.Errorf("video description requires ffmpeg, which is not installed"))
		return
	}

	maxFrames := media.MaxFrames
	if v := r.FormValue("max_frames"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < maxFrames {
			maxFrames = n
		}
	}

	frames, err := s.extractor.ExtractFrames(r.Context(), up.data, up.ext, maxFrames)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	params := transcription.Params{
		Temperature: s.config.Transcription.Temperature,
		MaxTokens:   s.config.Transcription.MaxTokens,
	}

	s.metrics.RecordTranscriptionRequest()
	describeStart := time.Now()

	result, err := s.service.DescribeVideo(r.Context(), frames, modelName, r.FormValue("prompt"), params)
	if err != nil {
		s.metrics.RecordTranscriptionFailure(time.Since(describeStart).Seconds())
		s.writeError(w, http.StatusBadGateway, err)
		return
	}

	s.metrics.RecordTranscriptionSuccess(time.Since(describeStart).Seconds())

	s.writeJSON(w, http.StatusOK, describeResponse{
		Model:       result.Model,
		Description: result.Text,
		Frames:      len(frames),
		Elapsed:     result.Elapsed.Seconds(),
	})
}

// handleModels implements GET /api/models
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	models := s.service.Registry().List()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"default": s.config.Transcription.DefaultModel,
		"models":  models,
	})
}

// handleJobs implements GET /api/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	jobs := s.jobs.List()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total": len(jobs),
		"jobs":  jobs,
	})
}

// handleJobDetail implements GET /api/jobs/{id}
func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("job ID required"))
		return
	}

	j, exists := s.jobs.Get(id)
	if !exists {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("job '%s' not found", id))
		return
	}

	s.writeJSON(w, http.StatusOK, j.Snapshot())
}

// handleHealth implements GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	jobStats := s.jobs.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
		"service": map[string]interface{}{
			"name":    "audio-transcribe",
			"version": "1.0.0",
		},
		"components": map[string]interface{}{
			"ffmpeg": map[string]interface{}{
				"available": s.extractor.Available(),
			},
			"jobs": map[string]interface{}{
				"active":    jobStats.ActiveJobs,
				"created":   jobStats.TotalCreated,
				"completed": jobStats.TotalCompleted,
				"failed":    jobStats.TotalFailed,
			},
		},
	}

	s.writeJSON(w, http.StatusOK, health)
}

// handleStats implements GET /stats
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	stats := map[string]interface{}{
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startTime).String(),
		"jobs":      s.jobs.GetStats(),
	}

	if sp, ok := s.service.Provider().(interface{ GetStats() transcription.ClientStats }); ok {
		stats["transcription"] = sp.GetStats()
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// handleConfig implements GET /config with sensitive values removed
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}

	sanitized := map[string]interface{}{
		"server": map[string]interface{}{
			"port":    s.config.Server.Port,
			"address": s.config.Server.Address,
		},
		"upload": map[string]interface{}{
			"max_file_size_mb": s.config.Upload.MaxFileSizeMB,
			"audio_formats":    s.config.Upload.AudioFormats,
			"video_formats":    s.config.Upload.VideoFormats,
		},
		"audio": map[string]interface{}{
			"target_sample_rate": s.config.Audio.TargetSampleRate,
			"high_quality":       s.config.Audio.HighQuality,
			"normalize":          s.config.Audio.Normalize,
			"trim_silence":       s.config.Audio.TrimSilence,
			"chunk_duration":     s.config.Audio.ChunkDuration,
		},
		"transcription": map[string]interface{}{
			"provider":      s.config.Transcription.Provider,
			"default_model": s.config.Transcription.DefaultModel,
			"video_model":   s.config.Transcription.VideoModel,
			"temperature":   s.config.Transcription.Temperature,
			"max_tokens":    s.config.Transcription.MaxTokens,
		},
	}

	s.writeJSON(w, http.StatusOK, sanitized)
}

// failJob marks a job failed and updates job metrics.
func (s *Server) failJob(id string, err error) {
	s.jobs.Fail(id, err)
	s.metrics.RecordJobFinished(true)
}

// writeJSON writes a JSON response with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes a JSON error body with the stringified cause.
func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func containsFormat(formats []string, ext string) bool {
	for _, f := range formats {
		if strings.EqualFold(f, ext) {
			return true
		}
	}
	return false
}
