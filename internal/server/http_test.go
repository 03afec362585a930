package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/toswari-ai/audio-transcribe/internal/audio"
	"github.com/toswari-ai/audio-transcribe/internal/config"
	"github.com/toswari-ai/audio-transcribe/internal/job"
	"github.com/toswari-ai/audio-transcribe/internal/media"
	"github.com/toswari-ai/audio-transcribe/internal/metrics"
	"github.com/toswari-ai/audio-transcribe/internal/transcription"
)

// sharedMetrics avoids duplicate prometheus registration across tests.
var sharedMetrics = metrics.NewMetrics()

// stubProvider returns a fixed text and counts calls.
type stubProvider struct {
	calls int
	text  string
	err   error
}

func (p *stubProvider) Transcribe(ctx context.Context, data []byte, model transcription.ModelInfo, params transcription.Params) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return p.text, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{Port: 8080, Address: "127.0.0.1"},
		Upload: config.UploadConfig{
			MaxFileSizeMB: 1,
			AudioFormats:  []string{"wav", "mp3", "flac", "m4a", "ogg"},
			VideoFormats:  []string{"mp4", "mov", "avi", "mkv", "webm"},
		},
		Audio: config.AudioConfig{
			TargetSampleRate:   16000,
			HighQuality:        true,
			Normalize:          true,
			TrimSilence:        false,
			ChunkDuration:      2,
			SilenceThresholdDB: -40,
			MinSilenceDuration: 0.3,
			SilencePadding:     0.2,
		},
		Transcription: config.TranscriptionConfig{
			Provider:     "clarifai",
			DefaultModel: "OpenAI Whisper",
			Temperature:  0.7,
			MaxTokens:    1000,
		},
	}
}

func testServer(t *testing.T, provider transcription.Provider) *Server {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := testConfig()

	registry, err := transcription.NewRegistry([]transcription.ModelInfo{
		{Name: "OpenAI Whisper", ModelID: "whisper", UserID: "openai", AppID: "transcription"},
	})
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	extractor := media.NewExtractor(logger, t.TempDir())
	converter := audio.NewConverter(logger, extractor)
	service := transcription.NewService(logger, registry, provider)

	jobs := job.NewManager(logger, 0)
	t.Cleanup(jobs.Stop)

	return NewServer(logger, cfg, converter, extractor, service, jobs, sharedMetrics)
}

func testMux(t *testing.T, provider transcription.Provider) *http.ServeMux {
	t.Helper()

	s := testServer(t, provider)
	mux := http.NewServeMux()
	s.setupRoutes(mux)
	return mux
}

func sineWAV(t *testing.T, durationSec float64) []byte {
	t.Helper()

	sampleRate := 16000
	numSamples := int(float64(sampleRate) * durationSec)
	samples := make([]int16, numSamples)
	for i := range samples {
		samples[i] = int16(12000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
	}

	data, err := audio.EncodeWAV(samples, sampleRate, 1)
	if err != nil {
		t.Fatalf("Failed to encode WAV: %v", err)
	}
	return data
}

func multipartUpload(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("Failed to create form file: %v", err)
	}
	part.Write(data)

	for k, v := range fields {
		writer.WriteField(k, v)
	}

	writer.Close()
	return body, writer.FormDataContentType()
}

func TestHandleTranscribe(t *testing.T) {
	provider := &stubProvider{text: "hello from the stub"}
	mux := testMux(t, provider)

	body, contentType := multipartUpload(t, "speech.wav", sineWAV(t, 1), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp transcribeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.Text != "hello from the stub" {
		t.Errorf("Expected stub text, got %q", resp.Text)
	}

	if resp.JobID == "" {
		t.Error("Expected job ID in response")
	}

	if resp.Model != "OpenAI Whisper" {
		t.Errorf("Expected default model, got %q", resp.Model)
	}

	if resp.Audio == nil {
		t.Error("Expected conversion info in response")
	}

	if provider.calls != 1 {
		t.Errorf("Expected 1 provider call, got %d", provider.calls)
	}
}

func TestHandleTranscribeChunked(t *testing.T) {
	provider := &stubProvider{text: "part"}
	mux := testMux(t, provider)

	// 5 seconds with 2-second windows means 3 provider calls
	body, contentType := multipartUpload(t, "speech.wav", sineWAV(t, 5), map[string]string{
		"chunked": "true",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp transcribeResponse
	json.Unmarshal(rec.Body.Bytes(), &resp)

	if resp.Chunks != 3 {
		t.Errorf("Expected 3 chunks, got %d", resp.Chunks)
	}

	if resp.Text != "part part part" {
		t.Errorf("Expected joined chunk texts, got %q", resp.Text)
	}

	if provider.calls != 3 {
		t.Errorf("Expected 3 provider calls, got %d", provider.calls)
	}
}

func TestHandleTranscribeUnknownModel(t *testing.T) {
	provider := &stubProvider{text: "never"}
	mux := testMux(t, provider)

	body, contentType := multipartUpload(t, "speech.wav", sineWAV(t, 1), map[string]string{
		"model": "Nonexistent Model",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "unknown model") {
		t.Errorf("Expected unknown model error, got %s", rec.Body.String())
	}

	// Rejection must happen before the provider is touched
	if provider.calls != 0 {
		t.Errorf("Expected 0 provider calls, got %d", provider.calls)
	}
}

func TestHandleTranscribeUnsupportedFormat(t *testing.T) {
	mux := testMux(t, &stubProvider{})

	body, contentType := multipartUpload(t, "document.pdf", []byte("%PDF-1.4"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "unsupported file format") {
		t.Errorf("Expected format error, got %s", rec.Body.String())
	}
}

func TestHandleTranscribeTooLarge(t *testing.T) {
	mux := testMux(t, &stubProvider{})

	// Config caps uploads at 1 MB
	big := make([]byte, 2*1024*1024)
	copy(big, []byte("RIFF"))

	body, contentType := multipartUpload(t, "big.wav", big, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}
}

func TestHandleTranscribeProviderFailure(t *testing.T) {
	provider := &stubProvider{err: errors.New("vendor down")}
	mux := testMux(t, provider)

	body, contentType := multipartUpload(t, "speech.wav", sineWAV(t, 1), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Expected 502, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "vendor down") {
		t.Errorf("Expected stringified cause in error body, got %s", rec.Body.String())
	}
}

func TestHandleConvert(t *testing.T) {
	mux := testMux(t, &stubProvider{})

	body, contentType := multipartUpload(t, "speech.wav", sineWAV(t, 1), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/convert", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if ct := rec.Header().Get("Content-Type"); ct != "audio/wav" {
		t.Errorf("Expected audio/wav, got %s", ct)
	}

	if !audio.IsWAV(rec.Body.Bytes()) {
		t.Error("Expected WAV bytes in response")
	}

	if rec.Header().Get("X-Conversion-Info") == "" {
		t.Error("Expected conversion info header")
	}
}

func TestHandleAnalyze(t *testing.T) {
	mux := testMux(t, &stubProvider{})

	body, contentType := multipartUpload(t, "speech.wav", sineWAV(t, 2), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/analyze", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var report audio.QualityReport
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("Failed to parse report: %v", err)
	}

	// 16 kHz mono 16-bit, 2 s: 25 + 20 + 20 + 20
	if report.QualityScore != 85 {
		t.Errorf("Expected score 85, got %d", report.QualityScore)
	}

	if report.OverallQuality != "excellent" {
		t.Errorf("Expected excellent, got %s", report.OverallQuality)
	}
}

func TestHandleDescribeRequiresVideo(t *testing.T) {
	provider := &stubProvider{}
	mux := testMux(t, provider)

	body, contentType := multipartUpload(t, "speech.wav", sineWAV(t, 1), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/describe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "requires a video upload") {
		t.Errorf("Expected video requirement error, got %s", rec.Body.String())
	}

	if provider.calls != 0 {
		t.Errorf("Expected 0 provider calls, got %d", provider.calls)
	}
}

func TestHandleDescribeUnknownModel(t *testing.T) {
	mux := testMux(t, &stubProvider{})

	body, contentType := multipartUpload(t, "clip.mp4", []byte("fake video bytes"), map[string]string{
		"model": "Nonexistent Vision Model",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/describe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	// Rejection happens before any frame extraction
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "unknown model") {
		t.Errorf("Expected unknown model error, got %s", rec.Body.String())
	}
}

func TestHandleDescribeNoVideoModel(t *testing.T) {
	// Test config carries no vision model, so an unqualified request fails
	mux := testMux(t, &stubProvider{})

	body, contentType := multipartUpload(t, "clip.mp4", []byte("fake video bytes"), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/describe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("Expected 400, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "no video model configured") {
		t.Errorf("Expected missing video model error, got %s", rec.Body.String())
	}
}

func TestHandleModels(t *testing.T) {
	mux := testMux(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/models", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var resp struct {
		Default string                    `json:"default"`
		Models  []transcription.ModelInfo `json:"models"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp.Default != "OpenAI Whisper" {
		t.Errorf("Expected default model, got %q", resp.Default)
	}

	if len(resp.Models) != 1 {
		t.Errorf("Expected 1 model, got %d", len(resp.Models))
	}
}

func TestHandleJobDetail(t *testing.T) {
	s := testServer(t, &stubProvider{})
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	j := s.jobs.Create("a.wav", "OpenAI Whisper")

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/"+j.ID, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/no-such-job", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for missing job, got %d", rec.Code)
	}
}

func TestHandleHealth(t *testing.T) {
	mux := testMux(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var health map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &health); err != nil {
		t.Fatalf("Failed to parse health response: %v", err)
	}

	if health["status"] != "healthy" {
		t.Errorf("Expected healthy status, got %v", health["status"])
	}
}

func TestHandleConfigSanitized(t *testing.T) {
	mux := testMux(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/config", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	// API key must never leak through the config endpoint
	if strings.Contains(rec.Body.String(), "api_key") ||
		strings.Contains(rec.Body.String(), "APIKey") {
		t.Error("Config response must not expose API key fields")
	}
}

func TestHandleIndex(t *testing.T) {
	mux := testMux(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), "<form") {
		t.Error("Expected upload form in UI")
	}
}

func TestDeploymentOverrideReachesVendor(t *testing.T) {
	var gotDeployment atomic.Value
	vendor := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDeployment.Store(r.Header.Get("X-Clarifai-Deployment-Id"))
		fmt.Fprint(w, `{"status":{"code":10000,"description":"Ok"},"outputs":[{"data":{"text":{"raw":"ok"}}}]}`)
	}))
	defer vendor.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := testConfig()
	cfg.Models = config.DefaultModels()
	cfg.Transcription.Endpoint = vendor.URL
	cfg.Transcription.APIKey = "test-pat"
	cfg.Transcription.DeploymentID = "deploy-from-env"

	// Registry built the same way main builds it
	effective := cfg.EffectiveModels()
	models := make([]transcription.ModelInfo, 0, len(effective))
	for _, m := range effective {
		models = append(models, transcription.ModelInfo{
			Name:         m.Name,
			ModelID:      m.ModelID,
			UserID:       m.UserID,
			AppID:        m.AppID,
			DeploymentID: m.DeploymentID,
			Description:  m.Description,
		})
	}

	registry, err := transcription.NewRegistry(models)
	if err != nil {
		t.Fatalf("Failed to create registry: %v", err)
	}

	client, err := transcription.NewClarifaiClient(transcription.ClarifaiConfig{
		Endpoint:      vendor.URL,
		APIKey:        "test-pat",
		Timeout:       5 * time.Second,
		MaxConcurrent: 1,
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	extractor := media.NewExtractor(logger, t.TempDir())
	converter := audio.NewConverter(logger, extractor)
	service := transcription.NewService(logger, registry, client)

	jobs := job.NewManager(logger, 0)
	t.Cleanup(jobs.Stop)

	s := NewServer(logger, cfg, converter, extractor, service, jobs, sharedMetrics)
	mux := http.NewServeMux()
	s.setupRoutes(mux)

	body, contentType := multipartUpload(t, "speech.wav", sineWAV(t, 1), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/transcribe", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// The global deployment override must reach the vendor request
	if got, _ := gotDeployment.Load().(string); got != "deploy-from-env" {
		t.Errorf("Expected deployment override on vendor request, got %q", got)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	mux := testMux(t, &stubProvider{})

	req := httptest.NewRequest(http.MethodGet, "/api/transcribe", nil)
	rec := httptest.NewRecorder()

	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}
