package transcription

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pemistahl/lingua-go"

	"github.com/toswari-ai/audio-transcribe/internal/audio"
)

// ChunkResult reports the outcome of one chunk during chunked transcription.
type ChunkResult struct {
	Index    int           `json:"index"`
	Total    int           `json:"total"`
	Text     string        `json:"text"`
	Duration time.Duration `json:"duration"`
	Err      error         `json:"-"`
}

// Result is a completed transcription.
type Result struct {
	Text     string        `json:"text"`
	Model    string        `json:"model"`
	Language string        `json:"language,omitempty"`
	Chunks   int           `json:"chunks,omitempty"`
	Elapsed  time.Duration `json:"elapsed"`
}

// Service resolves model names and orchestrates single-shot and chunked
// transcription against a provider.
type Service struct {
	logger   *slog.Logger
	registry *Registry
	provider Provider
	detector lingua.LanguageDetector
}

// NewService creates a transcription service. The language detector is
// built once here; constructing it per request is too expensive.
func NewService(logger *slog.Logger, registry *Registry, provider Provider) *Service {
	detector := lingua.NewLanguageDetectorBuilder().
		FromLanguages(
			lingua.English,
			lingua.Spanish,
			lingua.French,
			lingua.German,
			lingua.Portuguese,
			lingua.Italian,
			lingua.Ukrainian,
			lingua.Russian,
			lingua.Chinese,
			lingua.Japanese,
		).
		Build()

	return &Service{
		logger:   logger,
		registry: registry,
		provider: provider,
		detector: detector,
	}
}

// Registry exposes the model registry for listing endpoints.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Provider exposes the underlying provider for stats endpoints.
func (s *Service) Provider() Provider {
	return s.provider
}

// Transcribe performs a single synchronous transcription. The model name
// is resolved against the registry before anything is sent over the wire.
func (s *Service) Transcribe(ctx context.Context, wavData []byte, modelName string, params Params) (*Result, error) {
	if len(wavData) == 0 {
		return nil, fmt.Errorf("audio data is empty")
	}

	model, err := s.registry.Lookup(modelName)
	if err != nil {
		return nil, err
	}

	startTime := time.Now()

	s.logger.Info("Starting transcription",
		slog.String("model", model.Name),
		slog.Int("audio_bytes", len(wavData)),
	)

	text, err := s.provider.Transcribe(ctx, wavData, model, params)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Text:     text,
		Model:    model.Name,
		Language: s.DetectLanguage(text),
		Elapsed:  time.Since(startTime),
	}

	s.logger.Info("Transcription completed",
		slog.String("model", model.Name),
		slog.Int("text_length", len(text)),
		slog.Duration("elapsed", result.Elapsed),
	)

	return result, nil
}

// TranscribeChunked splits the audio into fixed-duration windows and
// transcribes them sequentially, joining the texts in order. A failed
// chunk contributes an error marker instead of aborting the whole run.
// onChunk, when non-nil, is invoked after each chunk completes.
func (s *Service) TranscribeChunked(ctx context.Context, wavData []byte, modelName string, chunkDuration time.Duration, params Params, onChunk func(ChunkResult)) (*Result, error) {
	if len(wavData) == 0 {
		return nil, fmt.Errorf("audio data is empty")
	}

	model, err := s.registry.Lookup(modelName)
	if err != nil {
		return nil, err
	}

	if chunkDuration <= 0 {
		chunkDuration = 10 * time.Second
	}

	chunks, err := audio.SplitWAV(wavData, chunkDuration)
	if err != nil {
		return nil, fmt.Errorf("failed to split audio: %w", err)
	}

	startTime := time.Now()
	total := len(chunks)

	s.logger.Info("Starting chunked transcription",
		slog.String("model", model.Name),
		slog.Int("chunks", total),
		slog.Duration("chunk_duration", chunkDuration),
	)

	texts := make([]string, 0, total)
	failed := 0

	for i, chunk := range chunks {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		chunkStart := time.Now()
		text, err := s.provider.Transcribe(ctx, chunk, model, params)

		result := ChunkResult{
			Index:    i,
			Total:    total,
			Text:     text,
			Duration: time.Since(chunkStart),
			Err:      err,
		}

		if err != nil {
			failed++
			s.logger.Warn("Chunk transcription failed",
				slog.Int("chunk", i),
				slog.String("error", err.Error()),
			)
			result.Text = fmt.Sprintf("[chunk %d failed]", i+1)
		}

		if result.Text != "" {
			texts = append(texts, result.Text)
		}

		if onChunk != nil {
			onChunk(result)
		}
	}

	if failed == total {
		return nil, fmt.Errorf("all %d chunks failed to transcribe", total)
	}

	fullText := strings.Join(texts, " ")

	s.logger.Info("Chunked transcription completed",
		slog.String("model", model.Name),
		slog.Int("chunks", total),
		slog.Int("failed", failed),
		slog.Duration("elapsed", time.Since(startTime)),
	)

	return &Result{
		Text:     fullText,
		Model:    model.Name,
		Language: s.DetectLanguage(fullText),
		Chunks:   total,
		Elapsed:  time.Since(startTime),
	}, nil
}

// DefaultVideoPrompt is used when a describe request carries no prompt.
const DefaultVideoPrompt = "Describe in detail what is in the video."

// DescribeVideo sends extracted video frames to a multimodal model and
// returns the generated description. The model name is resolved against
// the registry before anything is sent over the wire.
func (s *Service) DescribeVideo(ctx context.Context, frames [][]byte, modelName, prompt string, params Params) (*Result, error) {
	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames to describe")
	}

	model, err := s.registry.Lookup(modelName)
	if err != nil {
		return nil, err
	}

	vision, ok := s.provider.(VisionProvider)
	if !ok {
		return nil, fmt.Errorf("provider does not support video description")
	}

	if prompt == "" {
		prompt = DefaultVideoPrompt
	}

	startTime := time.Now()

	s.logger.Info("Starting video description",
		slog.String("model", model.Name),
		slog.Int("frames", len(frames)),
	)

	text, err := vision.Describe(ctx, frames, model, prompt, params)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Text:    text,
		Model:   model.Name,
		Elapsed: time.Since(startTime),
	}

	s.logger.Info("Video description completed",
		slog.String("model", model.Name),
		slog.Int("text_length", len(text)),
		slog.Duration("elapsed", result.Elapsed),
	)

	return result, nil
}

// DetectLanguage guesses the language of transcribed text. Returns an
// empty string when the text is too short to classify reliably.
func (s *Service) DetectLanguage(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 20 {
		return ""
	}

	language, exists := s.detector.DetectLanguageOf(trimmed)
	if !exists {
		return ""
	}

	return language.String()
}
