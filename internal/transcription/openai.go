package transcription

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig contains OpenAI Whisper client configuration
type OpenAIConfig struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// OpenAIClient transcribes audio through the OpenAI audio transcription
// endpoint. It satisfies the same Provider interface as the Clarifai
// client so the two are interchangeable behind configuration.
type OpenAIClient struct {
	client     *openai.Client
	config     OpenAIConfig
	maxRetries int

	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64

	mu sync.RWMutex
}

// NewOpenAIClient creates an OpenAI provider client
func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 2
	}

	cfg := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		cfg.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(cfg),
		config:     config,
		maxRetries: config.MaxRetries,
	}, nil
}

// Transcribe sends WAV audio to the Whisper transcription endpoint
func (c *OpenAIClient) Transcribe(ctx context.Context, audio []byte, model ModelInfo, params Params) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio data is empty")
	}

	modelID := model.ModelID
	if modelID == "" {
		modelID = openai.Whisper1
	}

	c.incrementTotalRequests()

	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			select {
			case <-time.After(time.Duration(attempt) * 2 * time.Second):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)

		req := openai.AudioRequest{
			Model:       modelID,
			FilePath:    "audio.wav",
			Reader:      bytes.NewReader(audio),
			Temperature: float32(params.Temperature),
			Language:    params.Language,
		}

		resp, err := c.client.CreateTranscription(reqCtx, req)
		cancel()

		if err == nil {
			c.incrementSuccessRequests()
			return resp.Text, nil
		}

		lastErr = err

		if ctx.Err() != nil {
			break
		}
	}

	c.incrementFailedRequests()
	return "", fmt.Errorf("whisper transcription failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// GetStats returns current client statistics
func (c *OpenAIClient) GetStats() ClientStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	successRate := float64(0)
	if c.totalRequests > 0 {
		successRate = float64(c.successRequests) / float64(c.totalRequests) * 100
	}

	return ClientStats{
		TotalRequests:   c.totalRequests,
		SuccessRequests: c.successRequests,
		FailedRequests:  c.failedRequests,
		SuccessRate:     successRate,
		TotalRetries:    c.totalRetries,
	}
}

func (c *OpenAIClient) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *OpenAIClient) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *OpenAIClient) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *OpenAIClient) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}
