package transcription

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"
)

// clarifaiStatusSuccess is the vendor's numeric code for a successful call.
const clarifaiStatusSuccess = 10000

// Params carries per-request inference parameters.
type Params struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Language    string  `json:"language,omitempty"`
}

// Provider performs a synchronous transcription of one audio payload.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, model ModelInfo, params Params) (string, error)
}

// VisionProvider generates a text description of video frames with a
// multimodal model. Providers without vision support do not implement it.
type VisionProvider interface {
	Describe(ctx context.Context, frames [][]byte, model ModelInfo, prompt string, params Params) (string, error)
}

// ClarifaiConfig contains Clarifai client configuration
type ClarifaiConfig struct {
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	MaxRetries    int
	MaxConcurrent int
}

// ClarifaiClient calls the Clarifai model inference REST API. Requests are
// rate limited with a semaphore and retried with exponential backoff.
type ClarifaiClient struct {
	config     ClarifaiConfig
	httpClient *http.Client
	semaphore  chan struct{}

	// Statistics
	totalRequests   uint64
	successRequests uint64
	failedRequests  uint64
	totalRetries    uint64
	avgResponseTime time.Duration

	mu sync.RWMutex
}

// ClientStats represents provider client statistics
type ClientStats struct {
	TotalRequests   uint64        `json:"total_requests"`
	SuccessRequests uint64        `json:"success_requests"`
	FailedRequests  uint64        `json:"failed_requests"`
	SuccessRate     float64       `json:"success_rate"`
	TotalRetries    uint64        `json:"total_retries"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
	ActiveRequests  int           `json:"active_requests"`
}

// clarifaiRequest is the JSON body of a model outputs call.
type clarifaiRequest struct {
	Inputs []clarifaiInput `json:"inputs"`
	Model  *clarifaiModel  `json:"model,omitempty"`
}

type clarifaiInput struct {
	Data clarifaiData `json:"data"`
}

type clarifaiData struct {
	Audio *clarifaiAudio `json:"audio,omitempty"`
	Image *clarifaiImage `json:"image,omitempty"`
	Text  *clarifaiText  `json:"text,omitempty"`
}

type clarifaiAudio struct {
	Base64 string `json:"base64"`
}

type clarifaiImage struct {
	Base64 string `json:"base64"`
}

type clarifaiText struct {
	Raw string `json:"raw"`
}

type clarifaiModel struct {
	OutputInfo clarifaiOutputInfo `json:"output_info"`
}

type clarifaiOutputInfo struct {
	Params map[string]interface{} `json:"params,omitempty"`
}

// clarifaiResponse is the subset of the response we extract text from.
type clarifaiResponse struct {
	Status struct {
		Code        int    `json:"code"`
		Description string `json:"description"`
	} `json:"status"`
	Outputs []struct {
		Data struct {
			Text struct {
				Raw string `json:"raw"`
			} `json:"text"`
			Concepts []struct {
				Name  string  `json:"name"`
				Value float64 `json:"value"`
			} `json:"concepts"`
		} `json:"data"`
	} `json:"outputs"`
}

// NewClarifaiClient creates a Clarifai provider client
func NewClarifaiClient(config ClarifaiConfig) (*ClarifaiClient, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint cannot be empty")
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	if config.MaxRetries < 0 {
		config.MaxRetries = 3
	}

	if config.MaxConcurrent <= 0 {
		config.MaxConcurrent = 4
	}

	httpClient := &http.Client{
		Timeout: config.Timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}

	return &ClarifaiClient{
		config:     config,
		httpClient: httpClient,
		semaphore:  make(chan struct{}, config.MaxConcurrent),
	}, nil
}

// Transcribe sends audio to a model and extracts the transcription text
func (c *ClarifaiClient) Transcribe(ctx context.Context, audio []byte, model ModelInfo, params Params) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio data is empty")
	}

	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	var lastErr error

	// Retry loop with exponential backoff
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.doRequest(ctx, audio, model, params)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return text, nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return "", fmt.Errorf("transcription failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// Describe sends sampled video frames with a text prompt to a multimodal
// model and extracts the generated description. The prompt is the first
// input; each frame follows as a base64 image input.
func (c *ClarifaiClient) Describe(ctx context.Context, frames [][]byte, model ModelInfo, prompt string, params Params) (string, error) {
	if len(frames) == 0 {
		return "", fmt.Errorf("no frames to describe")
	}

	if prompt == "" {
		return "", fmt.Errorf("prompt cannot be empty")
	}

	// Acquire semaphore for rate limiting
	select {
	case c.semaphore <- struct{}{}:
		defer func() { <-c.semaphore }()
	case <-ctx.Done():
		return "", ctx.Err()
	}

	startTime := time.Now()
	c.incrementTotalRequests()

	inputs := make([]clarifaiInput, 0, len(frames)+1)
	inputs = append(inputs, clarifaiInput{Data: clarifaiData{Text: &clarifaiText{Raw: prompt}}})
	for _, frame := range frames {
		inputs = append(inputs, clarifaiInput{
			Data: clarifaiData{Image: &clarifaiImage{Base64: base64.StdEncoding.EncodeToString(frame)}},
		})
	}

	reqBody := clarifaiRequest{Inputs: inputs, Model: modelParams(params)}

	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.incrementTotalRetries()

			backoffTime := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
			if backoffTime > 30*time.Second {
				backoffTime = 30 * time.Second
			}

			select {
			case <-time.After(backoffTime):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := c.postOutputs(ctx, reqBody, model)
		if err == nil {
			c.incrementSuccessRequests()
			c.updateAvgResponseTime(time.Since(startTime))
			return text, nil
		}

		lastErr = err

		if !c.isRetryableError(err) {
			break
		}
	}

	c.incrementFailedRequests()
	return "", fmt.Errorf("description failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// doRequest performs a single transcription outputs call
func (c *ClarifaiClient) doRequest(ctx context.Context, audio []byte, model ModelInfo, params Params) (string, error) {
	reqBody := clarifaiRequest{
		Inputs: []clarifaiInput{
			{Data: clarifaiData{Audio: &clarifaiAudio{Base64: base64.StdEncoding.EncodeToString(audio)}}},
		},
		Model: modelParams(params),
	}

	return c.postOutputs(ctx, reqBody, model)
}

// modelParams maps inference parameters onto the vendor's output_info shape.
func modelParams(params Params) *clarifaiModel {
	if params.Temperature <= 0 && params.MaxTokens <= 0 {
		return nil
	}

	p := make(map[string]interface{})
	if params.Temperature > 0 {
		p["temperature"] = params.Temperature
	}
	if params.MaxTokens > 0 {
		p["max_tokens"] = params.MaxTokens
	}

	return &clarifaiModel{OutputInfo: clarifaiOutputInfo{Params: p}}
}

// postOutputs performs a single model outputs call
func (c *ClarifaiClient) postOutputs(ctx context.Context, reqBody clarifaiRequest, model ModelInfo) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/users/%s/apps/%s/models/%s/outputs",
		strings.TrimSuffix(c.config.Endpoint, "/"), model.UserID, model.AppID, model.ModelID)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create HTTP request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Key "+c.config.APIKey)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", "audio-transcribe/1.0")

	if model.DeploymentID != "" {
		httpReq.Header.Set("X-Clarifai-Deployment-Id", model.DeploymentID)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("HTTP error %d: %s", resp.StatusCode, truncateBody(respBody))
	}

	var parsed clarifaiResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response JSON: %w", err)
	}

	if parsed.Status.Code != clarifaiStatusSuccess {
		return "", fmt.Errorf("vendor API error %d: %s", parsed.Status.Code, parsed.Status.Description)
	}

	return extractText(&parsed), nil
}

// extractText pulls the transcription out of a response. Text output is
// preferred; some ASR models return words as concepts instead.
func extractText(resp *clarifaiResponse) string {
	if len(resp.Outputs) == 0 {
		return "No transcription available"
	}

	output := resp.Outputs[0]

	if output.Data.Text.Raw != "" {
		return strings.TrimSpace(output.Data.Text.Raw)
	}

	if len(output.Data.Concepts) > 0 {
		var sb strings.Builder
		for _, concept := range output.Data.Concepts {
			sb.WriteString(concept.Name)
			sb.WriteString(" ")
		}
		return strings.TrimSpace(sb.String())
	}

	return "Model returned empty response - may not be deployed or compatible with audio format"
}

// isRetryableError determines if an error is worth retrying
func (c *ClarifaiClient) isRetryableError(err error) bool {
	if err == context.DeadlineExceeded {
		return true
	}

	errStr := err.Error()

	// 5xx server errors and rate limiting are retryable
	if strings.Contains(errStr, "HTTP error 5") ||
		strings.Contains(errStr, "HTTP error 429") {
		return true
	}

	// Network-level failures are typically transient
	if strings.Contains(errStr, "connection") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "refused") {
		return true
	}

	return false
}

func truncateBody(body []byte) string {
	const max = 256
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}

// Statistics methods
func (c *ClarifaiClient) incrementTotalRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRequests++
}

func (c *ClarifaiClient) incrementSuccessRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.successRequests++
}

func (c *ClarifaiClient) incrementFailedRequests() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failedRequests++
}

func (c *ClarifaiClient) incrementTotalRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalRetries++
}

func (c *ClarifaiClient) updateAvgResponseTime(responseTime time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Simple moving average
	if c.avgResponseTime == 0 {
		c.avgResponseTime = responseTime
	} else {
		c.avgResponseTime = (c.avgResponseTime + responseTime) / 2
	}
}

// Close waits for all active requests to complete
func (c *ClarifaiClient) Close() error {
	for i := 0; i < cap(c.semaphore); i++ {
		c.semaphore <- struct{}{}
	}

	return nil
}

// GetStats returns current client statistics
func (c *ClarifaiClient) GetStats() ClientStats {
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
		AvgResponseTime: c.avgResponseTime,
		ActiveRequests:  len(c.semaphore),
	}
}
