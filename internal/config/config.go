package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Upload        UploadConfig        `yaml:"upload"`
	Audio         AudioConfig         `yaml:"audio"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Models        []ModelConfig       `yaml:"models"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port         int    `yaml:"port"`
	Address      string `yaml:"address"`
	ReadTimeout  int    `yaml:"read_timeout"`  // seconds
	WriteTimeout int    `yaml:"write_timeout"` // seconds
}

// UploadConfig contains upload handling configuration
type UploadConfig struct {
	MaxFileSizeMB  int      `yaml:"max_file_size_mb"`
	AudioFormats   []string `yaml:"audio_formats"`
	VideoFormats   []string `yaml:"video_formats"`
	TempDir        string   `yaml:"temp_dir"`
	JobRetention   int      `yaml:"job_retention"` // seconds
}

// AudioConfig contains audio conversion parameters
type AudioConfig struct {
	TargetSampleRate   int     `yaml:"target_sample_rate"`
	HighQuality        bool    `yaml:"high_quality"`
	Normalize          bool    `yaml:"normalize"`
	TrimSilence        bool    `yaml:"trim_silence"`
	ChunkDuration      float64 `yaml:"chunk_duration"`       // seconds, for pseudo-streaming
	SilenceThresholdDB float64 `yaml:"silence_threshold_db"` // dBFS
	MinSilenceDuration float64 `yaml:"min_silence_duration"` // seconds
	SilencePadding     float64 `yaml:"silence_padding"`      // seconds
}

// TranscriptionConfig contains transcription provider configuration
type TranscriptionConfig struct {
	Provider      string  `yaml:"provider"` // "clarifai" or "openai"
	Endpoint      string  `yaml:"endpoint"`
	APIKey        string  `yaml:"-"` // From env only, never YAML
	DeploymentID  string  `yaml:"deployment_id"`
	DefaultModel  string  `yaml:"default_model"`
	VideoModel    string  `yaml:"video_model"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"max_tokens"`
	Timeout       int     `yaml:"timeout"` // seconds
	MaxRetries    int     `yaml:"max_retries"`
	MaxConcurrent int     `yaml:"max_concurrent"`
}

// ModelConfig describes one vendor model in the registry
type ModelConfig struct {
	Name         string `yaml:"name" json:"name"`
	ModelID      string `yaml:"model_id" json:"model_id"`
	UserID       string `yaml:"user_id" json:"user_id"`
	AppID        string `yaml:"app_id" json:"app_id"`
	DeploymentID string `yaml:"deployment_id" json:"deployment_id,omitempty"`
	Description  string `yaml:"description" json:"description"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default constants for optional settings
const (
	defaultTargetSampleRate = 16000
	defaultChunkDuration    = 4.0
	defaultMaxFileSizeMB    = 25
	defaultTemperature      = 0.7
	defaultMaxTokens        = 1000
	defaultJobRetention     = 600
	defaultVideoModel       = "GPT-4 Vision"
)

// DefaultModels is the built-in model registry, used when the configuration
// file does not define its own list.
func DefaultModels() []ModelConfig {
	return []ModelConfig{
		{
			Name:        "AssemblyAI Audio Transcription",
			ModelID:     "audio-transcription",
			UserID:      "assemblyai",
			AppID:       "speech-recognition",
			Description: "Human-level accuracy speech recognition",
		},
		{
			Name:        "OpenAI Whisper",
			ModelID:     "whisper",
			UserID:      "openai",
			AppID:       "transcription",
			Description: "Versatile pre-trained ASR model",
		},
		{
			Name:         "OpenAI Whisper Large V3",
			ModelID:      "whisper-large-v3",
			UserID:       "openai",
			AppID:        "transcription",
			DeploymentID: "deploy-whisper-large-v3-cr4h",
			Description:  "Latest Whisper v3 with improved multilingual accuracy",
		},
		{
			Name:        "OpenAI Whisper Large V2",
			ModelID:     "whisper-large-v2",
			UserID:      "openai",
			AppID:       "transcription",
			Description: "High accuracy multilingual transcription",
		},
		{
			Name:        "Deepgram Nova-2",
			ModelID:     "audio-transcription",
			UserID:      "deepgram",
			AppID:       "transcribe",
			Description: "Low error rates with superior speed",
		},
		{
			Name:        "Facebook Wav2Vec2 English",
			ModelID:     "asr-wav2vec2-base-960h-english",
			UserID:      "facebook",
			AppID:       "asr",
			Description: "English speech to text conversion",
		},
		{
			Name:        "Google Chirp ASR",
			ModelID:     "chirp-asr",
			UserID:      "gcp",
			AppID:       "speech-recognition",
			Description: "Google Cloud state-of-the-art speech recognition",
		},
		{
			Name:        defaultVideoModel,
			ModelID:     "gpt-4-vision-alternative",
			UserID:      "openai",
			AppID:       "chat-completion",
			Description: "Multimodal model for describing video frames",
		},
	}
}

// Load reads the configuration file, fills in defaults, and applies
// environment overrides. A .env file in the working directory is loaded
// first; secrets only ever come from the environment.
func Load(path string) (*Config, error) {
	// Missing .env is fine, it is a development convenience
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()
	config.applyEnvOverrides()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills in zero-valued optional settings.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Address == "" {
		c.Server.Address = "0.0.0.0"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 60
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 120
	}

	if c.Upload.MaxFileSizeMB == 0 {
		c.Upload.MaxFileSizeMB = defaultMaxFileSizeMB
	}
	if len(c.Upload.AudioFormats) == 0 {
		c.Upload.AudioFormats = []string{"wav", "mp3", "flac", "m4a", "ogg"}
	}
	if len(c.Upload.VideoFormats) == 0 {
		c.Upload.VideoFormats = []string{"mp4", "mov", "avi", "mkv", "webm"}
	}
	if c.Upload.TempDir == "" {
		c.Upload.TempDir = os.TempDir()
	}
	if c.Upload.JobRetention == 0 {
		c.Upload.JobRetention = defaultJobRetention
	}

	if c.Audio.TargetSampleRate == 0 {
		c.Audio.TargetSampleRate = defaultTargetSampleRate
	}
	if c.Audio.ChunkDuration == 0 {
		c.Audio.ChunkDuration = defaultChunkDuration
	}
	if c.Audio.SilenceThresholdDB == 0 {
		c.Audio.SilenceThresholdDB = -40
	}
	if c.Audio.MinSilenceDuration == 0 {
		c.Audio.MinSilenceDuration = 0.3
	}
	if c.Audio.SilencePadding == 0 {
		c.Audio.SilencePadding = 0.2
	}

	if c.Transcription.Provider == "" {
		c.Transcription.Provider = "clarifai"
	}
	if c.Transcription.Endpoint == "" {
		c.Transcription.Endpoint = "https://api.clarifai.com"
	}
	if c.Transcription.Temperature == 0 {
		c.Transcription.Temperature = defaultTemperature
	}
	if c.Transcription.MaxTokens == 0 {
		c.Transcription.MaxTokens = defaultMaxTokens
	}
	if c.Transcription.Timeout == 0 {
		c.Transcription.Timeout = 60
	}
	if c.Transcription.MaxConcurrent == 0 {
		c.Transcription.MaxConcurrent = 4
	}

	if len(c.Models) == 0 {
		c.Models = DefaultModels()
	}
	if c.Transcription.DefaultModel == "" {
		c.Transcription.DefaultModel = "OpenAI Whisper Large V3"
	}
	// Only default the video model when the registry actually carries it;
	// a custom registry without a vision model disables video description
	if c.Transcription.VideoModel == "" {
		for _, m := range c.Models {
			if m.Name == defaultVideoModel {
				c.Transcription.VideoModel = m.Name
				break
			}
		}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Logging.Output == "" {
		c.Logging.Output = "stdout"
	}
}

// applyEnvOverrides layers environment variables over the file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CLARIFAI_PAT"); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("TRANSCRIBE_API_KEY"); v != "" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Transcription.Provider == "openai" {
		c.Transcription.APIKey = v
	}
	if v := os.Getenv("CLARIFAI_DEPLOYMENT_ID"); v != "" {
		c.Transcription.DeploymentID = v
	}
	if v := os.Getenv("DEFAULT_MODEL"); v != "" {
		c.Transcription.DefaultModel = v
	}
	if v := os.Getenv("DEFAULT_VIDEO_MODEL"); v != "" {
		c.Transcription.VideoModel = v
	}
	if v := os.Getenv("TARGET_SAMPLE_RATE"); v != "" {
		if rate, err := strconv.Atoi(v); err == nil {
			c.Audio.TargetSampleRate = rate
		}
	}
	if v := os.Getenv("MAX_FILE_SIZE_MB"); v != "" {
		if size, err := strconv.Atoi(v); err == nil {
			c.Upload.MaxFileSizeMB = size
		}
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Transcription.Validate(); err != nil {
		return fmt.Errorf("transcription config: %w", err)
	}

	if err := c.validateModels(); err != nil {
		return fmt.Errorf("models config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if s.ReadTimeout < 1 {
		return fmt.Errorf("read_timeout must be at least 1 second, got %d", s.ReadTimeout)
	}

	if s.WriteTimeout < 1 {
		return fmt.Errorf("write_timeout must be at least 1 second, got %d", s.WriteTimeout)
	}

	return nil
}

// Validate validates upload configuration
func (u *UploadConfig) Validate() error {
	if u.MaxFileSizeMB < 1 {
		return fmt.Errorf("max_file_size_mb must be at least 1, got %d", u.MaxFileSizeMB)
	}

	if len(u.AudioFormats) == 0 {
		return fmt.Errorf("audio_formats cannot be empty")
	}

	if u.JobRetention < 1 {
		return fmt.Errorf("job_retention must be at least 1 second, got %d", u.JobRetention)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	validRates := map[int]bool{8000: true, 16000: true, 22050: true, 44100: true, 48000: true}
	if !validRates[a.TargetSampleRate] {
		return fmt.Errorf("target_sample_rate must be one of [8000, 16000, 22050, 44100, 48000], got %d", a.TargetSampleRate)
	}

	if a.ChunkDuration <= 0 {
		return fmt.Errorf("chunk_duration must be positive, got %f", a.ChunkDuration)
	}

	if a.SilenceThresholdDB >= 0 {
		return fmt.Errorf("silence_threshold_db must be negative, got %f", a.SilenceThresholdDB)
	}

	if a.MinSilenceDuration <= 0 {
		return fmt.Errorf("min_silence_duration must be positive, got %f", a.MinSilenceDuration)
	}

	if a.SilencePadding < 0 {
		return fmt.Errorf("silence_padding cannot be negative, got %f", a.SilencePadding)
	}

	return nil
}

// Validate validates transcription configuration
func (t *TranscriptionConfig) Validate() error {
	validProviders := map[string]bool{"clarifai": true, "openai": true}
	if !validProviders[t.Provider] {
		return fmt.Errorf("provider must be 'clarifai' or 'openai', got '%s'", t.Provider)
	}

	if t.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if t.Temperature < 0 || t.Temperature > 1 {
		return fmt.Errorf("temperature must be between 0 and 1, got %f", t.Temperature)
	}

	if t.MaxTokens < 100 || t.MaxTokens > 2000 {
		return fmt.Errorf("max_tokens must be between 100 and 2000, got %d", t.MaxTokens)
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// validateModels checks the model registry and the default model reference
func (c *Config) validateModels() error {
	names := make(map[string]bool, len(c.Models))

	for i, m := range c.Models {
		if m.Name == "" {
			return fmt.Errorf("model %d: name cannot be empty", i)
		}
		if m.ModelID == "" {
			return fmt.Errorf("model '%s': model_id cannot be empty", m.Name)
		}
		if names[m.Name] {
			return fmt.Errorf("duplicate model name '%s'", m.Name)
		}
		names[m.Name] = true
	}

	if !names[c.Transcription.DefaultModel] {
		return fmt.Errorf("default model '%s' not found in model registry", c.Transcription.DefaultModel)
	}

	if c.Transcription.VideoModel != "" && !names[c.Transcription.VideoModel] {
		return fmt.Errorf("video model '%s' not found in model registry", c.Transcription.VideoModel)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// GetModel returns the model config for a display name, applying the
// deployment ID override when one is configured.
func (c *Config) GetModel(name string) (ModelConfig, bool) {
	for _, m := range c.Models {
		if m.Name == name {
			if c.Transcription.DeploymentID != "" {
				m.DeploymentID = c.Transcription.DeploymentID
			}
			return m, true
		}
	}
	return ModelConfig{}, false
}

// EffectiveModels returns the configured models with the global deployment
// ID override applied, matching GetModel's semantics. The registry must be
// built from this list or the CLARIFAI_DEPLOYMENT_ID override never reaches
// the provider.
func (c *Config) EffectiveModels() []ModelConfig {
	models := make([]ModelConfig, len(c.Models))
	copy(models, c.Models)

	if c.Transcription.DeploymentID != "" {
		for i := range models {
			models[i].DeploymentID = c.Transcription.DeploymentID
		}
	}

	return models
}

// GetChunkDuration returns the pseudo-streaming chunk size as a time.Duration
func (a *AudioConfig) GetChunkDuration() time.Duration {
	return time.Duration(a.ChunkDuration * float64(time.Second))
}

// GetMinSilenceDuration returns the minimum silence run as a time.Duration
func (a *AudioConfig) GetMinSilenceDuration() time.Duration {
	return time.Duration(a.MinSilenceDuration * float64(time.Second))
}

// GetSilencePadding returns the silence padding as a time.Duration
func (a *AudioConfig) GetSilencePadding() time.Duration {
	return time.Duration(a.SilencePadding * float64(time.Second))
}

// GetTimeoutDuration returns the transcription timeout as a time.Duration
func (t *TranscriptionConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetReadTimeout returns the HTTP read timeout as a time.Duration
func (s *ServerConfig) GetReadTimeout() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Second
}

// GetWriteTimeout returns the HTTP write timeout as a time.Duration
func (s *ServerConfig) GetWriteTimeout() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Second
}

// GetJobRetention returns the finished-job retention window as a time.Duration
func (u *UploadConfig) GetJobRetention() time.Duration {
	return time.Duration(u.JobRetention) * time.Second
}

// MaxFileSizeBytes returns the upload size limit in bytes
func (u *UploadConfig) MaxFileSizeBytes() int64 {
	return int64(u.MaxFileSizeMB) * 1024 * 1024
}
