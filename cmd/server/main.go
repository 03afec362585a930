package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/toswari-ai/audio-transcribe/internal/audio"
	"github.com/toswari-ai/audio-transcribe/internal/config"
	"github.com/toswari-ai/audio-transcribe/internal/job"
	"github.com/toswari-ai/audio-transcribe/internal/media"
	"github.com/toswari-ai/audio-transcribe/internal/metrics"
	"github.com/toswari-ai/audio-transcribe/internal/server"
	"github.com/toswari-ai/audio-transcribe/internal/transcription"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "audio-transcribe"
	serviceVersion    = "1.0.0"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	// Load configuration (reads .env first, then YAML, then env overrides)
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger based on configuration
	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	// Log configuration summary (without sensitive data)
	logger.Info("Configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("address", cfg.Server.Address),
		slog.Int("max_file_size_mb", cfg.Upload.MaxFileSizeMB),
		slog.Int("target_sample_rate", cfg.Audio.TargetSampleRate),
		slog.Float64("chunk_duration", cfg.Audio.ChunkDuration),
		slog.String("provider", cfg.Transcription.Provider),
		slog.String("default_model", cfg.Transcription.DefaultModel),
		slog.Int("models", len(cfg.Models)),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize Prometheus metrics
	appMetrics := metrics.NewMetrics()
	logger.Info("Prometheus metrics initialized")

	// Build the model registry from configuration, with the global
	// deployment ID override already applied
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
		logger.Error("Failed to build model registry", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Construct the transcription provider
	provider, err := newProvider(cfg)
	if err != nil {
		logger.Error("Failed to create transcription provider", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Transcription provider initialized",
		slog.String("provider", cfg.Transcription.Provider),
	)

	service := transcription.NewService(logger, registry, provider)

	// ffmpeg-backed media extraction and decoding
	extractor := media.NewExtractor(logger, cfg.Upload.TempDir)
	if extractor.Available() {
		logger.Info("ffmpeg available, video uploads and compressed audio enabled")
	} else {
		logger.Warn("ffmpeg not found, only WAV uploads will be processed")
	}

	converter := audio.NewConverter(logger, extractor)

	// Job tracking with background cleanup
	jobManager := job.NewManager(logger, cfg.Upload.GetJobRetention())

	// HTTP server with embedded UI
	httpServer := server.NewServer(logger, cfg, converter, extractor, service, jobManager, appMetrics)

	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Setup signal handling for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("address", fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	// Stop the job manager (cleanup routine and tracked jobs)
	jobManager.Stop()

	// Drain the provider's in-flight requests
	if closer, ok := provider.(interface{ Close() error }); ok {
		closer.Close()
	}

	// Final statistics
	jobStats := jobManager.GetStats()
	logger.Info("Final service statistics",
		slog.Uint64("jobs_created", jobStats.TotalCreated),
		slog.Uint64("jobs_completed", jobStats.TotalCompleted),
		slog.Uint64("jobs_failed", jobStats.TotalFailed),
	)

	if sp, ok := provider.(interface{ GetStats() transcription.ClientStats }); ok {
		stats := sp.GetStats()
		logger.Info("Final transcription statistics",
			slog.Uint64("total_requests", stats.TotalRequests),
			slog.Uint64("success_requests", stats.SuccessRequests),
			slog.Uint64("failed_requests", stats.FailedRequests),
			slog.Uint64("total_retries", stats.TotalRetries),
		)
	}

	logger.Info("Service stopped")
}

// newProvider constructs the transcription provider named in configuration
func newProvider(cfg *config.Config) (transcription.Provider, error) {
	switch cfg.Transcription.Provider {
	case "openai":
		return transcription.NewOpenAIClient(transcription.OpenAIConfig{
			APIKey:     cfg.Transcription.APIKey,
			Timeout:    cfg.Transcription.GetTimeoutDuration(),
			MaxRetries: cfg.Transcription.MaxRetries,
		})

	case "clarifai", "":
		return transcription.NewClarifaiClient(transcription.ClarifaiConfig{
			Endpoint:      cfg.Transcription.Endpoint,
			APIKey:        cfg.Transcription.APIKey,
			Timeout:       cfg.Transcription.GetTimeoutDuration(),
			MaxRetries:    cfg.Transcription.MaxRetries,
			MaxConcurrent: cfg.Transcription.MaxConcurrent,
		})

	default:
		return nil, fmt.Errorf("unknown transcription provider '%s'", cfg.Transcription.Provider)
	}
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	// Parse log level
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default fallback
	}

	// Configure handler options
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug, // Add source info for debug level
	}

	// Determine output destination
	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	// Create handler based on format
	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	case "text", "":
		handler = slog.NewTextHandler(output, opts)
	default:
		// Default to text format
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
