package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service
type Metrics struct {
	// Upload metrics
	UploadsReceived prometheus.Counter
	UploadsRejected prometheus.Counter
	UploadSize      prometheus.Histogram

	// Conversion metrics
	ConversionsTotal     prometheus.Counter
	ConversionFallbacks  prometheus.Counter
	ConversionDuration   prometheus.Histogram
	AudioDurationSeconds prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram
	TranscriptionRetries   prometheus.Counter

	// Chunked transcription metrics
	ChunksProcessed prometheus.Counter
	ChunksFailed    prometheus.Counter

	// Job metrics
	ActiveJobs    prometheus.Gauge
	JobsCreated   prometheus.Counter
	JobsCompleted prometheus.Counter
	JobsFailed    prometheus.Counter

	// WebSocket metrics
	ActiveWebSockets prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Upload metrics
		UploadsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_uploads_received_total",
			Help: "Total number of file uploads received",
		}),
		UploadsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_uploads_rejected_total",
			Help: "Total number of uploads rejected for size or format",
		}),
		UploadSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribe_upload_size_bytes",
			Help:    "Size of uploaded files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 10), // 1KB to ~256MB
		}),

		// Conversion metrics
		ConversionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_conversions_total",
			Help: "Total number of audio conversions attempted",
		}),
		ConversionFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_conversion_fallbacks_total",
			Help: "Total number of conversions that fell back to the original audio",
		}),
		ConversionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribe_conversion_duration_seconds",
			Help:    "Time spent converting audio",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms to ~10s
		}),
		AudioDurationSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribe_audio_duration_seconds",
			Help:    "Duration of processed audio in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_requests_total",
			Help: "Total number of transcription requests sent to the provider",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_successes_total",
			Help: "Total number of successful transcriptions",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_failures_total",
			Help: "Total number of failed transcriptions",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "transcribe_duration_seconds",
			Help:    "Time spent on transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~51s
		}),
		TranscriptionRetries: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_retries_total",
			Help: "Total number of transcription request retries",
		}),

		// Chunked transcription metrics
		ChunksProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_chunks_processed_total",
			Help: "Total number of audio chunks transcribed",
		}),
		ChunksFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_chunks_failed_total",
			Help: "Total number of audio chunks that failed transcription",
		}),

		// Job metrics
		ActiveJobs: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "transcribe_active_jobs",
			Help: "Current number of tracked jobs",
		}),
		JobsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_jobs_created_total",
			Help: "Total number of jobs created",
		}),
		JobsCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_jobs_completed_total",
			Help: "Total number of jobs completed successfully",
		}),
		JobsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "transcribe_jobs_failed_total",
			Help: "Total number of jobs that ended in failure",
		}),

		// WebSocket metrics
		ActiveWebSockets: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "transcribe_active_websockets",
			Help: "Current number of open WebSocket streaming sessions",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "transcribe_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}, []string{"method", "path"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "transcribe_http_errors_total",
			Help: "Total number of HTTP error responses",
		}, []string{"method", "path", "status"}),
	}
}

// RecordUpload records an accepted upload
func (m *Metrics) RecordUpload(sizeBytes int) {
	m.UploadsReceived.Inc()
	m.UploadSize.Observe(float64(sizeBytes))
}

// RecordUploadRejected increments the rejected uploads counter
func (m *Metrics) RecordUploadRejected() {
	m.UploadsRejected.Inc()
}

// RecordConversion records a conversion attempt and its outcome
func (m *Metrics) RecordConversion(durationSeconds, audioSeconds float64, fallback bool) {
	m.ConversionsTotal.Inc()
	m.ConversionDuration.Observe(durationSeconds)
	m.AudioDurationSeconds.Observe(audioSeconds)
	if fallback {
		m.ConversionFallbacks.Inc()
	}
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordChunk records a processed audio chunk
func (m *Metrics) RecordChunk(failed bool) {
	m.ChunksProcessed.Inc()
	if failed {
		m.ChunksFailed.Inc()
	}
}

// RecordJobCreated records a new job
func (m *Metrics) RecordJobCreated() {
	m.JobsCreated.Inc()
	m.ActiveJobs.Inc()
}

// RecordJobFinished records a job reaching a terminal state
func (m *Metrics) RecordJobFinished(failed bool) {
	m.ActiveJobs.Dec()
	if failed {
		m.JobsFailed.Inc()
	} else {
		m.JobsCompleted.Inc()
	}
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
