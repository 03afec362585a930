package job

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State is a job lifecycle phase.
type State string

const (
	StateSubmitted    State = "submitted"
	StateConverting   State = "converting"
	StateTranscribing State = "transcribing"
	StateDone         State = "done"
	StateFailed       State = "failed"
)

// Job represents one upload moving through conversion and transcription.
type Job struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Model     string    `json:"model"`
	State     State     `json:"state"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Chunk progress for chunked transcription
	ChunksTotal int `json:"chunks_total,omitempty"`
	ChunksDone  int `json:"chunks_done,omitempty"`

	Text     string `json:"text,omitempty"`
	Language string `json:"language,omitempty"`
	Error    string `json:"error,omitempty"`

	mu sync.RWMutex
}

// Snapshot returns a copy safe to serialize.
func (j *Job) Snapshot() Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return Job{
		ID:          j.ID,
		Filename:    j.Filename,
		Model:       j.Model,
		State:       j.State,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		ChunksTotal: j.ChunksTotal,
		ChunksDone:  j.ChunksDone,
		Text:        j.Text,
		Language:    j.Language,
		Error:       j.Error,
	}
}

// Manager tracks jobs in memory and expires finished ones after a
// retention window.
type Manager struct {
	jobs      map[string]*Job
	mu        sync.RWMutex
	logger    *slog.Logger
	retention time.Duration

	// Statistics
	totalCreated   uint64
	totalCompleted uint64
	totalFailed    uint64

	// Cleanup management
	ctx     context.Context
	cancel  context.CancelFunc
	cleanup chan struct{}
}

// ManagerStats represents job manager statistics
type ManagerStats struct {
	ActiveJobs     int    `json:"active_jobs"`
	TotalCreated   uint64 `json:"total_created"`
	TotalCompleted uint64 `json:"total_completed"`
	TotalFailed    uint64 `json:"total_failed"`
}

// NewManager creates a job manager and starts its cleanup routine.
func NewManager(logger *slog.Logger, retention time.Duration) *Manager {
	if retention <= 0 {
		retention = 30 * time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		jobs:      make(map[string]*Job),
		logger:    logger,
		retention: retention,
		ctx:       ctx,
		cancel:    cancel,
		cleanup:   make(chan struct{}),
	}

	go m.startCleanupRoutine()

	return m
}

// Create registers a new job and returns it.
func (m *Manager) Create(filename, model string) *Job {
	now := time.Now()

	job := &Job{
		ID:        uuid.New().String(),
		Filename:  filename,
		Model:     model,
		State:     StateSubmitted,
		CreatedAt: now,
		UpdatedAt: now,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.totalCreated++
	m.mu.Unlock()

	m.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("filename", filename),
		slog.String("model", model),
	)

	return job
}

// Get retrieves a job by ID.
func (m *Manager) Get(id string) (*Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	job, exists := m.jobs[id]
	return job, exists
}

// List returns snapshots of all tracked jobs.
func (m *Manager) List() []Job {
	m.mu.RLock()
	defer m.mu.RUnlock()

	jobs := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		jobs = append(jobs, j.Snapshot())
	}
	return jobs
}

// SetState transitions a job to a new lifecycle state.
func (m *Manager) SetState(id string, state State) error {
	job, exists := m.Get(id)
	if !exists {
		return fmt.Errorf("job '%s' not found", id)
	}

	job.mu.Lock()
	job.State = state
	job.UpdatedAt = time.Now()
	job.mu.Unlock()

	m.logger.Debug("Job state changed",
		slog.String("job_id", id),
		slog.String("state", string(state)),
	)

	return nil
}

// SetChunkProgress records chunked transcription progress.
func (m *Manager) SetChunkProgress(id string, done, total int) {
	job, exists := m.Get(id)
	if !exists {
		return
	}

	job.mu.Lock()
	job.ChunksDone = done
	job.ChunksTotal = total
	job.UpdatedAt = time.Now()
	job.mu.Unlock()
}

// Complete marks a job done with its transcription result.
func (m *Manager) Complete(id, text, language string) error {
	job, exists := m.Get(id)
	if !exists {
		return fmt.Errorf("job '%s' not found", id)
	}

	job.mu.Lock()
	job.State = StateDone
	job.Text = text
	job.Language = language
	job.UpdatedAt = time.Now()
	job.mu.Unlock()

	m.mu.Lock()
	m.totalCompleted++
	m.mu.Unlock()

	return nil
}

// Fail marks a job failed with an error message.
func (m *Manager) Fail(id string, jobErr error) error {
	job, exists := m.Get(id)
	if !exists {
		return fmt.Errorf("job '%s' not found", id)
	}

	job.mu.Lock()
	job.State = StateFailed
	job.Error = jobErr.Error()
	job.UpdatedAt = time.Now()
	job.mu.Unlock()

	m.mu.Lock()
	m.totalFailed++
	m.mu.Unlock()

	m.logger.Warn("Job failed",
		slog.String("job_id", id),
		slog.String("error", jobErr.Error()),
	)

	return nil
}

// Remove deletes a job, returning whether it existed.
func (m *Manager) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.jobs[id]; !exists {
		return false
	}

	delete(m.jobs, id)
	return true
}

// GetStats returns current manager statistics.
func (m *Manager) GetStats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return ManagerStats{
		ActiveJobs:     len(m.jobs),
		TotalCreated:   m.totalCreated,
		TotalCompleted: m.totalCompleted,
		TotalFailed:    m.totalFailed,
	}
}

// Stop shuts down the cleanup routine.
func (m *Manager) Stop() {
	m.cancel()
	<-m.cleanup

	m.mu.Lock()
	count := len(m.jobs)
	m.jobs = make(map[string]*Job)
	m.mu.Unlock()

	m.logger.Info("Job manager stopped", slog.Int("dropped_jobs", count))
}

// startCleanupRoutine runs in a separate goroutine to expire finished jobs
func (m *Manager) startCleanupRoutine() {
	defer close(m.cleanup)

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return

		case <-ticker.C:
			m.cleanupExpiredJobs()
		}
	}
}

// cleanupExpiredJobs removes finished jobs past the retention window.
func (m *Manager) cleanupExpiredJobs() {
	now := time.Now()
	var expired []string

	m.mu.RLock()
	for id, j := range m.jobs {
		snap := j.Snapshot()
		if (snap.State == StateDone || snap.State == StateFailed) &&
			now.Sub(snap.UpdatedAt) > m.retention {
			expired = append(expired, id)
		}
	}
	m.mu.RUnlock()

	if len(expired) == 0 {
		return
	}

	m.mu.Lock()
	for _, id := range expired {
		delete(m.jobs, id)
	}
	m.mu.Unlock()

	m.logger.Debug("Expired finished jobs", slog.Int("count", len(expired)))
}
