package job

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(logger, time.Hour)
	t.Cleanup(m.Stop)
	return m
}

func TestCreateAndGet(t *testing.T) {
	m := testManager(t)

	job := m.Create("meeting.wav", "OpenAI Whisper")

	if job.ID == "" {
		t.Fatal("Expected non-empty job ID")
	}

	if job.State != StateSubmitted {
		t.Errorf("Expected submitted state, got %s", job.State)
	}

	got, exists := m.Get(job.ID)
	if !exists {
		t.Fatal("Expected to find created job")
	}

	if got.Filename != "meeting.wav" {
		t.Errorf("Expected filename 'meeting.wav', got %s", got.Filename)
	}
}

func TestGetMissing(t *testing.T) {
	m := testManager(t)

	if _, exists := m.Get("no-such-id"); exists {
		t.Error("Did not expect to find missing job")
	}
}

func TestStateTransitions(t *testing.T) {
	m := testManager(t)
	job := m.Create("a.wav", "OpenAI Whisper")

	for _, state := range []State{StateConverting, StateTranscribing} {
		if err := m.SetState(job.ID, state); err != nil {
			t.Fatalf("SetState(%s) failed: %v", state, err)
		}

		snap := job.Snapshot()
		if snap.State != state {
			t.Errorf("Expected state %s, got %s", state, snap.State)
		}
	}

	if err := m.SetState("missing", StateDone); err == nil {
		t.Error("Expected error for missing job")
	}
}

func TestComplete(t *testing.T) {
	m := testManager(t)
	job := m.Create("a.wav", "OpenAI Whisper")

	if err := m.Complete(job.ID, "hello world", "English"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	snap := job.Snapshot()
	if snap.State != StateDone {
		t.Errorf("Expected done state, got %s", snap.State)
	}
	if snap.Text != "hello world" {
		t.Errorf("Expected text, got %q", snap.Text)
	}
	if snap.Language != "English" {
		t.Errorf("Expected language, got %q", snap.Language)
	}

	stats := m.GetStats()
	if stats.TotalCompleted != 1 {
		t.Errorf("Expected 1 completed, got %d", stats.TotalCompleted)
	}
}

func TestFail(t *testing.T) {
	m := testManager(t)
	job := m.Create("a.wav", "OpenAI Whisper")

	if err := m.Fail(job.ID, errors.New("vendor down")); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	snap := job.Snapshot()
	if snap.State != StateFailed {
		t.Errorf("Expected failed state, got %s", snap.State)
	}
	if snap.Error != "vendor down" {
		t.Errorf("Expected error message, got %q", snap.Error)
	}

	stats := m.GetStats()
	if stats.TotalFailed != 1 {
		t.Errorf("Expected 1 failed, got %d", stats.TotalFailed)
	}
}

func TestChunkProgress(t *testing.T) {
	m := testManager(t)
	job := m.Create("a.wav", "OpenAI Whisper")

	m.SetChunkProgress(job.ID, 2, 5)

	snap := job.Snapshot()
	if snap.ChunksDone != 2 || snap.ChunksTotal != 5 {
		t.Errorf("Expected progress 2/5, got %d/%d", snap.ChunksDone, snap.ChunksTotal)
	}
}

func TestListAndRemove(t *testing.T) {
	m := testManager(t)

	m.Create("a.wav", "OpenAI Whisper")
	job := m.Create("b.wav", "Deepgram Nova-2")

	if got := len(m.List()); got != 2 {
		t.Errorf("Expected 2 jobs, got %d", got)
	}

	if !m.Remove(job.ID) {
		t.Error("Expected removal to succeed")
	}

	if m.Remove(job.ID) {
		t.Error("Expected second removal to fail")
	}

	if got := len(m.List()); got != 1 {
		t.Errorf("Expected 1 job after removal, got %d", got)
	}
}

func TestCleanupExpiredJobs(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := NewManager(logger, time.Millisecond)
	defer m.Stop()

	done := m.Create("done.wav", "OpenAI Whisper")
	active := m.Create("active.wav", "OpenAI Whisper")

	if err := m.Complete(done.ID, "text", ""); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}

	time.Sleep(5 * time.Millisecond)
	m.cleanupExpiredJobs()

	if _, exists := m.Get(done.ID); exists {
		t.Error("Expected finished job to be expired")
	}

	// In-flight jobs survive regardless of age
	if _, exists := m.Get(active.ID); !exists {
		t.Error("Expected active job to survive cleanup")
	}
}
