package audio

import (
	"testing"
	"time"
)

func TestSplitClip(t *testing.T) {
	// 5 seconds split into 2-second windows gives 3 chunks: 2s + 2s + 1s
	clip := mustClip(t, makeSine(16000, 1, 5.0, 440, 8000), 16000, 1)

	chunks, err := SplitClip(clip, 2*time.Second)
	if err != nil {
		t.Fatalf("SplitClip failed: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}

	var total time.Duration
	for _, chunk := range chunks {
		total += chunk.Duration()
	}

	if total != clip.Duration() {
		t.Errorf("Chunk durations sum to %s, expected %s", total, clip.Duration())
	}

	if chunks[0].Duration() != 2*time.Second {
		t.Errorf("Expected first chunk of 2s, got %s", chunks[0].Duration())
	}

	if chunks[2].Duration() != time.Second {
		t.Errorf("Expected final chunk of 1s, got %s", chunks[2].Duration())
	}
}

func TestSplitClipOrder(t *testing.T) {
	// Ramp signal so chunk boundaries are verifiable
	samples := make([]int16, 16000)
	for i := range samples {
		samples[i] = int16(i % 32000)
	}
	clip := mustClip(t, samples, 16000, 1)

	chunks, err := SplitClip(clip, 250*time.Millisecond)
	if err != nil {
		t.Fatalf("SplitClip failed: %v", err)
	}

	if len(chunks) != 4 {
		t.Fatalf("Expected 4 chunks, got %d", len(chunks))
	}

	for i, chunk := range chunks {
		if chunk.Samples[0] != samples[i*4000] {
			t.Errorf("Chunk %d starts with %d, expected %d", i, chunk.Samples[0], samples[i*4000])
		}
	}
}

func TestSplitClipShorterThanChunk(t *testing.T) {
	clip := mustClip(t, makeSine(16000, 1, 1.0, 440, 8000), 16000, 1)

	chunks, err := SplitClip(clip, 5*time.Second)
	if err != nil {
		t.Fatalf("SplitClip failed: %v", err)
	}

	if len(chunks) != 1 {
		t.Fatalf("Expected 1 chunk, got %d", len(chunks))
	}

	if chunks[0] != clip {
		t.Error("Expected single chunk to be the original clip")
	}
}

func TestSplitClipInvalidDuration(t *testing.T) {
	clip := mustClip(t, makeSine(16000, 1, 1.0, 440, 8000), 16000, 1)

	if _, err := SplitClip(clip, 0); err == nil {
		t.Error("Expected error for zero chunk duration")
	}

	if _, err := SplitClip(nil, time.Second); err == nil {
		t.Error("Expected error for nil clip")
	}
}

func TestSplitWAV(t *testing.T) {
	samples := makeSine(16000, 1, 5.0, 440, 8000)
	wavData, err := EncodeWAV(samples, 16000, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	chunks, err := SplitWAV(wavData, 2*time.Second)
	if err != nil {
		t.Fatalf("SplitWAV failed: %v", err)
	}

	if len(chunks) != 3 {
		t.Fatalf("Expected 3 chunks, got %d", len(chunks))
	}

	var total float64
	for i, chunk := range chunks {
		if err := ValidateWAV(chunk); err != nil {
			t.Errorf("Chunk %d is not valid WAV: %v", i, err)
		}

		duration, err := GetWAVDuration(chunk)
		if err != nil {
			t.Fatalf("Failed to get chunk %d duration: %v", i, err)
		}
		total += duration
	}

	if total < 4.999 || total > 5.001 {
		t.Errorf("Chunk durations sum to %fs, expected 5s", total)
	}
}

func TestSplitWAVEmpty(t *testing.T) {
	if _, err := SplitWAV(nil, time.Second); err == nil {
		t.Error("Expected error for empty input")
	}
}
