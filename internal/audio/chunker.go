package audio

import (
	"fmt"
	"time"
)

// SplitClip slices a clip into fixed-length windows of chunkDuration. The
// final window carries the remainder, so the chunk durations always sum to
// the original duration. Windows are returned in stream order.
func SplitClip(clip *Clip, chunkDuration time.Duration) ([]*Clip, error) {
	if clip == nil {
		return nil, fmt.Errorf("cannot split nil clip")
	}

	if chunkDuration <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %s", chunkDuration)
	}

	frames := clip.Frames()
	framesPerChunk := int(chunkDuration.Seconds() * float64(clip.SampleRate))
	if framesPerChunk < 1 {
		return nil, fmt.Errorf("chunk duration %s is shorter than one frame at %d Hz", chunkDuration, clip.SampleRate)
	}

	if framesPerChunk >= frames {
		return []*Clip{clip}, nil
	}

	numChunks := (frames + framesPerChunk - 1) / framesPerChunk
	chunks := make([]*Clip, 0, numChunks)

	for start := 0; start < frames; start += framesPerChunk {
		end := start + framesPerChunk
		if end > frames {
			end = frames
		}

		chunk, err := clip.Slice(start, end)
		if err != nil {
			return nil, fmt.Errorf("failed to slice chunk at frame %d: %w", start, err)
		}

		chunks = append(chunks, chunk)
	}

	return chunks, nil
}

// SplitWAV decodes WAV data, slices it into fixed windows, and re-encodes
// each window as a standalone WAV file suitable for an individual
// transcription request.
func SplitWAV(data []byte, chunkDuration time.Duration) ([][]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("audio data is empty")
	}

	clip, err := DecodeWAV(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV for chunking: %w", err)
	}

	chunks, err := SplitClip(clip, chunkDuration)
	if err != nil {
		return nil, err
	}

	encoded := make([][]byte, 0, len(chunks))
	for i, chunk := range chunks {
		wav, err := EncodeClip(chunk)
		if err != nil {
			return nil, fmt.Errorf("failed to encode chunk %d: %w", i, err)
		}
		encoded = append(encoded, wav)
	}

	return encoded, nil
}
