package audio

import (
	"fmt"
	"time"
)

// Clip represents decoded PCM-16 audio. Samples are interleaved when the
// clip has more than one channel.
type Clip struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// NewClip creates a clip and validates its basic shape.
func NewClip(samples []int16, sampleRate, channels int) (*Clip, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot create clip from empty samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if channels < 1 {
		return nil, fmt.Errorf("channel count must be at least 1, got %d", channels)
	}

	if len(samples)%channels != 0 {
		return nil, fmt.Errorf("sample count %d is not a multiple of channel count %d", len(samples), channels)
	}

	return &Clip{
		Samples:    samples,
		SampleRate: sampleRate,
		Channels:   channels,
	}, nil
}

// Frames returns the number of sample frames (samples per channel).
func (c *Clip) Frames() int {
	if c.Channels == 0 {
		return 0
	}
	return len(c.Samples) / c.Channels
}

// Duration returns the playback duration of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate == 0 {
		return 0
	}
	return time.Duration(float64(c.Frames()) / float64(c.SampleRate) * float64(time.Second))
}

// Slice returns a new clip covering frames [start, end). The underlying
// sample slice is shared with the original clip.
func (c *Clip) Slice(start, end int) (*Clip, error) {
	if start < 0 || end > c.Frames() || start >= end {
		return nil, fmt.Errorf("invalid frame range [%d, %d) for clip with %d frames", start, end, c.Frames())
	}

	return &Clip{
		Samples:    c.Samples[start*c.Channels : end*c.Channels],
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
	}, nil
}

// Clone returns a deep copy of the clip.
func (c *Clip) Clone() *Clip {
	samples := make([]int16, len(c.Samples))
	copy(samples, c.Samples)

	return &Clip{
		Samples:    samples,
		SampleRate: c.SampleRate,
		Channels:   c.Channels,
	}
}

// Peak returns the maximum absolute sample value in the clip.
func (c *Clip) Peak() int16 {
	var peak int16
	for _, s := range c.Samples {
		if s == -32768 {
			return 32767
		}
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	return peak
}
