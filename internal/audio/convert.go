package audio

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// ConvertOptions controls the high-quality conversion bundle. Every step is
// independently toggleable; HighQuality gates the whole bundle the same way
// the upload form does.
type ConvertOptions struct {
	HighQuality      bool        `json:"high_quality"`
	TargetSampleRate int         `json:"target_sample_rate"`
	Normalize        bool        `json:"normalize"`
	TrimSilence      bool        `json:"trim_silence"`
	NoiseReduce      bool        `json:"noise_reduce"`
	GainDB           float64     `json:"gain_db"`
	Trim             TrimOptions `json:"-"`
}

// DefaultConvertOptions returns the conversion defaults: 16 kHz mono
// 16-bit PCM with normalization and silence trimming enabled.
func DefaultConvertOptions() ConvertOptions {
	return ConvertOptions{
		HighQuality:      true,
		TargetSampleRate: 16000,
		Normalize:        true,
		TrimSilence:      true,
		Trim:             DefaultTrimOptions(),
	}
}

// ConvertInfo describes what conversion actually did to the input.
type ConvertInfo struct {
	OriginalSize     int           `json:"original_size_bytes"`
	ConvertedSize    int           `json:"converted_size_bytes"`
	OriginalRate     int           `json:"original_sample_rate,omitempty"`
	OriginalChannels int           `json:"original_channels,omitempty"`
	SampleRate       int           `json:"sample_rate,omitempty"`
	Channels         int           `json:"channels,omitempty"`
	Duration         time.Duration `json:"-"`
	DurationSeconds  float64       `json:"duration_seconds"`
	TrimmedSilence   time.Duration `json:"-"`
	StepsApplied     []string      `json:"steps_applied"`
	Fallback         bool          `json:"fallback"`
	FallbackReason   string        `json:"fallback_reason,omitempty"`
}

// Decoder converts non-WAV container formats (mp3, m4a, ogg, flac) to WAV
// bytes. The media package provides an ffmpeg-backed implementation.
type Decoder interface {
	DecodeToWAV(ctx context.Context, data []byte, formatHint string) ([]byte, error)
}

// Converter applies the conversion pipeline to uploaded audio. Any failure
// falls back to the unmodified input: a transcription attempt with the
// original bytes beats no attempt at all.
type Converter struct {
	logger  *slog.Logger
	decoder Decoder
}

// NewConverter creates a converter. decoder may be nil, in which case only
// WAV input can be processed and everything else passes through unchanged.
func NewConverter(logger *slog.Logger, decoder Decoder) *Converter {
	return &Converter{
		logger:  logger,
		decoder: decoder,
	}
}

// Convert decodes the input, applies the enabled processing steps, and
// re-encodes to 16-bit PCM WAV. On decode failure the original bytes are
// returned together with an info block marking the fallback.
func (c *Converter) Convert(ctx context.Context, data []byte, formatHint string, opts ConvertOptions) ([]byte, *ConvertInfo, error) {
	if len(data) == 0 {
		return nil, nil, fmt.Errorf("audio data is empty")
	}

	info := &ConvertInfo{
		OriginalSize: len(data),
		StepsApplied: make([]string, 0, 6),
	}

	clip, err := c.decode(ctx, data, formatHint)
	if err != nil {
		c.logger.Warn("Audio decode failed, using original bytes",
			slog.String("format_hint", formatHint),
			slog.String("error", err.Error()),
		)
		info.ConvertedSize = len(data)
		info.Fallback = true
		info.FallbackReason = err.Error()
		return data, info, nil
	}

	info.OriginalRate = clip.SampleRate
	info.OriginalChannels = clip.Channels

	originalDuration := clip.Duration()
	clip = c.applyPipeline(clip, opts, info)
	info.TrimmedSilence = originalDuration - clip.Duration()

	encoded, err := EncodeClip(clip)
	if err != nil {
		c.logger.Warn("WAV encode failed, using original bytes",
			slog.String("error", err.Error()),
		)
		info.ConvertedSize = len(data)
		info.Fallback = true
		info.FallbackReason = err.Error()
		return data, info, nil
	}

	info.ConvertedSize = len(encoded)
	info.SampleRate = clip.SampleRate
	info.Channels = clip.Channels
	info.Duration = clip.Duration()
	info.DurationSeconds = clip.Duration().Seconds()

	c.logger.Debug("Audio conversion complete",
		slog.Int("original_bytes", info.OriginalSize),
		slog.Int("converted_bytes", info.ConvertedSize),
		slog.Int("sample_rate", info.SampleRate),
		slog.Int("channels", info.Channels),
		slog.Any("steps", info.StepsApplied),
	)

	return encoded, info, nil
}

// decode turns input bytes into a clip, going through the external decoder
// for anything that is not already WAV.
func (c *Converter) decode(ctx context.Context, data []byte, formatHint string) (*Clip, error) {
	if IsWAV(data) {
		return DecodeWAV(data)
	}

	if c.decoder == nil {
		return nil, fmt.Errorf("input is not WAV and no decoder is available")
	}

	wavData, err := c.decoder.DecodeToWAV(ctx, data, formatHint)
	if err != nil {
		return nil, fmt.Errorf("external decode failed: %w", err)
	}

	return DecodeWAV(wavData)
}

// applyPipeline runs the enabled steps in order. A failed step logs a
// warning and the pipeline continues with the pre-step clip.
func (c *Converter) applyPipeline(clip *Clip, opts ConvertOptions, info *ConvertInfo) *Clip {
	if opts.GainDB != 0 {
		clip = c.step(clip, info, "gain", func(in *Clip) (*Clip, error) {
			return Gain(in, opts.GainDB)
		})
	}

	if !opts.HighQuality {
		return clip
	}

	if clip.Channels > 1 {
		clip = c.step(clip, info, "downmix_mono", DownmixMono)
	}

	if opts.TargetSampleRate > 0 && clip.SampleRate != opts.TargetSampleRate {
		clip = c.step(clip, info, "resample", func(in *Clip) (*Clip, error) {
			return Resample(in, opts.TargetSampleRate)
		})
	}

	if opts.Normalize {
		clip = c.step(clip, info, "normalize", Normalize)
	}

	if opts.NoiseReduce {
		clip = c.step(clip, info, "high_pass_filter", func(in *Clip) (*Clip, error) {
			return HighPassFilter(in, 80)
		})
	}

	if opts.TrimSilence {
		trim := opts.Trim
		if trim.ThresholdDB == 0 && trim.MinSilence == 0 {
			trim = DefaultTrimOptions()
		}
		clip = c.step(clip, info, "trim_silence", func(in *Clip) (*Clip, error) {
			return TrimSilence(in, trim)
		})
	}

	return clip
}

func (c *Converter) step(clip *Clip, info *ConvertInfo, name string, fn func(*Clip) (*Clip, error)) *Clip {
	out, err := fn(clip)
	if err != nil {
		c.logger.Warn("Audio processing step failed, skipping",
			slog.String("step", name),
			slog.String("error", err.Error()),
		)
		return clip
	}

	if out != clip {
		info.StepsApplied = append(info.StepsApplied, name)
	}

	return out
}
