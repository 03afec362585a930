package audio

import (
	"fmt"
	"math"
	"time"
)

// maxSampleValue is full scale for 16-bit PCM.
const maxSampleValue = 32767.0

// DownmixMono averages all channels into a single mono channel.
// A mono clip is returned unchanged.
func DownmixMono(clip *Clip) (*Clip, error) {
	if clip == nil {
		return nil, fmt.Errorf("cannot downmix nil clip")
	}

	if clip.Channels == 1 {
		return clip, nil
	}

	frames := clip.Frames()
	mono := make([]int16, frames)

	for i := 0; i < frames; i++ {
		var sum int32
		for ch := 0; ch < clip.Channels; ch++ {
			sum += int32(clip.Samples[i*clip.Channels+ch])
		}
		mono[i] = int16(sum / int32(clip.Channels))
	}

	return NewClip(mono, clip.SampleRate, 1)
}

// Resample converts the clip to the target sample rate using linear
// interpolation. Speech models do not need band-limited resampling, and
// the interpolation keeps the pipeline dependency-free.
func Resample(clip *Clip, targetRate int) (*Clip, error) {
	if clip == nil {
		return nil, fmt.Errorf("cannot resample nil clip")
	}

	if targetRate <= 0 {
		return nil, fmt.Errorf("target sample rate must be positive, got %d", targetRate)
	}

	if clip.SampleRate == targetRate {
		return clip, nil
	}

	srcFrames := clip.Frames()
	ratio := float64(clip.SampleRate) / float64(targetRate)
	dstFrames := int(float64(srcFrames) / ratio)
	if dstFrames < 1 {
		dstFrames = 1
	}

	out := make([]int16, dstFrames*clip.Channels)

	for i := 0; i < dstFrames; i++ {
		srcPos := float64(i) * ratio
		idx := int(srcPos)
		frac := srcPos - float64(idx)

		next := idx + 1
		if next >= srcFrames {
			next = srcFrames - 1
		}

		for ch := 0; ch < clip.Channels; ch++ {
			a := float64(clip.Samples[idx*clip.Channels+ch])
			b := float64(clip.Samples[next*clip.Channels+ch])
			out[i*clip.Channels+ch] = int16(a + (b-a)*frac)
		}
	}

	return NewClip(out, targetRate, clip.Channels)
}

// Normalize scales the clip so its peak reaches full scale. A clip that is
// pure silence is returned unchanged.
func Normalize(clip *Clip) (*Clip, error) {
	if clip == nil {
		return nil, fmt.Errorf("cannot normalize nil clip")
	}

	peak := clip.Peak()
	if peak == 0 || peak >= int16(maxSampleValue) {
		return clip, nil
	}

	scale := maxSampleValue / float64(peak)
	out := make([]int16, len(clip.Samples))
	for i, s := range clip.Samples {
		v := float64(s) * scale
		out[i] = clampSample(v)
	}

	return NewClip(out, clip.SampleRate, clip.Channels)
}

// Gain applies a gain adjustment in decibels.
func Gain(clip *Clip, db float64) (*Clip, error) {
	if clip == nil {
		return nil, fmt.Errorf("cannot apply gain to nil clip")
	}

	if db == 0 {
		return clip, nil
	}

	scale := math.Pow(10, db/20)
	out := make([]int16, len(clip.Samples))
	for i, s := range clip.Samples {
		out[i] = clampSample(float64(s) * scale)
	}

	return NewClip(out, clip.SampleRate, clip.Channels)
}

// HighPassFilter attenuates frequencies below the cutoff with a single-pole
// RC filter, applied per channel. Used to strip low-frequency rumble before
// transcription.
func HighPassFilter(clip *Clip, cutoffHz float64) (*Clip, error) {
	if clip == nil {
		return nil, fmt.Errorf("cannot filter nil clip")
	}

	if cutoffHz <= 0 {
		return nil, fmt.Errorf("cutoff frequency must be positive, got %f", cutoffHz)
	}

	rc := 1.0 / (2 * math.Pi * cutoffHz)
	dt := 1.0 / float64(clip.SampleRate)
	alpha := rc / (rc + dt)

	out := make([]int16, len(clip.Samples))
	frames := clip.Frames()

	for ch := 0; ch < clip.Channels; ch++ {
		var prevIn, prevOut float64
		for i := 0; i < frames; i++ {
			idx := i*clip.Channels + ch
			in := float64(clip.Samples[idx])

			var filtered float64
			if i == 0 {
				filtered = in
			} else {
				filtered = alpha * (prevOut + in - prevIn)
			}

			out[idx] = clampSample(filtered)
			prevIn = in
			prevOut = filtered
		}
	}

	return NewClip(out, clip.SampleRate, clip.Channels)
}

// TrimOptions controls leading/trailing silence removal.
type TrimOptions struct {
	ThresholdDB float64       // Level below which audio counts as silence (dBFS, e.g. -40)
	MinSilence  time.Duration // Minimum silence run worth trimming
	Padding     time.Duration // Silence kept around the speech region
}

// DefaultTrimOptions mirrors the conversion defaults: -40 dBFS threshold,
// 300 ms minimum silence, 200 ms padding.
func DefaultTrimOptions() TrimOptions {
	return TrimOptions{
		ThresholdDB: -40,
		MinSilence:  300 * time.Millisecond,
		Padding:     200 * time.Millisecond,
	}
}

// TrimSilence removes leading and trailing silence from the clip. Clips of
// one second or less are returned unchanged, as are clips that are entirely
// silent (trimming everything would produce an empty buffer).
func TrimSilence(clip *Clip, opts TrimOptions) (*Clip, error) {
	if clip == nil {
		return nil, fmt.Errorf("cannot trim nil clip")
	}

	if clip.Duration() <= time.Second {
		return clip, nil
	}

	// Measure RMS level over 10ms windows
	windowFrames := clip.SampleRate / 100
	if windowFrames < 1 {
		windowFrames = 1
	}

	frames := clip.Frames()
	numWindows := (frames + windowFrames - 1) / windowFrames

	firstLoud := -1
	lastLoud := -1

	for w := 0; w < numWindows; w++ {
		start := w * windowFrames
		end := start + windowFrames
		if end > frames {
			end = frames
		}

		if windowLevelDB(clip, start, end) >= opts.ThresholdDB {
			if firstLoud == -1 {
				firstLoud = start
			}
			lastLoud = end
		}
	}

	if firstLoud == -1 {
		// Entirely silent
		return clip, nil
	}

	minSilenceFrames := int(opts.MinSilence.Seconds() * float64(clip.SampleRate))
	paddingFrames := int(opts.Padding.Seconds() * float64(clip.SampleRate))

	// Only trim runs long enough to matter
	if firstLoud < minSilenceFrames && frames-lastLoud < minSilenceFrames {
		return clip, nil
	}

	start := firstLoud - paddingFrames
	if start < 0 || firstLoud < minSilenceFrames {
		start = 0
	}

	end := lastLoud + paddingFrames
	if end > frames || frames-lastLoud < minSilenceFrames {
		end = frames
	}

	if start >= end {
		return clip, nil
	}

	trimmed, err := clip.Slice(start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to trim silence: %w", err)
	}

	return trimmed, nil
}

// windowLevelDB computes the RMS level of frames [start, end) in dBFS.
func windowLevelDB(clip *Clip, start, end int) float64 {
	var sum float64
	count := 0

	for i := start; i < end; i++ {
		for ch := 0; ch < clip.Channels; ch++ {
			v := float64(clip.Samples[i*clip.Channels+ch]) / maxSampleValue
			sum += v * v
			count++
		}
	}

	if count == 0 || sum == 0 {
		return math.Inf(-1)
	}

	rms := math.Sqrt(sum / float64(count))
	return 20 * math.Log10(rms)
}

func clampSample(v float64) int16 {
	if v > maxSampleValue {
		return int16(maxSampleValue)
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
