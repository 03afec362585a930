package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// MaxFrames caps how many frames are sampled from one video for
// description. More frames inflate the request payload without adding
// much to what the model sees.
const MaxFrames = 8

// Extractor runs ffmpeg and ffprobe for audio extraction and decoding.
type Extractor struct {
	logger  *slog.Logger
	tempDir string

	ffmpegPath  string
	ffprobePath string
}

// MediaInfo describes a probed media file.
type MediaInfo struct {
	Duration   float64 `json:"duration_seconds"`
	HasAudio   bool    `json:"has_audio"`
	HasVideo   bool    `json:"has_video"`
	Format     string  `json:"format"`
	AudioCodec string  `json:"audio_codec,omitempty"`
	VideoCodec string  `json:"video_codec,omitempty"`
}

// ffprobeOutput mirrors the JSON shape of `ffprobe -print_format json`.
type ffprobeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
	} `json:"streams"`
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
	} `json:"format"`
}

// NewExtractor creates an extractor writing temp files under tempDir.
func NewExtractor(logger *slog.Logger, tempDir string) *Extractor {
	if tempDir == "" {
		tempDir = os.TempDir()
	}

	return &Extractor{
		logger:      logger,
		tempDir:     tempDir,
		ffmpegPath:  "ffmpeg",
		ffprobePath: "ffprobe",
	}
}

// Available reports whether the ffmpeg binary can be executed.
func (e *Extractor) Available() bool {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.ffmpegPath, "-version")
	if err := cmd.Run(); err != nil {
		e.logger.Debug("ffmpeg not available", slog.String("error", err.Error()))
		return false
	}

	return true
}

// Probe inspects a media file with ffprobe.
func (e *Extractor) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, e.ffprobePath,
		"-v", "error",
		"-show_streams",
		"-show_format",
		"-print_format", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w", filepath.Base(path), err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(output, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{Format: probe.Format.FormatName}

	if probe.Format.Duration != "" {
		if d, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}

	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "audio":
			if !info.HasAudio {
				info.HasAudio = true
				info.AudioCodec = stream.CodecName
			}
		case "video":
			if !info.HasVideo {
				info.HasVideo = true
				info.VideoCodec = stream.CodecName
			}
		}
	}

	return info, nil
}

// ExtractAudio pulls the audio track out of a video file as 16 kHz mono
// 16-bit PCM WAV. Returns hasAudio=false without an error when the video
// simply has no audio track. The caller owns the returned file and should
// remove it when done.
func (e *Extractor) ExtractAudio(ctx context.Context, videoPath string) (wavPath string, hasAudio bool, err error) {
	outPath := filepath.Join(e.tempDir, fmt.Sprintf("extracted_%d.wav", time.Now().UnixNano()))

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-y",
		outPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(outPath)

		stderrStr := stderr.String()
		if strings.Contains(stderrStr, "Output file does not contain any stream") ||
			strings.Contains(stderrStr, "does not contain any stream") {
			return "", false, nil
		}

		return "", false, fmt.Errorf("ffmpeg audio extraction failed: %w\nstderr: %s", err, truncate(stderrStr, 512))
	}

	e.logger.Debug("Audio extracted from video",
		slog.String("video", filepath.Base(videoPath)),
		slog.String("output", filepath.Base(outPath)),
	)

	return outPath, true, nil
}

// ExtractAudioBytes writes video bytes to a temp file, extracts the audio
// track, and returns the WAV bytes. Temp files are removed before return.
func (e *Extractor) ExtractAudioBytes(ctx context.Context, videoData []byte, formatHint string) ([]byte, bool, error) {
	if len(videoData) == 0 {
		return nil, false, fmt.Errorf("video data is empty")
	}

	videoPath, err := e.writeTempFile(videoData, formatHint)
	if err != nil {
		return nil, false, err
	}
	defer e.removeTemp(videoPath)

	wavPath, hasAudio, err := e.ExtractAudio(ctx, videoPath)
	if err != nil {
		return nil, false, err
	}

	if !hasAudio {
		return nil, false, nil
	}
	defer e.removeTemp(wavPath)

	wavData, err := os.ReadFile(wavPath)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read extracted audio: %w", err)
	}

	return wavData, true, nil
}

// DecodeToWAV converts compressed audio bytes (mp3, m4a, ogg, flac) to
// 16-bit PCM WAV via ffmpeg. The original sample rate and channel layout
// are preserved; the conversion pipeline handles resampling and downmix.
func (e *Extractor) DecodeToWAV(ctx context.Context, data []byte, formatHint string) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("audio data is empty")
	}

	inPath, err := e.writeTempFile(data, formatHint)
	if err != nil {
		return nil, err
	}
	defer e.removeTemp(inPath)

	outPath := filepath.Join(e.tempDir, fmt.Sprintf("decoded_%d.wav", time.Now().UnixNano()))
	defer e.removeTemp(outPath)

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-i", inPath,
		"-acodec", "pcm_s16le",
		"-y",
		outPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg decode failed: %w\nstderr: %s", err, truncate(stderr.String(), 512))
	}

	wavData, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read decoded audio: %w", err)
	}

	return wavData, nil
}

// ExtractFrames samples up to maxFrames JPEG frames evenly spaced across
// the video. Individual frame failures are skipped; extraction fails only
// when no frame could be read at all.
func (e *Extractor) ExtractFrames(ctx context.Context, videoData []byte, formatHint string, maxFrames int) ([][]byte, error) {
	if len(videoData) == 0 {
		return nil, fmt.Errorf("video data is empty")
	}

	if maxFrames <= 0 || maxFrames > MaxFrames {
		maxFrames = MaxFrames
	}

	videoPath, err := e.writeTempFile(videoData, formatHint)
	if err != nil {
		return nil, err
	}
	defer e.removeTemp(videoPath)

	info, err := e.Probe(ctx, videoPath)
	if err != nil {
		return nil, err
	}

	if !info.HasVideo {
		return nil, fmt.Errorf("file does not contain a video stream")
	}

	duration := info.Duration
	if duration <= 0 {
		duration = 1
	}

	// Sample points sit at the midpoint of each window so the first
	// frame is not always the black leader frame
	step := duration / float64(maxFrames)
	frames := make([][]byte, 0, maxFrames)

	for i := 0; i < maxFrames; i++ {
		timestamp := step * (float64(i) + 0.5)

		frame, err := e.extractFrameAt(ctx, videoPath, timestamp)
		if err != nil {
			e.logger.Debug("Frame extraction failed",
				slog.Float64("timestamp", timestamp),
				slog.String("error", err.Error()),
			)
			continue
		}

		frames = append(frames, frame)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("could not extract any frames from video")
	}

	e.logger.Debug("Frames extracted from video",
		slog.Int("frames", len(frames)),
		slog.Float64("duration_seconds", duration),
	)

	return frames, nil
}

// extractFrameAt grabs a single JPEG frame at the given timestamp.
func (e *Extractor) extractFrameAt(ctx context.Context, videoPath string, timestamp float64) ([]byte, error) {
	outPath := filepath.Join(e.tempDir, fmt.Sprintf("frame_%d.jpg", time.Now().UnixNano()))
	defer e.removeTemp(outPath)

	cmd := exec.CommandContext(ctx, e.ffmpegPath,
		"-ss", strconv.FormatFloat(timestamp, 'f', 3, 64),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		"-y",
		outPath,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg frame extraction failed: %w\nstderr: %s", err, truncate(stderr.String(), 512))
	}

	frame, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read extracted frame: %w", err)
	}

	return frame, nil
}

// writeTempFile persists bytes under the temp dir with the given extension.
func (e *Extractor) writeTempFile(data []byte, formatHint string) (string, error) {
	ext := strings.TrimPrefix(strings.ToLower(formatHint), ".")
	if ext == "" {
		ext = "bin"
	}

	path := filepath.Join(e.tempDir, fmt.Sprintf("upload_%d.%s", time.Now().UnixNano(), ext))
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	return path, nil
}

// removeTemp deletes a temp file, logging rather than failing on error.
func (e *Extractor) removeTemp(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		e.logger.Warn("Failed to remove temp file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
