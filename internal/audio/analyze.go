package audio

import (
	"fmt"
)

// QualityReport summarizes how suitable an uploaded file is for speech
// recognition, with a coarse score and human-readable recommendations
// shown in the UI next to the upload.
type QualityReport struct {
	DurationSeconds float64  `json:"duration_seconds"`
	SampleRate      int      `json:"sample_rate"`
	Channels        int      `json:"channels"`
	BitDepth        int      `json:"bit_depth"`
	FileSizeKB      float64  `json:"file_size_kb"`
	QualityScore    int      `json:"quality_score"`
	OverallQuality  string   `json:"overall_quality"`
	Recommendations []string `json:"recommendations"`
}

// AnalyzeQuality inspects WAV data and scores it for transcription
// suitability. Sample rate, channel layout, bit depth, and duration each
// contribute to the score.
func AnalyzeQuality(data []byte) (*QualityReport, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("audio data is empty")
	}

	info, err := GetWAVInfo(data)
	if err != nil {
		return nil, fmt.Errorf("audio analysis failed: %w", err)
	}

	report := &QualityReport{
		DurationSeconds: info.Duration,
		SampleRate:      int(info.SampleRate),
		Channels:        int(info.Channels),
		BitDepth:        int(info.BitsPerSample),
		FileSizeKB:      float64(len(data)) / 1024,
		Recommendations: make([]string, 0, 4),
	}

	switch {
	case report.SampleRate >= 44100:
		report.QualityScore += 30
		report.add("Excellent sample rate for high-quality transcription")
	case report.SampleRate >= 16000:
		report.QualityScore += 25
		report.add("Good sample rate for speech recognition")
	case report.SampleRate >= 8000:
		report.QualityScore += 15
		report.add("Low sample rate - may affect transcription accuracy")
	default:
		report.QualityScore += 5
		report.add("Very low sample rate - transcription quality may be poor")
	}

	if report.Channels == 1 {
		report.QualityScore += 20
		report.add("Mono audio - optimal for speech recognition")
	} else {
		report.QualityScore += 10
		report.add("Stereo audio - will convert to mono for better ASR")
	}

	if report.BitDepth >= 16 {
		report.QualityScore += 20
		report.add("Good bit depth for clear audio")
	} else {
		report.QualityScore += 10
		report.add("Low bit depth - may introduce artifacts")
	}

	switch {
	case report.DurationSeconds < 1:
		report.QualityScore += 5
		report.add("Very short audio - transcription may be limited")
	case report.DurationSeconds > 300:
		report.QualityScore += 15
		report.add("Long audio - processing may take time")
	default:
		report.QualityScore += 20
		report.add("Good audio duration for transcription")
	}

	switch {
	case report.QualityScore >= 80:
		report.OverallQuality = "excellent"
	case report.QualityScore >= 60:
		report.OverallQuality = "good"
	case report.QualityScore >= 40:
		report.OverallQuality = "fair"
	default:
		report.OverallQuality = "poor"
	}

	return report, nil
}

func (r *QualityReport) add(recommendation string) {
	r.Recommendations = append(r.Recommendations, recommendation)
}
