package audio

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// WAVHeader represents the canonical 44-byte header of a PCM WAV file
type WAVHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // File size - 8 bytes
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16 for PCM
	AudioFormat   uint16  // 1 for PCM
	NumChannels   uint16  // Number of channels
	SampleRate    uint32  // Sample rate
	ByteRate      uint32  // SampleRate * NumChannels * BitsPerSample / 8
	BlockAlign    uint16  // NumChannels * BitsPerSample / 8
	BitsPerSample uint16  // Bits per sample
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32  // Number of bytes in the data
}

// EncodeWAV encodes interleaved PCM-16 samples into WAV format
func EncodeWAV(samples []int16, sampleRate, channels int) ([]byte, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("cannot encode empty audio samples")
	}

	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", sampleRate)
	}

	if channels < 1 {
		return nil, fmt.Errorf("channel count must be at least 1, got %d", channels)
	}

	numChannels := uint16(channels)
	bitsPerSample := uint16(16)
	dataSize := uint32(len(samples) * 2) // 2 bytes per sample
	fileSize := 36 + dataSize            // Data starts at offset 44

	header := WAVHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     fileSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1, // PCM
		NumChannels:   numChannels,
		SampleRate:    uint32(sampleRate),
		ByteRate:      uint32(sampleRate) * uint32(numChannels) * uint32(bitsPerSample) / 8,
		BlockAlign:    numChannels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	buf := bytes.NewBuffer(make([]byte, 0, 44+len(samples)*2))

	if err := binary.Write(buf, binary.LittleEndian, header); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}

	if err := binary.Write(buf, binary.LittleEndian, samples); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}

	return buf.Bytes(), nil
}

// EncodeClip encodes a clip into WAV format.
func EncodeClip(clip *Clip) ([]byte, error) {
	if clip == nil {
		return nil, fmt.Errorf("cannot encode nil clip")
	}
	return EncodeWAV(clip.Samples, clip.SampleRate, clip.Channels)
}

// wavFormat holds the fields of a parsed "fmt " chunk.
type wavFormat struct {
	audioFormat   uint16
	numChannels   uint16
	sampleRate    uint32
	bitsPerSample uint16
}

// parseWAV walks the RIFF chunk list and returns the parsed "fmt " chunk
// and the raw bytes of the "data" chunk.
func parseWAV(data []byte) (*wavFormat, []byte, error) {
	if len(data) < 44 {
		return nil, nil, fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return nil, nil, fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return nil, nil, fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	var format *wavFormat
	var rawData []byte

	// Walk RIFF chunks starting after the 12-byte RIFF descriptor
	offset := 12
	for offset+8 <= len(data) {
		chunkID := string(data[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8

		if chunkSize < 0 || body > len(data) {
			break
		}

		end := body + chunkSize
		if end > len(data) {
			// Truncated final chunk, take what is there
			end = len(data)
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return nil, nil, fmt.Errorf("invalid WAV file: fmt chunk too short (%d bytes)", chunkSize)
			}
			format = &wavFormat{
				audioFormat:   binary.LittleEndian.Uint16(data[body : body+2]),
				numChannels:   binary.LittleEndian.Uint16(data[body+2 : body+4]),
				sampleRate:    binary.LittleEndian.Uint32(data[body+4 : body+8]),
				bitsPerSample: binary.LittleEndian.Uint16(data[body+14 : body+16]),
			}
		case "data":
			rawData = data[body:end]
		}

		// Chunks are word-aligned
		offset = body + chunkSize
		if chunkSize%2 == 1 {
			offset++
		}
	}

	if format == nil {
		return nil, nil, fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	if rawData == nil {
		return nil, nil, fmt.Errorf("invalid WAV file: missing data chunk")
	}

	// Format 1 is integer PCM, 0xFFFE is WAVE_FORMAT_EXTENSIBLE which
	// wraps PCM for >2 channel files
	if format.audioFormat != 1 && format.audioFormat != 0xFFFE {
		return nil, nil, fmt.Errorf("unsupported audio format: %d (only PCM is supported)", format.audioFormat)
	}

	if format.numChannels < 1 {
		return nil, nil, fmt.Errorf("invalid channel count: %d", format.numChannels)
	}

	if format.sampleRate == 0 {
		return nil, nil, fmt.Errorf("invalid sample rate: 0")
	}

	return format, rawData, nil
}

// DecodeWAV decodes WAV data into a clip. Uploaded files may carry extra
// RIFF chunks (LIST, fact, cue) between "fmt " and "data", so the decoder
// walks the chunk list rather than assuming a fixed 44-byte layout.
// 8, 16, 24, and 32-bit PCM with any channel count are converted to
// interleaved PCM-16.
func DecodeWAV(data []byte) (*Clip, error) {
	format, rawData, err := parseWAV(data)
	if err != nil {
		return nil, err
	}

	samples, err := pcmToInt16(rawData, int(format.bitsPerSample))
	if err != nil {
		return nil, err
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("no audio data found")
	}

	// Drop trailing partial frame if the data chunk was truncated
	channels := int(format.numChannels)
	if rem := len(samples) % channels; rem != 0 {
		samples = samples[:len(samples)-rem]
	}

	return NewClip(samples, int(format.sampleRate), channels)
}

// pcmToInt16 converts raw PCM bytes of the given bit depth to 16-bit samples.
func pcmToInt16(raw []byte, bitsPerSample int) ([]int16, error) {
	switch bitsPerSample {
	case 8:
		// 8-bit WAV is unsigned
		samples := make([]int16, len(raw))
		for i, b := range raw {
			samples[i] = (int16(b) - 128) << 8
		}
		return samples, nil

	case 16:
		samples := make([]int16, len(raw)/2)
		for i := range samples {
			samples[i] = int16(binary.LittleEndian.Uint16(raw[i*2 : i*2+2]))
		}
		return samples, nil

	case 24:
		samples := make([]int16, len(raw)/3)
		for i := range samples {
			v := int32(raw[i*3]) | int32(raw[i*3+1])<<8 | int32(raw[i*3+2])<<16
			if v&0x800000 != 0 {
				v |= ^int32(0xFFFFFF) // Sign extend
			}
			samples[i] = int16(v >> 8)
		}
		return samples, nil

	case 32:
		samples := make([]int16, len(raw)/4)
		for i := range samples {
			v := int32(binary.LittleEndian.Uint32(raw[i*4 : i*4+4]))
			samples[i] = int16(v >> 16)
		}
		return samples, nil

	default:
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 8, 16, 24, 32)", bitsPerSample)
	}
}

// IsWAV reports whether data starts with a RIFF/WAVE signature.
func IsWAV(data []byte) bool {
	return len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

// ValidateWAV validates a WAV file without decoding the audio data
func ValidateWAV(data []byte) error {
	if len(data) < 44 {
		return fmt.Errorf("WAV data too short: need at least 44 bytes, got %d", len(data))
	}

	if string(data[0:4]) != "RIFF" {
		return fmt.Errorf("invalid WAV file: missing RIFF header")
	}

	if string(data[8:12]) != "WAVE" {
		return fmt.Errorf("invalid WAV file: missing WAVE format")
	}

	if string(data[12:16]) != "fmt " {
		return fmt.Errorf("invalid WAV file: missing fmt chunk")
	}

	return nil
}

// WAVInfo describes the format of a WAV file
type WAVInfo struct {
	SampleRate    uint32  `json:"sample_rate"`
	Channels      uint16  `json:"channels"`
	BitsPerSample uint16  `json:"bits_per_sample"`
	Duration      float64 `json:"duration_seconds"`
	DataSize      uint32  `json:"data_size_bytes"`
	NumSamples    uint32  `json:"num_samples"`
}

// GetWAVInfo extracts metadata from a WAV file
func GetWAVInfo(data []byte) (*WAVInfo, error) {
	format, rawData, err := parseWAV(data)
	if err != nil {
		return nil, err
	}

	bytesPerSample := uint32(format.bitsPerSample) / 8
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("unsupported bit depth: %d", format.bitsPerSample)
	}

	numSamples := uint32(len(rawData)) / bytesPerSample
	frames := numSamples / uint32(format.numChannels)

	return &WAVInfo{
		SampleRate:    format.sampleRate,
		Channels:      format.numChannels,
		BitsPerSample: format.bitsPerSample,
		Duration:      float64(frames) / float64(format.sampleRate),
		DataSize:      uint32(len(rawData)),
		NumSamples:    numSamples,
	}, nil
}

// GetWAVDuration calculates the duration of a WAV file in seconds
func GetWAVDuration(data []byte) (float64, error) {
	clip, err := DecodeWAV(data)
	if err != nil {
		return 0, err
	}
	return clip.Duration().Seconds(), nil
}
