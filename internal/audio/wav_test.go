package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
)

// makeSine generates an interleaved sine wave test signal.
func makeSine(sampleRate, channels int, seconds, frequency, amplitude float64) []int16 {
	frames := int(float64(sampleRate) * seconds)
	samples := make([]int16, frames*channels)

	for i := 0; i < frames; i++ {
		t := float64(i) / float64(sampleRate)
		v := int16(amplitude * math.Sin(2*math.Pi*frequency*t))
		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = v
		}
	}

	return samples
}

func TestEncodeWAV(t *testing.T) {
	sampleRate := 16000
	samples := makeSine(sampleRate, 1, 0.1, 440, 16383)

	wavData, err := EncodeWAV(samples, sampleRate, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	expectedSize := 44 + len(samples)*2
	if len(wavData) != expectedSize {
		t.Errorf("Expected WAV size %d, got %d", expectedSize, len(wavData))
	}

	if err := ValidateWAV(wavData); err != nil {
		t.Errorf("Generated WAV is invalid: %v", err)
	}

	info, err := GetWAVInfo(wavData)
	if err != nil {
		t.Fatalf("Failed to get WAV info: %v", err)
	}

	if info.SampleRate != uint32(sampleRate) {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, info.SampleRate)
	}

	if info.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", info.Channels)
	}

	if info.BitsPerSample != 16 {
		t.Errorf("Expected 16 bits per sample, got %d", info.BitsPerSample)
	}
}

func TestEncodeWAVEmptySamples(t *testing.T) {
	if _, err := EncodeWAV(nil, 16000, 1); err == nil {
		t.Error("Expected error for empty samples")
	}
}

func TestEncodeWAVInvalidSampleRate(t *testing.T) {
	if _, err := EncodeWAV([]int16{1, 2, 3}, 0, 1); err == nil {
		t.Error("Expected error for zero sample rate")
	}
}

func TestDecodeWAVRoundTrip(t *testing.T) {
	sampleRate := 8000
	samples := makeSine(sampleRate, 1, 0.2, 440, 10000)

	wavData, err := EncodeWAV(samples, sampleRate, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	clip, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if clip.SampleRate != sampleRate {
		t.Errorf("Expected sample rate %d, got %d", sampleRate, clip.SampleRate)
	}

	if clip.Channels != 1 {
		t.Errorf("Expected 1 channel, got %d", clip.Channels)
	}

	if len(clip.Samples) != len(samples) {
		t.Fatalf("Expected %d samples, got %d", len(samples), len(clip.Samples))
	}

	for i := range samples {
		if clip.Samples[i] != samples[i] {
			t.Fatalf("Sample %d mismatch: expected %d, got %d", i, samples[i], clip.Samples[i])
		}
	}
}

func TestDecodeWAVStereo(t *testing.T) {
	sampleRate := 44100
	samples := makeSine(sampleRate, 2, 0.1, 440, 12000)

	wavData, err := EncodeWAV(samples, sampleRate, 2)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	clip, err := DecodeWAV(wavData)
	if err != nil {
		t.Fatalf("DecodeWAV failed: %v", err)
	}

	if clip.Channels != 2 {
		t.Errorf("Expected 2 channels, got %d", clip.Channels)
	}

	if clip.Frames() != len(samples)/2 {
		t.Errorf("Expected %d frames, got %d", len(samples)/2, clip.Frames())
	}
}

func TestDecodeWAVExtraChunks(t *testing.T) {
	// Files exported by DAWs often carry a LIST chunk between fmt and data
	sampleRate := 16000
	samples := makeSine(sampleRate, 1, 0.1, 440, 8000)

	canonical, err := EncodeWAV(samples, sampleRate, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	var buf bytes.Buffer
	buf.Write(canonical[:36]) // RIFF descriptor + fmt chunk

	listBody := []byte("INFOIART\x04\x00\x00\x00test")
	buf.WriteString("LIST")
	binary.Write(&buf, binary.LittleEndian, uint32(len(listBody)))
	buf.Write(listBody)

	buf.Write(canonical[36:]) // data chunk

	// Fix up the RIFF size
	data := buf.Bytes()
	binary.LittleEndian.PutUint32(data[4:8], uint32(len(data)-8))

	clip, err := DecodeWAV(data)
	if err != nil {
		t.Fatalf("DecodeWAV with LIST chunk failed: %v", err)
	}

	if len(clip.Samples) != len(samples) {
		t.Errorf("Expected %d samples, got %d", len(samples), len(clip.Samples))
	}
}

func TestDecodeWAV8Bit(t *testing.T) {
	// Hand-build an 8-bit mono WAV: 4 frames around the unsigned midpoint
	raw := []byte{128, 255, 128, 0}

	var buf bytes.Buffer
	buf.WriteString("RIFF")
	binary.Write(&buf, binary.LittleEndian, uint32(36+len(raw)))
	buf.WriteString("WAVE")
	buf.WriteString("fmt ")
	binary.Write(&buf, binary.LittleEndian, uint32(16))
	binary.Write(&buf, binary.LittleEndian, uint16(1))    // PCM
	binary.Write(&buf, binary.LittleEndian, uint16(1))    // mono
	binary.Write(&buf, binary.LittleEndian, uint32(8000)) // sample rate
	binary.Write(&buf, binary.LittleEndian, uint32(8000)) // byte rate
	binary.Write(&buf, binary.LittleEndian, uint16(1))    // block align
	binary.Write(&buf, binary.LittleEndian, uint16(8))    // bits
	buf.WriteString("data")
	binary.Write(&buf, binary.LittleEndian, uint32(len(raw)))
	buf.Write(raw)

	clip, err := DecodeWAV(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeWAV 8-bit failed: %v", err)
	}

	if clip.Samples[0] != 0 {
		t.Errorf("Expected midpoint sample 0, got %d", clip.Samples[0])
	}

	if clip.Samples[1] <= 0 {
		t.Errorf("Expected positive sample for 255, got %d", clip.Samples[1])
	}

	if clip.Samples[3] >= 0 {
		t.Errorf("Expected negative sample for 0, got %d", clip.Samples[3])
	}
}

func TestDecodeWAVErrors(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"too short", []byte("RIFF")},
		{"bad magic", bytes.Repeat([]byte("x"), 64)},
		{"no data chunk", append([]byte("RIFF\x28\x00\x00\x00WAVEfmt \x10\x00\x00\x00\x01\x00\x01\x00\x40\x1f\x00\x00\x80\x3e\x00\x00\x02\x00\x10\x00"), bytes.Repeat([]byte{0}, 8)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := DecodeWAV(tt.data); err == nil {
				t.Error("Expected decode error")
			}
		})
	}
}

func TestGetWAVDuration(t *testing.T) {
	sampleRate := 16000
	samples := makeSine(sampleRate, 1, 2.0, 440, 8000)

	wavData, err := EncodeWAV(samples, sampleRate, 1)
	if err != nil {
		t.Fatalf("EncodeWAV failed: %v", err)
	}

	duration, err := GetWAVDuration(wavData)
	if err != nil {
		t.Fatalf("GetWAVDuration failed: %v", err)
	}

	if math.Abs(duration-2.0) > 0.001 {
		t.Errorf("Expected duration 2.0s, got %fs", duration)
	}
}

func TestIsWAV(t *testing.T) {
	samples := makeSine(8000, 1, 0.1, 440, 8000)
	wavData, _ := EncodeWAV(samples, 8000, 1)

	if !IsWAV(wavData) {
		t.Error("Expected IsWAV true for encoded WAV")
	}

	if IsWAV([]byte("ID3\x04mp3 data here")) {
		t.Error("Expected IsWAV false for mp3-like data")
	}
}
