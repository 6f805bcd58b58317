package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"
)

const (
	// BytesPerSample is the size of one signed 16-bit PCM sample.
	BytesPerSample = 2

	// pcmScale maps int16 samples to and from the float range [-1, 1).
	pcmScale = 32768.0

	maxInt16 = math.MaxInt16
	minInt16 = math.MinInt16
)

var (
	// ErrInvalidSampleRate is returned for a non-positive sample rate.
	ErrInvalidSampleRate = errors.New("invalid sample rate: must be positive")
	// ErrInvalidChannels is returned for a non-positive channel count.
	ErrInvalidChannels = errors.New("invalid channels: must be positive")
)

// Buffer is decoded, de-interleaved audio ready for playback.
type Buffer struct {
	SampleRate int
	// Data holds one slice per channel, all of equal length.
	Data [][]float32
}

// Channels returns the number of channels in the buffer.
func (b *Buffer) Channels() int {
	return len(b.Data)
}

// Frames returns the number of sample frames per channel.
func (b *Buffer) Frames() int {
	if len(b.Data) == 0 {
		return 0
	}
	return len(b.Data[0])
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	return FramesToDuration(b.Frames(), b.SampleRate)
}

// FramesToDuration converts a frame count at sampleRate to a duration.
func FramesToDuration(frames, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(sampleRate))
}

// PCMToBuffer decodes interleaved little-endian int16 PCM into a Buffer,
// normalizing each sample by 1/32768. A trailing partial frame, including a
// dangling odd byte, is dropped.
func PCMToBuffer(pcm []byte, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSampleRate, sampleRate)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChannels, channels)
	}

	frames := len(pcm) / BytesPerSample / channels
	data := make([][]float32, channels)
	for ch := range data {
		data[ch] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for ch := 0; ch < channels; ch++ {
			off := (i*channels + ch) * BytesPerSample
			s := int16(binary.LittleEndian.Uint16(pcm[off:])) //nolint:gosec // PCM16 reinterpretation
			data[ch][i] = float32(s) / pcmScale
		}
	}

	return &Buffer{SampleRate: sampleRate, Data: data}, nil
}

// FloatToPCM16 converts float samples to little-endian int16 PCM. Each
// sample is scaled by 32768, truncated toward zero and clamped to the int16
// range, so 1.0 encodes as 32767 and -1.0 as -32768.
func FloatToPCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(floatToInt16(s))) //nolint:gosec // PCM16 reinterpretation
	}
	return out
}

func floatToInt16(s float32) int16 {
	v := float64(s) * pcmScale
	if math.IsNaN(v) {
		return 0
	}
	switch {
	case v >= maxInt16:
		return maxInt16
	case v <= minInt16:
		return minInt16
	}
	return int16(v)
}

// Int16ToPCM packs int16 samples as little-endian bytes.
func Int16ToPCM(samples []int16) []byte {
	out := make([]byte, len(samples)*BytesPerSample)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s)) //nolint:gosec // PCM16 reinterpretation
	}
	return out
}

// PCMToInt16 unpacks little-endian bytes into int16 samples. An odd
// trailing byte is ignored.
func PCMToInt16(pcm []byte) []int16 {
	out := make([]int16, len(pcm)/BytesPerSample)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(pcm[i*BytesPerSample:])) //nolint:gosec // PCM16 reinterpretation
	}
	return out
}

// RMS returns the root mean square level of float samples.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}
