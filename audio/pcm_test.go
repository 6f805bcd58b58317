package audio

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMToBuffer_Mono(t *testing.T) {
	pcm := Int16ToPCM([]int16{0, 16384, -32768, 32767})

	buf, err := PCMToBuffer(pcm, PlaybackSampleRate, 1)
	require.NoError(t, err)

	assert.Equal(t, 1, buf.Channels())
	assert.Equal(t, 4, buf.Frames())
	assert.Equal(t, PlaybackSampleRate, buf.SampleRate)
	assert.Equal(t, []float32{0, 0.5, -1, float32(32767) / 32768}, buf.Data[0])
}

func TestPCMToBuffer_Stereo(t *testing.T) {
	// L R L R L (trailing partial frame)
	pcm := Int16ToPCM([]int16{100, -100, 200, -200, 300})

	buf, err := PCMToBuffer(pcm, 48000, 2)
	require.NoError(t, err)

	assert.Equal(t, 2, buf.Channels())
	assert.Equal(t, 2, buf.Frames())
	assert.InDelta(t, 100.0/32768, buf.Data[0][0], 1e-9)
	assert.InDelta(t, 200.0/32768, buf.Data[0][1], 1e-9)
	assert.InDelta(t, -100.0/32768, buf.Data[1][0], 1e-9)
	assert.InDelta(t, -200.0/32768, buf.Data[1][1], 1e-9)
}

func TestPCMToBuffer_OddTrailingByte(t *testing.T) {
	pcm := append(Int16ToPCM([]int16{1000, 2000}), 0x7f)

	buf, err := PCMToBuffer(pcm, CaptureSampleRate, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, buf.Frames())
}

func TestPCMToBuffer_Empty(t *testing.T) {
	buf, err := PCMToBuffer(nil, PlaybackSampleRate, 1)
	require.NoError(t, err)
	assert.Equal(t, 0, buf.Frames())
	assert.Equal(t, time.Duration(0), buf.Duration())
}

func TestPCMToBuffer_InvalidArgs(t *testing.T) {
	_, err := PCMToBuffer([]byte{0, 0}, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidSampleRate)

	_, err = PCMToBuffer([]byte{0, 0}, 16000, 0)
	assert.ErrorIs(t, err, ErrInvalidChannels)
}

func TestFloatToPCM16(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"half", 0.5, 16384},
		{"negative half", -0.5, -16384},
		{"full scale positive clamps", 1.0, 32767},
		{"full scale negative", -1.0, -32768},
		{"over range positive", 2.5, 32767},
		{"over range negative", -7, -32768},
		{"truncates toward zero", 0.00005, 1},
		{"negative truncates toward zero", -0.00005, -1},
		{"nan", float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PCMToInt16(FloatToPCM16([]float32{tt.in}))
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0])
		})
	}
}

func TestFloatToPCM16_LittleEndian(t *testing.T) {
	out := FloatToPCM16([]float32{0.5})
	assert.Equal(t, []byte{0x00, 0x40}, out)
}

func TestRoundTrip_PCMPreservesSamples(t *testing.T) {
	samples := make([]int16, 0, 512)
	for v := -32768; v <= 32767; v += 131 {
		samples = append(samples, int16(v))
	}
	pcm := Int16ToPCM(samples)

	buf, err := PCMToBuffer(pcm, CaptureSampleRate, 1)
	require.NoError(t, err)

	assert.Equal(t, pcm, FloatToPCM16(buf.Data[0]))
}

func TestBuffer_Duration(t *testing.T) {
	pcm := make([]byte, PlaybackSampleRate*BytesPerSample/2)
	buf, err := PCMToBuffer(pcm, PlaybackSampleRate, 1)
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, buf.Duration())
}

func TestRMS(t *testing.T) {
	assert.Equal(t, 0.0, RMS(nil))
	assert.InDelta(t, 0.5, RMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-9)
	assert.InDelta(t, 0.0, RMS(make([]float32, 16)), 1e-9)
}
