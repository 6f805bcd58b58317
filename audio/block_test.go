package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormat_MIMEType(t *testing.T) {
	assert.Equal(t, "audio/pcm;rate=16000", CaptureFormat.MIMEType())
	assert.Equal(t, "audio/pcm;rate=24000", PlaybackFormat.MIMEType())
}

func TestFormat_BytesForDuration(t *testing.T) {
	assert.Equal(t, 3200, CaptureFormat.BytesForDuration(100*time.Millisecond))
	assert.Equal(t, 4800, PlaybackFormat.BytesForDuration(100*time.Millisecond))
	assert.Equal(t, 100*time.Millisecond, CaptureFormat.Duration(3200))
}

func TestBlock_Immutable(t *testing.T) {
	src := []byte{1, 2, 3, 4}
	b := NewBlock(7, CaptureFormat, src)

	src[0] = 99
	assert.Equal(t, byte(1), b.Bytes()[0], "block must not alias its input")

	out := b.Bytes()
	out[1] = 99
	assert.Equal(t, byte(2), b.Bytes()[1], "block must not alias its output")

	assert.Equal(t, uint64(7), b.Seq())
	assert.Equal(t, 4, b.Len())
	assert.Equal(t, 2, b.Samples())
	assert.Equal(t, EncodeBytes([]byte{1, 2, 3, 4}), b.Encoded())
}

func TestBlock_Duration(t *testing.T) {
	b := NewBlock(1, CaptureFormat, make([]byte, BlockSize*BytesPerSample))
	assert.Equal(t, 256*time.Millisecond, b.Duration())
}
