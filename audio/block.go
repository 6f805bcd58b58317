package audio

import (
	"fmt"
	"time"
)

// Session audio formats.
const (
	// CaptureSampleRate is the rate microphone audio is captured and sent at.
	CaptureSampleRate = 16000
	// PlaybackSampleRate is the rate model audio arrives and is played at.
	PlaybackSampleRate = 24000
	// BlockSize is the number of samples in one captured block.
	BlockSize = 4096
)

// Format describes a mono or interleaved PCM16 stream.
type Format struct {
	SampleRate int
	Channels   int
}

// CaptureFormat is the microphone format: 16 kHz mono.
var CaptureFormat = Format{SampleRate: CaptureSampleRate, Channels: 1}

// PlaybackFormat is the model output format: 24 kHz mono.
var PlaybackFormat = Format{SampleRate: PlaybackSampleRate, Channels: 1}

// MIMEType returns the media type used on the wire, e.g. "audio/pcm;rate=16000".
func (f Format) MIMEType() string {
	return fmt.Sprintf("audio/pcm;rate=%d", f.SampleRate)
}

// BytesForDuration returns the PCM16 byte count covering d, rounded down to
// a whole frame.
func (f Format) BytesForDuration(d time.Duration) int {
	frames := int(int64(d) * int64(f.SampleRate) / int64(time.Second))
	return frames * f.Channels * BytesPerSample
}

// Duration returns the playback length of n PCM16 bytes in this format.
func (f Format) Duration(n int) time.Duration {
	if f.Channels <= 0 {
		return 0
	}
	return FramesToDuration(n/BytesPerSample/f.Channels, f.SampleRate)
}

// Block is one captured chunk of PCM16 audio. Blocks are immutable: the
// accessors hand out copies.
type Block struct {
	seq    uint64
	format Format
	pcm    []byte
}

// NewBlock wraps a copy of pcm as a Block.
func NewBlock(seq uint64, format Format, pcm []byte) Block {
	data := make([]byte, len(pcm))
	copy(data, pcm)
	return Block{seq: seq, format: format, pcm: data}
}

// Seq returns the capture sequence number, starting at 1 for each capture run.
func (b Block) Seq() uint64 {
	return b.seq
}

// Format returns the block's sample format.
func (b Block) Format() Format {
	return b.format
}

// Len returns the encoded size in bytes.
func (b Block) Len() int {
	return len(b.pcm)
}

// Samples returns the number of samples across all channels.
func (b Block) Samples() int {
	return len(b.pcm) / BytesPerSample
}

// Bytes returns a copy of the little-endian PCM16 encoding.
func (b Block) Bytes() []byte {
	out := make([]byte, len(b.pcm))
	copy(out, b.pcm)
	return out
}

// Encoded returns the block as base64 text for JSON transport.
func (b Block) Encoded() string {
	return EncodeBytes(b.pcm)
}

// Duration returns the playback length of the block.
func (b Block) Duration() time.Duration {
	return b.format.Duration(len(b.pcm))
}
