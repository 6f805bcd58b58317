// Package audio provides the PCM and wire encoding primitives shared by the
// capture, transport and playback sides of a live voice session.
//
// Audio moves through the system in three shapes:
//
//  1. float32 samples in [-1, 1) as produced by the microphone and consumed
//     by the output mixer
//  2. little-endian signed 16-bit PCM bytes, the format exchanged with the
//     remote model
//  3. standard base64 text, the encoding PCM takes inside JSON frames
//
// # Usage Example
//
//	pcm := audio.FloatToPCM16(samples)
//	wire := audio.EncodeBytes(pcm)
//
//	raw, err := audio.DecodeBytes(wire)
//	if err != nil {
//	    var decErr *audio.DecodeError
//	    errors.As(err, &decErr)
//	}
//	buf, err := audio.PCMToBuffer(raw, audio.PlaybackSampleRate, 1)
package audio
