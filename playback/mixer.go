package playback

import (
	"sync"
	"time"

	"github.com/AltairaLabs/livevoice/audio"
)

// Mixer is an in-process Output. It keeps a sample-accurate mono timeline
// whose clock advances only as frames are rendered, and sums every voice
// overlapping the rendered window. A device callback pulls audio with
// Render; with no device attached the clock stands still.
type Mixer struct {
	mu         sync.Mutex
	sampleRate int
	frame      int64
	voices     map[uint64]*mixVoice
	nextID     uint64
	closed     bool
}

type mixVoice struct {
	m       *Mixer
	id      uint64
	start   int64
	data    []float32
	onEnded func()
}

func (v *mixVoice) end() int64 {
	return v.start + int64(len(v.data))
}

// Stop removes the voice from the mixer.
func (v *mixVoice) Stop() {
	v.m.mu.Lock()
	delete(v.m.voices, v.id)
	v.m.mu.Unlock()
}

type stoppedVoice struct{}

func (stoppedVoice) Stop() {}

// NewMixer creates a mixer running at sampleRate.
func NewMixer(sampleRate int) *Mixer {
	return &Mixer{
		sampleRate: sampleRate,
		voices:     make(map[uint64]*mixVoice),
	}
}

// SampleRate returns the mixer's output rate.
func (m *Mixer) SampleRate() int {
	return m.sampleRate
}

// Now returns the duration of audio rendered so far.
func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return audio.FramesToDuration(int(m.frame), m.sampleRate)
}

// Play schedules buf at the given position. Multi-channel buffers are mixed
// down to mono. A position already behind the clock starts at the current
// frame, so no samples are lost.
func (m *Mixer) Play(buf *audio.Buffer, at time.Duration, onEnded func()) Voice {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return stoppedVoice{}
	}

	m.nextID++
	v := &mixVoice{
		m:       m,
		id:      m.nextID,
		start:   max(m.durationToFrame(at), m.frame),
		data:    mixdown(buf),
		onEnded: onEnded,
	}
	m.voices[v.id] = v
	return v
}

// Render fills dst with the next len(dst) frames of the timeline and
// advances the clock. Completion callbacks run after the mixer lock is
// released.
func (m *Mixer) Render(dst []float32) {
	for i := range dst {
		dst[i] = 0
	}

	m.mu.Lock()
	from := m.frame
	to := from + int64(len(dst))
	var ended []func()
	for id, v := range m.voices {
		lo, hi := max(v.start, from), min(v.end(), to)
		for f := lo; f < hi; f++ {
			dst[f-from] += v.data[f-v.start]
		}
		if v.end() <= to {
			delete(m.voices, id)
			if v.onEnded != nil {
				ended = append(ended, v.onEnded)
			}
		}
	}
	m.frame = to
	m.mu.Unlock()

	for i := range dst {
		if dst[i] > 1 {
			dst[i] = 1
		} else if dst[i] < -1 {
			dst[i] = -1
		}
	}
	for _, fn := range ended {
		fn()
	}
}

// Active returns the number of voices still scheduled or sounding.
func (m *Mixer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.voices)
}

// Close drops every voice. Later Play calls return an already-stopped voice.
func (m *Mixer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	clear(m.voices)
	return nil
}

// durationToFrame rounds to the nearest frame so durations produced by
// audio.FramesToDuration map back to the frame they came from.
func (m *Mixer) durationToFrame(d time.Duration) int64 {
	rate := int64(m.sampleRate)
	half := int64(time.Second) / 2
	return (int64(d)*rate + half) / int64(time.Second)
}

func mixdown(buf *audio.Buffer) []float32 {
	switch buf.Channels() {
	case 0:
		return nil
	case 1:
		return buf.Data[0]
	}
	out := make([]float32, buf.Frames())
	scale := 1 / float32(buf.Channels())
	for _, ch := range buf.Data {
		for i, s := range ch {
			out[i] += s * scale
		}
	}
	return out
}
