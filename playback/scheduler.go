// Package playback schedules decoded model audio onto an output timeline so
// consecutive chunks play back-to-back without gaps, and silences everything
// at once when the model is interrupted.
package playback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/AltairaLabs/livevoice/audio"
)

// ErrClosed is returned by Enqueue after Teardown.
var ErrClosed = errors.New("playback: scheduler closed")

// Voice is a single scheduled buffer on an Output.
type Voice interface {
	// Stop silences the voice immediately. Stopping twice is a no-op.
	Stop()
}

// Output is an audio timeline that can play buffers at absolute positions.
type Output interface {
	// Now returns the current playback position.
	Now() time.Duration
	// Play schedules buf to begin at the given timeline position. onEnded
	// runs once the buffer has played to completion; it does not run for a
	// stopped voice.
	Play(buf *audio.Buffer, at time.Duration, onEnded func()) Voice
	// Close releases the output.
	Close() error
}

// Scheduler places model audio chunks on an Output in arrival order.
//
// The cursor is the timeline position where the next chunk starts. Each
// chunk starts at max(cursor, now) and advances the cursor by its duration,
// so a chunk arriving while earlier audio is still queued lines up exactly
// behind it, and a chunk arriving after an underrun starts immediately.
type Scheduler struct {
	mu         sync.Mutex
	out        Output
	sampleRate int
	channels   int
	cursor     time.Duration
	inflight   map[uint64]Voice
	nextID     uint64
	closed     bool
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithFormat overrides the PCM format of enqueued chunks. The default is
// 24 kHz mono.
func WithFormat(f audio.Format) SchedulerOption {
	return func(s *Scheduler) {
		s.sampleRate = f.SampleRate
		s.channels = f.Channels
	}
}

// NewScheduler creates a scheduler writing to out.
func NewScheduler(out Output, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		out:        out,
		sampleRate: audio.PlaybackSampleRate,
		channels:   1,
		inflight:   make(map[uint64]Voice),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enqueue decodes one PCM16 chunk and schedules it. It returns the timeline
// position the chunk starts at.
func (s *Scheduler) Enqueue(pcm []byte) (time.Duration, error) {
	buf, err := audio.PCMToBuffer(pcm, s.sampleRate, s.channels)
	if err != nil {
		return 0, fmt.Errorf("decode playback chunk: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	start := s.cursor
	if now := s.out.Now(); now > start {
		start = now
	}
	s.cursor = start + buf.Duration()

	if buf.Frames() == 0 {
		return start, nil
	}

	s.nextID++
	id := s.nextID
	s.inflight[id] = s.out.Play(buf, start, func() { s.ended(id) })

	return start, nil
}

func (s *Scheduler) ended(id uint64) {
	s.mu.Lock()
	delete(s.inflight, id)
	s.mu.Unlock()
}

// Interrupt stops every in-flight chunk and rewinds the cursor to zero, so
// the next chunk starts at the output's current time.
func (s *Scheduler) Interrupt() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAllLocked()
	s.cursor = 0
}

// Teardown stops all audio and closes the output. It is safe to call more
// than once.
func (s *Scheduler) Teardown() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.stopAllLocked()
	s.cursor = 0
	return s.out.Close()
}

func (s *Scheduler) stopAllLocked() {
	for id, v := range s.inflight {
		v.Stop()
		delete(s.inflight, id)
	}
}

// Cursor returns the position the next chunk would start at if the output
// clock were behind it.
func (s *Scheduler) Cursor() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursor
}

// InFlight returns the number of scheduled chunks that have not finished.
func (s *Scheduler) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

// Pending returns how much scheduled audio is still ahead of the output
// clock.
func (s *Scheduler) Pending() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now := s.out.Now(); s.cursor > now {
		return s.cursor - now
	}
	return 0
}
