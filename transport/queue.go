package transport

import (
	"sync"

	"github.com/AltairaLabs/livevoice/audio"
)

// SendQueue holds blocks sent before a session opens and releases them, in
// order, once it does. After Open, Push writes through directly. It is the
// shared pre-open buffering used by every backend.
type SendQueue struct {
	mu      sync.Mutex
	limit   int
	pending []audio.Block
	open    bool
	closed  bool
	write   func(audio.Block) error
}

// NewSendQueue creates a queue holding at most limit blocks before open.
// write delivers a block to the live session.
func NewSendQueue(limit int, write func(audio.Block) error) *SendQueue {
	return &SendQueue{limit: limit, write: write}
}

// Push queues or writes one block.
func (q *SendQueue) Push(b audio.Block) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case q.closed:
		return ErrClosed
	case q.open:
		return q.write(b)
	case len(q.pending) >= q.limit:
		return ErrSendQueueFull
	}
	q.pending = append(q.pending, b)
	return nil
}

// Open flushes queued blocks in order and switches to write-through. The
// lock is held while flushing so a concurrent Push cannot overtake the
// backlog.
func (q *SendQueue) Open() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || q.open {
		return nil
	}
	q.open = true
	pending := q.pending
	q.pending = nil
	for _, b := range pending {
		if err := q.write(b); err != nil {
			return err
		}
	}
	return nil
}

// Close discards queued blocks and rejects further pushes.
func (q *SendQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.pending = nil
}

// Len returns the number of blocks waiting for open.
func (q *SendQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
