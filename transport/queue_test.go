package transport

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/livevoice/audio"
)

type recorder struct {
	mu   sync.Mutex
	seqs []uint64
	err  error
}

func (r *recorder) write(b audio.Block) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.seqs = append(r.seqs, b.Seq())
	return nil
}

func block(seq uint64) audio.Block {
	return audio.NewBlock(seq, audio.CaptureFormat, []byte{0, 0})
}

func TestSendQueue_FlushesInOrderOnOpen(t *testing.T) {
	r := &recorder{}
	q := NewSendQueue(8, r.write)

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, q.Push(block(i)))
	}
	assert.Equal(t, 3, q.Len())
	assert.Empty(t, r.seqs, "nothing written before open")

	require.NoError(t, q.Open())
	require.NoError(t, q.Push(block(4)))

	assert.Equal(t, []uint64{1, 2, 3, 4}, r.seqs)
	assert.Equal(t, 0, q.Len())
}

func TestSendQueue_Full(t *testing.T) {
	q := NewSendQueue(2, (&recorder{}).write)
	require.NoError(t, q.Push(block(1)))
	require.NoError(t, q.Push(block(2)))
	assert.ErrorIs(t, q.Push(block(3)), ErrSendQueueFull)
}

func TestSendQueue_Close(t *testing.T) {
	r := &recorder{}
	q := NewSendQueue(2, r.write)
	require.NoError(t, q.Push(block(1)))

	q.Close()
	assert.ErrorIs(t, q.Push(block(2)), ErrClosed)
	require.NoError(t, q.Open())
	assert.Empty(t, r.seqs, "queued blocks are discarded on close")
}

func TestSendQueue_OpenWriteError(t *testing.T) {
	boom := errors.New("broken pipe")
	r := &recorder{err: boom}
	q := NewSendQueue(2, r.write)
	require.NoError(t, q.Push(block(1)))

	assert.ErrorIs(t, q.Open(), boom)
	assert.ErrorIs(t, q.Push(block(2)), boom)
}

func TestSendQueue_ConcurrentPushDuringOpen(t *testing.T) {
	r := &recorder{}
	q := NewSendQueue(1000, r.write)
	for i := uint64(1); i <= 100; i++ {
		require.NoError(t, q.Push(block(i)))
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.Open()
	}()
	// Later pushes from the single capture goroutine must land after the backlog.
	for i := uint64(101); i <= 200; i++ {
		require.NoError(t, q.Push(block(i)))
	}
	wg.Wait()
	require.NoError(t, q.Open())

	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.seqs, 200)
	for i, s := range r.seqs {
		assert.Equal(t, uint64(i+1), s)
	}
}
