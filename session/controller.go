// Package session coordinates one live voice conversation: it acquires the
// microphone, opens the model transport, routes inbound events to the
// transcript and the playback scheduler, and tears everything down again.
package session

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/AltairaLabs/livevoice/audio"
	"github.com/AltairaLabs/livevoice/capture"
	"github.com/AltairaLabs/livevoice/logger"
	"github.com/AltairaLabs/livevoice/metrics"
	"github.com/AltairaLabs/livevoice/playback"
	"github.com/AltairaLabs/livevoice/telemetry"
	"github.com/AltairaLabs/livevoice/transcript"
	"github.com/AltairaLabs/livevoice/transport"
)

// eventBuffer bounds inbound events waiting for the loop. A full buffer
// blocks the transport's receive goroutine.
const eventBuffer = 64

// dropLogInterval throttles warnings about audio the transport refused.
const dropLogInterval = 5 * time.Second

// OutputFactory creates the speaker output for one session run.
type OutputFactory func() (playback.Output, error)

// Controller owns at most one running session at a time. All session state
// changes happen on a per-run event loop goroutine; transport and capture
// callbacks only post to it.
type Controller struct {
	transport      transport.Transport
	mic            capture.Microphone
	newOutput      OutputFactory
	sessionCfg     transport.Config
	blockSize      int
	connectTimeout time.Duration
	tracer         trace.Tracer

	agg *transcript.Aggregator

	mu      sync.Mutex
	state   State
	status  string
	since   time.Time
	id      string
	history []transcript.Turn
	run     *run

	subMu sync.Mutex
	subs  map[int]chan Snapshot
	subID int
}

// Option configures a Controller.
type Option func(*Controller)

// WithSessionConfig sets the model, voice and transcription settings.
func WithSessionConfig(cfg transport.Config) Option {
	return func(c *Controller) { c.sessionCfg = cfg }
}

// WithBlockSize sets the capture block size in frames.
func WithBlockSize(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.blockSize = n
		}
	}
}

// WithConnectTimeout ends a session with Errored if it is still
// Connecting after d. Zero disables the timeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Controller) { c.connectTimeout = d }
}

// WithTracer sets the tracer used for session spans.
func WithTracer(t trace.Tracer) Option {
	return func(c *Controller) { c.tracer = t }
}

// New creates an idle controller.
func New(tr transport.Transport, mic capture.Microphone, newOutput OutputFactory, opts ...Option) *Controller {
	c := &Controller{
		transport: tr,
		mic:       mic,
		newOutput: newOutput,
		blockSize: audio.BlockSize,
		agg:       transcript.NewAggregator(),
		state:     Idle,
		status:    StatusReady,
		since:     time.Now(),
		subs:      make(map[int]chan Snapshot),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.sessionCfg = c.sessionCfg.WithDefaults()
	if c.tracer == nil {
		c.tracer = telemetry.Tracer(nil)
	}
	return c
}

// run holds the resources of one Start..teardown cycle.
type run struct {
	id      string
	ctx     context.Context
	cancel  context.CancelFunc
	started time.Time

	events   chan loopEvent
	quit     chan struct{} // closed when teardown begins
	quitOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	pipeline  *capture.Pipeline
	scheduler *playback.Scheduler
	handle    transport.Handle
	span      *telemetry.SessionSpan
	timer     *time.Timer
	dropLog   rate.Sometimes
	counted   bool
	tearing   bool
	finished  bool
}

type loopEvent any

type (
	evOpened        struct{}
	evServer        struct{ ev transport.Event }
	evTransportErr  struct{ err error }
	evClosed        struct{ reason string }
	evCaptureFailed struct{ err error }
)

// post hands ev to the loop unless the run is already tearing down.
func (r *run) post(ev loopEvent) {
	select {
	case r.events <- ev:
	case <-r.quit:
	}
}

func (r *run) closeQuit() {
	r.quitOnce.Do(func() { close(r.quit) })
}

func (r *run) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
}

// Start begins a new session and returns without waiting for it to open.
// Progress is reported through State, Status and Subscribe. Start returns
// ErrSessionActive while a previous session is still running; every other
// failure ends the session and is reported as status.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state.Running() {
		c.mu.Unlock()
		return ErrSessionActive
	}

	id := uuid.NewString()
	runCtx, cancel := context.WithCancel(ctx)
	runCtx = logger.WithSessionID(runCtx, id)
	runCtx = logger.WithBackend(runCtx, c.transport.Name())
	runCtx = logger.WithModel(runCtx, c.sessionCfg.Model)

	r := &run{
		id:      id,
		ctx:     runCtx,
		cancel:  cancel,
		started: time.Now(),
		dropLog: rate.Sometimes{First: 1, Interval: dropLogInterval},
		events:  make(chan loopEvent, eventBuffer),
		quit:    make(chan struct{}),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	c.run = r
	c.id = id
	c.history = nil
	c.agg.Reset()
	c.setStateLocked(Connecting, StatusRequesting)
	c.mu.Unlock()
	c.publish()

	logger.InfoContext(runCtx, "session: starting")
	go c.loop(r)
	return nil
}

// Stop ends the running session and waits until its devices and
// connection are released. It is a no-op when nothing is running.
func (c *Controller) Stop() {
	c.mu.Lock()
	r := c.run
	c.mu.Unlock()
	if r == nil {
		return
	}
	r.requestStop()
	<-r.done
}

func (c *Controller) loop(r *run) {
	defer close(r.done)
	defer func() {
		if p := recover(); p != nil {
			err := &PanicError{Value: p, Stack: debug.Stack()}
			logger.ErrorContext(r.ctx, "session: recovered panic", "panic", p, "stack", string(err.Stack))
			c.teardown(r, Errored, err.Error(), err)
		}
	}()

	if !c.setup(r) {
		return
	}

	var timeout <-chan time.Time
	if r.timer != nil {
		timeout = r.timer.C
	}

	for {
		select {
		case ev := <-r.events:
			if c.dispatch(r, ev) {
				return
			}
		case <-r.stop:
			c.teardown(r, Closed, StatusEnded, nil)
			return
		case <-r.ctx.Done():
			c.teardown(r, Closed, StatusEnded, nil)
			return
		case <-timeout:
			c.teardown(r, Errored, ErrConnectTimeout.Error(), ErrConnectTimeout)
			return
		}
	}
}

// setup acquires the microphone, creates the output and opens the
// transport. It reports false when the run already ended.
func (c *Controller) setup(r *run) bool {
	backend := c.transport.Name()
	pipeline := capture.NewPipeline(c.mic,
		capture.WithBlockSize(c.blockSize),
		capture.WithErrorHandler(func(err error) { r.post(evCaptureFailed{err: err}) }),
	)

	if err := pipeline.Acquire(r.ctx); err != nil {
		var permErr *capture.PermissionError
		if errors.As(err, &permErr) {
			metrics.RecordPermissionDenied(backend)
		}
		logger.WarnContext(r.ctx, "session: microphone not acquired", "error", err)
		c.finish(r, Idle, statusText(err))
		return false
	}

	c.mu.Lock()
	r.pipeline = pipeline
	c.mu.Unlock()
	r.counted = true
	metrics.RecordSessionStart()
	r.span = telemetry.StartSession(r.ctx, c.tracer, r.id, backend, c.sessionCfg.Model)

	if c.stopRequested(r) {
		c.teardown(r, Closed, StatusEnded, nil)
		return false
	}

	out, err := c.newOutput()
	if err != nil {
		err = fmt.Errorf("audio output unavailable: %w", err)
		c.teardown(r, Errored, statusText(err), err)
		return false
	}
	r.scheduler = playback.NewScheduler(out)

	handle, err := c.transport.Open(r.span.Context(), c.sessionCfg, transport.Callbacks{
		OnOpen:  func() { r.post(evOpened{}) },
		OnEvent: func(ev transport.Event) { r.post(evServer{ev: ev}) },
		OnError: func(err error) { r.post(evTransportErr{err: err}) },
		OnClose: func(reason string) { r.post(evClosed{reason: reason}) },
	})
	if err != nil {
		c.teardown(r, Errored, statusText(err), err)
		return false
	}
	r.handle = handle

	if c.connectTimeout > 0 {
		r.timer = time.NewTimer(c.connectTimeout)
	}
	c.setState(r, Connecting, StatusConnecting)
	return true
}

func (c *Controller) stopRequested(r *run) bool {
	select {
	case <-r.stop:
		return true
	case <-r.ctx.Done():
		return true
	default:
		return false
	}
}

// dispatch applies one loop event. It reports true once the run is over.
func (c *Controller) dispatch(r *run, ev loopEvent) bool {
	switch ev := ev.(type) {
	case evOpened:
		c.opened(r)
	case evServer:
		return c.route(r, ev.ev)
	case evTransportErr:
		logger.WarnContext(r.ctx, "session: transport failed", "error", ev.err)
		c.teardown(r, Errored, statusText(ev.err), ev.err)
		return true
	case evClosed:
		status := StatusServerClose
		if ev.reason != "" {
			status += ": " + ev.reason
		}
		c.teardown(r, Closed, status, nil)
		return true
	case evCaptureFailed:
		err := fmt.Errorf("microphone stopped: %w", ev.err)
		c.teardown(r, Errored, statusText(err), err)
		return true
	}
	return false
}

func (c *Controller) opened(r *run) {
	if c.State() != Connecting {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
	}
	metrics.RecordConnected(c.transport.Name(), time.Since(r.started).Seconds())
	r.span.Event("open")

	handle := r.handle
	sink := func(b audio.Block) {
		defer func() {
			if p := recover(); p != nil {
				r.post(evCaptureFailed{err: &PanicError{Value: p, Stack: debug.Stack()}})
			}
		}()
		if err := handle.Send(b); err != nil {
			if !errors.Is(err, transport.ErrClosed) {
				r.dropLog.Do(func() {
					logger.WarnContext(r.ctx, "session: dropping audio blocks", "seq", b.Seq(), "error", err)
				})
			}
			return
		}
		metrics.RecordAudioSent(b.Len())
	}
	if err := r.pipeline.Start(sink); err != nil {
		c.teardown(r, Errored, statusText(err), err)
		return
	}

	c.setState(r, Active, StatusListening)
	logger.InfoContext(r.ctx, "session: listening")
}

// route applies one server event to the transcript or the speaker.
func (c *Controller) route(r *run, ev transport.Event) bool {
	if c.State() != Active {
		return false
	}
	metrics.RecordServerEvent(ev.Kind())

	switch ev := ev.(type) {
	case transport.InputTranscript:
		r.span.TouchTurn()
		c.agg.AppendInput(ev.Text)
		c.publish()
	case transport.OutputTranscript:
		r.span.TouchTurn()
		c.agg.AppendOutput(ev.Text)
	case transport.ModelAudio:
		r.span.TouchTurn()
		if _, err := r.scheduler.Enqueue(ev.Data); err != nil {
			if errors.Is(err, playback.ErrClosed) {
				return false
			}
			c.teardown(r, Errored, statusText(err), err)
			return true
		}
		metrics.RecordAudioReceived(len(ev.Data))
		metrics.SetPlaybackQueued(r.scheduler.Pending().Seconds())
	case transport.TurnComplete:
		// The turn span closes even when no transcript was produced.
		turn, ok := c.agg.FinalizeTurn()
		r.span.EndTurn(len(turn.User), len(turn.Model))
		if ok {
			c.mu.Lock()
			c.history = append(c.history, turn)
			c.mu.Unlock()
			metrics.RecordTurn()
			logger.DebugContext(r.ctx, "session: turn complete",
				"user_chars", len(turn.User), "model_chars", len(turn.Model))
		}
		c.publish()
	case transport.Interrupted:
		r.scheduler.Interrupt()
		metrics.RecordInterruption()
		metrics.SetPlaybackQueued(0)
		r.span.Event("interrupted")
		logger.DebugContext(r.ctx, "session: playback interrupted")
	case transport.DecodeFailure:
		err := fmt.Errorf("bad audio from server: %w", ev.Err)
		c.teardown(r, Errored, statusText(err), err)
		return true
	}
	return false
}

// teardown releases every resource of r, in order: connection, capture,
// output. History is kept.
func (c *Controller) teardown(r *run, final State, status string, cause error) {
	if r.finished {
		return
	}
	if r.tearing {
		// A release step panicked; skip straight to the final state.
		c.finish(r, final, status)
		return
	}
	r.tearing = true
	c.setState(r, Closing, "")
	r.closeQuit()

	if r.timer != nil {
		r.timer.Stop()
	}
	if r.handle != nil {
		_ = r.handle.Close()
	}
	if r.pipeline != nil {
		if err := r.pipeline.Stop(); err != nil {
			logger.DebugContext(r.ctx, "session: capture stop", "error", err)
		}
	}
	if r.scheduler != nil {
		if err := r.scheduler.Teardown(); err != nil {
			logger.DebugContext(r.ctx, "session: output close", "error", err)
		}
	}
	c.agg.Reset()

	r.span.End(cause)
	if r.counted {
		label := metrics.StatusClosed
		if final == Errored {
			label = metrics.StatusErrored
		}
		metrics.RecordSessionEnd(c.transport.Name(), label, time.Since(r.started).Seconds())
	}
	logger.InfoContext(r.ctx, "session: ended", "state", final.String(), "status", status)

	c.finish(r, final, status)
}

// finish moves the controller to its final state for r and detaches r.
func (c *Controller) finish(r *run, final State, status string) {
	r.finished = true
	r.closeQuit()
	r.cancel()

	c.mu.Lock()
	if c.run == r {
		c.run = nil
		c.setStateLocked(final, status)
	}
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) setState(r *run, s State, status string) {
	c.mu.Lock()
	if c.run == r {
		if status == "" {
			status = c.status
		}
		c.setStateLocked(s, status)
	}
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) setStateLocked(s State, status string) {
	if s != c.state {
		c.since = time.Now()
	}
	c.state = s
	c.status = status
}

// statusText renders err as a status line.
func statusText(err error) string {
	if err == nil {
		return ""
	}
	return "Error: " + err.Error()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns the current status line.
func (c *Controller) Status() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// ID returns the identifier of the current or most recent session.
func (c *Controller) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// History returns the completed turns of the current or most recent
// session.
func (c *Controller) History() []transcript.Turn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transcript.Turn(nil), c.history...)
}

// Interim returns the user's in-progress transcript.
func (c *Controller) Interim() string {
	return c.agg.Interim()
}

// Level returns the current microphone RMS level, or zero when idle.
func (c *Controller) Level() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.run == nil || c.run.pipeline == nil {
		return 0
	}
	return c.run.pipeline.Level()
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	snap := Snapshot{
		ID:      c.id,
		Backend: c.transport.Name(),
		State:   c.state,
		Status:  c.status,
		History: append([]transcript.Turn(nil), c.history...),
		Since:   c.since,
	}
	if c.run != nil && c.run.pipeline != nil {
		snap.Level = c.run.pipeline.Level()
	}
	c.mu.Unlock()
	snap.Interim = c.agg.Interim()
	return snap
}

// Subscribe returns a channel that receives a Snapshot after every
// observable change. Slow readers only see the latest snapshot. Call the
// returned function to unsubscribe.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	ch <- c.Snapshot()

	c.subMu.Lock()
	c.subID++
	id := c.subID
	c.subs[id] = ch
	c.subMu.Unlock()

	return ch, func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

func (c *Controller) publish() {
	snap := c.Snapshot()

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
