package tui

import (
	"context"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/livevoice/session"
	"github.com/AltairaLabs/livevoice/transcript"
)

type stubController struct {
	mu     sync.Mutex
	snap   session.Snapshot
	starts int
	stops  int
}

func (c *stubController) Start(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts++
	c.snap.State = session.Connecting
	return nil
}

func (c *stubController) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stops++
	c.snap.State = session.Closed
}

func (c *stubController) Snapshot() session.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap
}

func (c *stubController) Subscribe() (<-chan session.Snapshot, func()) {
	return make(chan session.Snapshot), func() {}
}

func newTestModel(ctrl *stubController) *Model {
	return NewModel(context.Background(), ctrl, make(chan session.Snapshot), Info{Model: "m", Voice: "Puck"})
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestModel_StartStopKeys(t *testing.T) {
	ctrl := &stubController{snap: session.Snapshot{State: session.Idle, Status: session.StatusReady}}
	m := newTestModel(ctrl)

	_, cmd := m.Update(key("s"))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, startedMsg{}, msg)
	assert.Equal(t, 1, ctrl.starts)

	// Ignored while the previous command is in flight.
	_, cmd = m.Update(key("s"))
	assert.Nil(t, cmd)

	m.Update(msg)
	m.Update(snapshotMsg(session.Snapshot{State: session.Active, Status: session.StatusListening}))

	_, cmd = m.Update(key("s"))
	require.NotNil(t, cmd)
	assert.Equal(t, stoppedMsg{}, cmd())
	assert.Equal(t, 1, ctrl.stops)
}

func TestModel_QuitStopsSession(t *testing.T) {
	ctrl := &stubController{}
	m := newTestModel(ctrl)

	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	msg := cmd()
	assert.Equal(t, 1, ctrl.stops)

	_, cmd = m.Update(msg)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
	assert.Contains(t, m.View(), "Stopping")
}

func TestModel_ViewShowsTranscript(t *testing.T) {
	ctrl := &stubController{}
	m := newTestModel(ctrl)
	m.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
	m.Update(snapshotMsg(session.Snapshot{
		ID:      "0123456789abcdef",
		Backend: "websocket",
		State:   session.Active,
		Status:  session.StatusListening,
		Interim: "what time",
		History: []transcript.Turn{{User: "How are you", Model: "I'm well"}},
	}))

	view := m.View()
	assert.Contains(t, view, session.StatusListening)
	assert.Contains(t, view, "How are you")
	assert.Contains(t, view, "I'm well")
	assert.Contains(t, view, "what time")
	assert.Contains(t, view, "session 01234567")
	assert.Contains(t, view, "s stop")
}

func TestModel_EmptyTranscriptHint(t *testing.T) {
	m := newTestModel(&stubController{})
	assert.Contains(t, m.View(), "Press s")
	assert.Contains(t, m.View(), "s start")
}

func TestModel_TickRefreshesLevel(t *testing.T) {
	ctrl := &stubController{snap: session.Snapshot{Level: 0.1}}
	m := newTestModel(ctrl)
	_, cmd := m.Update(tickMsg{})
	assert.NotNil(t, cmd)
	assert.InDelta(t, 0.1, m.snap.Level, 1e-9)
}

func TestMeter(t *testing.T) {
	assert.Equal(t, "░░░░", Meter(0, 4))
	assert.Equal(t, "██░░", Meter(0.125, 4))
	assert.Equal(t, "████", Meter(5, 4))
	assert.Equal(t, "░░░░", Meter(-1, 4))
}

func TestWrap(t *testing.T) {
	assert.Equal(t, "one two\nthree", wrap("one two three", 8))
	assert.Equal(t, "a  b", wrap("a  b", 0))
	assert.Equal(t, "a b", wrap("a  b", 10))
}

func TestModel_SpinnerWhileConnecting(t *testing.T) {
	ctrl := &stubController{}
	m := newTestModel(ctrl)
	m.Update(snapshotMsg(session.Snapshot{State: session.Connecting, Status: session.StatusConnecting}))
	assert.Contains(t, m.View(), m.spinner.View())

	_, cmd := m.Update(m.spinner.Tick())
	assert.NotNil(t, cmd)
}
