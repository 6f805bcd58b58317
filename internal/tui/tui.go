// Package tui is the terminal interface for a live voice session: a status
// line, a microphone meter, the running transcript and start/stop keys.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/AltairaLabs/livevoice/session"
)

// Display constants
const (
	meterWidth     = 24
	meterGain      = 4.0
	minPaneWidth   = 40
	chromeLines    = 7 // banner, info, status, meter, help, borders
	defaultHeight  = 24
	defaultWidth   = 80
	levelRefreshMs = 100
)

// Controller is the part of session.Controller the UI drives.
type Controller interface {
	Start(ctx context.Context) error
	Stop()
	Snapshot() session.Snapshot
	Subscribe() (<-chan session.Snapshot, func())
}

// Info is static header text.
type Info struct {
	Model string
	Voice string
}

type (
	snapshotMsg session.Snapshot
	tickMsg     time.Time
	startedMsg  struct{ err error }
	stoppedMsg  struct{}
)

// Model is the bubbletea model.
type Model struct {
	ctx     context.Context
	ctrl    Controller
	updates <-chan session.Snapshot
	info    Info

	snap     session.Snapshot
	spinner  spinner.Model
	width    int
	height   int
	busy     bool
	quitting bool
	notice   string
}

// NewModel creates a model bound to ctrl. updates is usually obtained from
// ctrl.Subscribe.
func NewModel(ctx context.Context, ctrl Controller, updates <-chan session.Snapshot, info Info) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle
	return &Model{
		ctx:     ctx,
		ctrl:    ctrl,
		updates: updates,
		info:    info,
		snap:    ctrl.Snapshot(),
		spinner: sp,
		width:   defaultWidth,
		height:  defaultHeight,
	}
}

// Run starts the terminal UI and blocks until the user quits or ctx ends.
// A running session is stopped before Run returns.
func Run(ctx context.Context, ctrl Controller, info Info) error {
	updates, unsubscribe := ctrl.Subscribe()
	defer unsubscribe()

	m := NewModel(ctx, ctrl, updates, info)
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	ctrl.Stop()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.waitForSnapshot(), tick(), m.spinner.Tick)
}

func (m *Model) waitForSnapshot() tea.Cmd {
	updates := m.updates
	return func() tea.Msg {
		snap, ok := <-updates
		if !ok {
			return nil
		}
		return snapshotMsg(snap)
	}
}

func tick() tea.Cmd {
	return tea.Tick(levelRefreshMs*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		return m, nil

	case snapshotMsg:
		m.snap = session.Snapshot(msg)
		return m, m.waitForSnapshot()

	case tickMsg:
		// Level changes are not published; poll them.
		m.snap.Level = m.ctrl.Snapshot().Level
		return m, tick()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case startedMsg:
		m.busy = false
		if msg.err != nil {
			m.notice = msg.err.Error()
		}
		return m, nil

	case stoppedMsg:
		m.busy = false
		if m.quitting {
			return m, tea.Quit
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.quitting = true
		m.busy = true
		return m, m.stop()
	case "s", " ":
		if m.busy {
			return m, nil
		}
		m.notice = ""
		m.busy = true
		if m.snap.State.Running() {
			return m, m.stop()
		}
		return m, m.start()
	}
	return m, nil
}

func (m *Model) start() tea.Cmd {
	ctx, ctrl := m.ctx, m.ctrl
	return func() tea.Msg {
		return startedMsg{err: ctrl.Start(ctx)}
	}
}

func (m *Model) stop() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		ctrl.Stop()
		return stoppedMsg{}
	}
}

// View implements tea.Model.
func (m *Model) View() string {
	if m.quitting {
		return "Stopping session…\n"
	}
	width := max(m.width, minPaneWidth)

	header := lipgloss.JoinVertical(lipgloss.Left,
		bannerStyle.Render("livevoice"),
		infoStyle.Render(m.infoLine()),
	)
	status := statusStyle(m.snap.State).Render(m.snap.Status)
	if m.snap.State == session.Connecting {
		status = m.spinner.View() + " " + status
	}
	if m.notice != "" {
		status += "  " + statusStyle(session.Errored).Render(m.notice)
	}

	pane := paneStyle.
		Width(width - 2).
		Height(max(m.height-chromeLines, 3)).
		Render(m.renderTranscript(width-4, max(m.height-chromeLines, 3)))

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		status,
		m.renderMeter(),
		pane,
		helpStyle.Render(m.helpLine()),
	)
}

func (m *Model) infoLine() string {
	parts := []string{}
	if m.snap.Backend != "" {
		parts = append(parts, m.snap.Backend)
	}
	if m.info.Model != "" {
		parts = append(parts, m.info.Model)
	}
	if m.info.Voice != "" {
		parts = append(parts, "voice "+m.info.Voice)
	}
	if m.snap.ID != "" {
		parts = append(parts, "session "+shortID(m.snap.ID))
	}
	return strings.Join(parts, "  •  ")
}

func (m *Model) helpLine() string {
	action := "start"
	if m.snap.State.Running() {
		action = "stop"
	}
	return fmt.Sprintf("s %s  •  q quit", action)
}

func (m *Model) renderMeter() string {
	return "mic " + meterStyle.Render(Meter(m.snap.Level, meterWidth))
}

// renderTranscript shows the most recent lines that fit in height.
func (m *Model) renderTranscript(width, height int) string {
	var lines []string
	for _, turn := range m.snap.History {
		if turn.User != "" {
			lines = append(lines, userStyle.Render("You: ")+wrap(turn.User, width-5))
		}
		if turn.Model != "" {
			lines = append(lines, modelStyle.Render("Gemini: ")+wrap(turn.Model, width-8))
		}
	}
	if m.snap.Interim != "" {
		lines = append(lines, interimStyle.Render("… "+m.snap.Interim))
	}
	if len(lines) == 0 {
		return interimStyle.Render("Press s and start talking.")
	}

	var out []string
	for _, l := range lines {
		out = append(out, strings.Split(l, "\n")...)
	}
	if len(out) > height {
		out = out[len(out)-height:]
	}
	return strings.Join(out, "\n")
}

// Meter renders a level in [0,1] as a bar of width cells. Speech RMS is
// small, so the level is amplified before drawing.
func Meter(level float64, width int) string {
	filled := int(level * meterGain * float64(width))
	filled = min(max(filled, 0), width)
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// wrap breaks s on spaces so no line exceeds width runes.
func wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	words := strings.Fields(s)
	var b strings.Builder
	lineLen := 0
	for _, w := range words {
		n := len([]rune(w))
		if lineLen > 0 && lineLen+1+n > width {
			b.WriteString("\n")
			lineLen = 0
		} else if lineLen > 0 {
			b.WriteString(" ")
			lineLen++
		}
		b.WriteString(w)
		lineLen += n
	}
	return b.String()
}
