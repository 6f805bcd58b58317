package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/AltairaLabs/livevoice/transcript"
)

// State is the lifecycle phase of a Controller.
type State int

// Lifecycle states.
const (
	Idle State = iota
	Connecting
	Active
	Closing
	Closed
	Errored
)

var stateNames = [...]string{
	Idle:       "idle",
	Connecting: "connecting",
	Active:     "active",
	Closing:    "closing",
	Closed:     "closed",
	Errored:    "errored",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Running reports whether a session run owns the devices in this state.
func (s State) Running() bool {
	return s == Connecting || s == Active || s == Closing
}

// Status lines shown to the user.
const (
	StatusReady       = "Ready."
	StatusRequesting  = "Requesting microphone…"
	StatusConnecting  = "Connecting…"
	StatusListening   = "Listening…"
	StatusEnded       = "Session ended."
	StatusServerClose = "Session closed by server"
)

var (
	// ErrSessionActive is returned by Start while a session is running.
	ErrSessionActive = errors.New("session: a session is already running")
	// ErrConnectTimeout ends a session that did not open in time.
	ErrConnectTimeout = errors.New("session: timed out waiting for the model to accept the session")
)

// PanicError is a recovered panic raised while handling a session event.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("internal error: %v", e.Value)
}

// Snapshot is a point-in-time copy of the observable controller state.
type Snapshot struct {
	ID      string
	Backend string
	State   State
	Status  string
	Interim string
	History []transcript.Turn
	Level   float64
	// Since is when the current state was entered.
	Since time.Time
}
