// Package transcript accumulates streamed transcription fragments into
// completed conversation turns.
package transcript

import (
	"strings"
	"sync"
	"time"
)

// Turn is one completed exchange. Either side may be empty, but not both.
type Turn struct {
	User        string
	Model       string
	CompletedAt time.Time
}

// Aggregator collects input (user) and output (model) fragments for the
// open turn. Fragments are concatenated exactly as received; spacing is the
// producer's concern. It is safe for concurrent use.
type Aggregator struct {
	mu      sync.Mutex
	input   strings.Builder
	output  strings.Builder
	interim string
	now     func() time.Time
}

// NewAggregator creates an empty aggregator. The zero value is also ready
// to use.
func NewAggregator() *Aggregator {
	return &Aggregator{now: time.Now}
}

// AppendInput adds a user speech fragment and republishes the interim text.
func (a *Aggregator) AppendInput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.input.WriteString(text)
	a.interim = a.input.String()
}

// AppendOutput adds a model speech fragment. Model text is not surfaced as
// interim; it only becomes visible once the turn is finalized.
func (a *Aggregator) AppendOutput(text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.output.WriteString(text)
}

// Interim returns the running input transcript of the open turn.
func (a *Aggregator) Interim() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.interim
}

// FinalizeTurn closes the open turn. It reports false when nothing was
// accumulated on either side. Accumulators and interim text are cleared in
// every case.
func (a *Aggregator) FinalizeTurn() (Turn, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	in, out := a.input.String(), a.output.String()
	a.resetLocked()

	if in == "" && out == "" {
		return Turn{}, false
	}
	now := time.Now
	if a.now != nil {
		now = a.now
	}
	return Turn{
		User:        strings.TrimSpace(in),
		Model:       strings.TrimSpace(out),
		CompletedAt: now(),
	}, true
}

// Reset discards the open turn.
func (a *Aggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.resetLocked()
}

func (a *Aggregator) resetLocked() {
	a.input.Reset()
	a.output.Reset()
	a.interim = ""
}
