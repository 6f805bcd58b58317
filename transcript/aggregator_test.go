package transcript

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregator_FinalizeTurn(t *testing.T) {
	tests := []struct {
		name      string
		inputs    []string
		outputs   []string
		wantOK    bool
		wantUser  string
		wantModel string
	}{
		{
			name:      "both sides",
			inputs:    []string{"Hel", "lo "},
			outputs:   []string{" Hi", " there "},
			wantOK:    true,
			wantUser:  "Hello",
			wantModel: "Hi there",
		},
		{
			name:      "user only",
			inputs:    []string{"just me"},
			wantOK:    true,
			wantUser:  "just me",
			wantModel: "",
		},
		{
			name:      "model only",
			outputs:   []string{"unprompted"},
			wantOK:    true,
			wantUser:  "",
			wantModel: "unprompted",
		},
		{
			name:   "nothing",
			wantOK: false,
		},
		{
			name:      "whitespace only is still a turn",
			inputs:    []string{"  "},
			wantOK:    true,
			wantUser:  "",
			wantModel: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAggregator()
			for _, s := range tt.inputs {
				a.AppendInput(s)
			}
			for _, s := range tt.outputs {
				a.AppendOutput(s)
			}

			turn, ok := a.FinalizeTurn()
			require.Equal(t, tt.wantOK, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.wantUser, turn.User)
			assert.Equal(t, tt.wantModel, turn.Model)
			assert.False(t, turn.CompletedAt.IsZero())
		})
	}
}

func TestAggregator_FinalizeAlwaysResets(t *testing.T) {
	a := NewAggregator()
	a.AppendInput("first")
	a.AppendOutput("reply")

	_, ok := a.FinalizeTurn()
	require.True(t, ok)
	assert.Empty(t, a.Interim())

	_, ok = a.FinalizeTurn()
	assert.False(t, ok, "second finalize with no new text must not produce a turn")

	a.AppendInput("second")
	turn, ok := a.FinalizeTurn()
	require.True(t, ok)
	assert.Equal(t, "second", turn.User)
	assert.Empty(t, turn.Model, "output from the previous turn must not leak")
}

func TestAggregator_InterimShowsInputOnly(t *testing.T) {
	a := NewAggregator()
	a.AppendInput("Hel")
	assert.Equal(t, "Hel", a.Interim())

	a.AppendOutput("model speech")
	assert.Equal(t, "Hel", a.Interim())

	a.AppendInput("lo")
	assert.Equal(t, "Hello", a.Interim())
}

func TestAggregator_Reset(t *testing.T) {
	a := NewAggregator()
	a.AppendInput("abandoned")
	a.AppendOutput("abandoned")
	a.Reset()

	assert.Empty(t, a.Interim())
	_, ok := a.FinalizeTurn()
	assert.False(t, ok)
}

func TestAggregator_Concurrent(t *testing.T) {
	a := NewAggregator()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			a.AppendInput("a")
		}()
		go func() {
			defer wg.Done()
			a.AppendOutput("b")
		}()
	}
	wg.Wait()

	turn, ok := a.FinalizeTurn()
	require.True(t, ok)
	assert.Len(t, turn.User, 50)
	assert.Len(t, turn.Model, 50)
}
