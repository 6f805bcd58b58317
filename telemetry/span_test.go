package telemetry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecorder() (*tracetest.SpanRecorder, *sdktrace.TracerProvider) {
	rec := tracetest.NewSpanRecorder()
	return rec, sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
}

func TestSessionSpan_TurnsAndEnd(t *testing.T) {
	rec, tp := newRecorder()
	s := StartSession(t.Context(), Tracer(tp), "abc", "websocket", "m")

	s.TouchTurn()
	s.TouchTurn()
	s.Event("interrupted")
	s.EndTurn(5, 12)
	s.Event("audio")
	s.End(nil)

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, SpanTurn, ended[0].Name())
	assert.Equal(t, SpanSession, ended[1].Name())
	assert.Equal(t, ended[1].SpanContext().SpanID(), ended[0].Parent().SpanID())
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "interrupted", ended[0].Events()[0].Name)
	require.Len(t, ended[1].Events(), 1)
	assert.Equal(t, codes.Ok, ended[1].Status().Code)
}

func TestSessionSpan_EndWithError(t *testing.T) {
	rec, tp := newRecorder()
	s := StartSession(t.Context(), Tracer(tp), "abc", "genai", "m")
	s.TouchTurn()

	s.End(errors.New("boom"))
	s.End(nil)
	s.Event("late")
	s.TouchTurn()

	ended := rec.Ended()
	require.Len(t, ended, 2)
	assert.Equal(t, codes.Error, ended[1].Status().Code)
	assert.Equal(t, "boom", ended[1].Status().Description)
}

func TestSessionSpan_NilSafe(t *testing.T) {
	var s *SessionSpan
	assert.NotPanics(t, func() {
		s.Event("x")
		s.TouchTurn()
		s.EndTurn(0, 0)
		s.End(nil)
		_ = s.Context()
	})
}
