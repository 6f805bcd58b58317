package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Span names.
const (
	SpanSession = "livevoice.session"
	SpanTurn    = "livevoice.turn"
)

// SessionSpan tracks the root span of one session and the span of the turn
// in progress. Methods are safe for concurrent use and on a nil receiver.
type SessionSpan struct {
	mu      sync.Mutex
	ctx     context.Context
	span    trace.Span
	tracer  trace.Tracer
	turn    trace.Span
	turnIdx int
	ended   bool
}

// StartSession opens the root span for a session.
func StartSession(ctx context.Context, tracer trace.Tracer, sessionID, backend, model string) *SessionSpan {
	ctx, span := tracer.Start(ctx, SpanSession,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("livevoice.backend", backend),
			attribute.String("gen_ai.request.model", model),
		),
	)
	return &SessionSpan{ctx: ctx, span: span, tracer: tracer}
}

// Context returns a context carrying the session span.
func (s *SessionSpan) Context() context.Context {
	if s == nil {
		return context.Background()
	}
	return s.ctx
}

// Event records a point-in-time event on the current turn, or on the
// session span between turns.
func (s *SessionSpan) Event(name string, attrs ...attribute.KeyValue) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	target := s.span
	if s.turn != nil {
		target = s.turn
	}
	target.AddEvent(name, trace.WithAttributes(attrs...))
}

// TouchTurn starts a turn span if none is open.
func (s *SessionSpan) TouchTurn() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended || s.turn != nil {
		return
	}
	s.turnIdx++
	_, s.turn = s.tracer.Start(s.ctx, SpanTurn,
		trace.WithAttributes(attribute.Int("livevoice.turn", s.turnIdx)))
}

// EndTurn closes the open turn span with the finalized transcript sizes.
func (s *SessionSpan) EndTurn(userChars, modelChars int) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.turn == nil {
		return
	}
	s.turn.SetAttributes(
		attribute.Int("livevoice.turn.user_chars", userChars),
		attribute.Int("livevoice.turn.model_chars", modelChars),
	)
	s.turn.SetStatus(codes.Ok, "")
	s.turn.End()
	s.turn = nil
}

// End closes any open turn and the session span. A non-nil err marks the
// session span failed. Calls after the first are ignored.
func (s *SessionSpan) End(err error) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	if s.turn != nil {
		s.turn.End()
		s.turn = nil
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}
