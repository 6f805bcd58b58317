package logger

import (
	"context"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields.
const (
	// ContextKeySessionID identifies one run of a live voice session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyTurn is the ordinal of the current conversation turn.
	ContextKeyTurn contextKey = "turn"

	// ContextKeyModel identifies the remote model.
	ContextKeyModel contextKey = "model"

	// ContextKeyBackend identifies the transport backend (websocket, genai).
	ContextKeyBackend contextKey = "backend"
)

// allContextKeys lists all context keys that should be extracted for logging.
var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyTurn,
	ContextKeyModel,
	ContextKeyBackend,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithTurn returns a new context with the turn ordinal set.
func WithTurn(ctx context.Context, turn string) context.Context {
	return context.WithValue(ctx, ContextKeyTurn, turn)
}

// WithModel returns a new context with the model name set.
func WithModel(ctx context.Context, model string) context.Context {
	return context.WithValue(ctx, ContextKeyModel, model)
}

// WithBackend returns a new context with the transport backend set.
func WithBackend(ctx context.Context, backend string) context.Context {
	return context.WithValue(ctx, ContextKeyBackend, backend)
}

// SessionID returns the session ID stored in ctx, if any.
func SessionID(ctx context.Context) string {
	s, _ := ctx.Value(ContextKeySessionID).(string)
	return s
}
