// Package logger provides structured logging for live voice sessions.
//
// This package wraps Go's standard log/slog with:
//   - Level control from LOG_LEVEL and command-line verbosity flags
//   - Session-scoped fields (session ID, turn, model) lifted from context
//   - Redaction of API keys that would otherwise leak through endpoint URLs
//
// All exported functions use the global DefaultLogger. Output defaults to
// stderr; a terminal UI redirects it to a file with SetOutput.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"sync"
)

var (
	// DefaultLogger is the global structured logger instance.
	// It is safe for concurrent use and initialized with slog.LevelInfo by default.
	DefaultLogger *slog.Logger

	level  = new(slog.LevelVar)
	mu     sync.Mutex
	output io.Writer = os.Stderr
)

func init() {
	level.Set(ParseLevel(os.Getenv("LOG_LEVEL")))
	rebuild()
}

// ParseLevel maps a level name to a slog.Level. Unknown names map to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func rebuild() {
	handler := slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
	DefaultLogger = slog.New(NewContextHandler(handler))
}

// SetLevel changes the logging level for all subsequent log operations.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// Level returns the current logging level.
func Level() slog.Level {
	return level.Level()
}

// SetVerbose enables debug-level logging when verbose is true, otherwise sets info-level.
// This is a convenience wrapper around SetLevel for command-line verbose flags.
func SetVerbose(verbose bool) {
	if verbose {
		SetLevel(slog.LevelDebug)
	} else {
		SetLevel(slog.LevelInfo)
	}
}

// SetOutput redirects log output. A full-screen terminal UI uses this to
// keep log lines off the display.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
	rebuild()
}

// Info logs an informational message with structured key-value attributes.
// Args should be provided in key-value pairs: key1, value1, key2, value2, ...
func Info(msg string, args ...any) {
	DefaultLogger.Info(msg, args...)
}

// InfoContext logs an informational message with context and structured attributes.
func InfoContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.InfoContext(ctx, msg, args...)
}

// Debug logs a debug-level message with structured attributes.
func Debug(msg string, args ...any) {
	DefaultLogger.Debug(msg, args...)
}

// DebugContext logs a debug message with context and structured attributes.
func DebugContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.DebugContext(ctx, msg, args...)
}

// Warn logs a warning message with structured attributes.
// Use for recoverable errors or unexpected but non-critical situations.
func Warn(msg string, args ...any) {
	DefaultLogger.Warn(msg, args...)
}

// WarnContext logs a warning message with context and structured attributes.
func WarnContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.WarnContext(ctx, msg, args...)
}

// Error logs an error message with structured attributes.
func Error(msg string, args ...any) {
	DefaultLogger.Error(msg, args...)
}

// ErrorContext logs an error message with context and structured attributes.
func ErrorContext(ctx context.Context, msg string, args ...any) {
	DefaultLogger.ErrorContext(ctx, msg, args...)
}

var (
	// apiKeyPatterns contains compiled regular expressions for detecting sensitive data.
	apiKeyPatterns = []*regexp.Regexp{
		regexp.MustCompile(`AIza[a-zA-Z0-9_-]{35}`),    // Google API keys
		regexp.MustCompile(`([?&]key=)[^&\s]+`),        // key query parameter
		regexp.MustCompile(`Bearer\s+[a-zA-Z0-9_.-]+`), // Bearer tokens
	}
)

// RedactSensitiveData removes API keys and other sensitive information from strings.
//
// Supported patterns:
//   - Google keys (AIza...): Shows first 4 chars
//   - key= query parameters: value replaced
//   - Bearer tokens: Shows only "Bearer [REDACTED]"
func RedactSensitiveData(input string) string {
	result := input
	for _, pattern := range apiKeyPatterns {
		result = pattern.ReplaceAllStringFunc(result, func(match string) string {
			switch {
			case strings.HasPrefix(match, "Bearer"):
				return "Bearer [REDACTED]"
			case strings.HasPrefix(match, "?key=") || strings.HasPrefix(match, "&key="):
				return match[:5] + "[REDACTED]"
			case len(match) > 8:
				return match[:4] + "...[REDACTED]"
			}
			return "[REDACTED]"
		})
	}
	return result
}
