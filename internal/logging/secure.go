// Package logging provides secure logging utilities with credential sanitization.
package logging

import (
	"time"

	internalerrors "github.com/olegiv/nginx-log-chat-go/internal/errors"
	"github.com/rs/zerolog"
)

// Source is the event factory a SecureLogger writes through.
// *logger.Logger from github.com/olegiv/go-logger satisfies it.
type Source interface {
	Info() *zerolog.Event
	Debug() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Close() error
}

// SecureLogger wraps a Source and sanitizes all string values so API keys,
// bot tokens and credentials found in access-log URLs never reach the log file.
type SecureLogger struct {
	log Source
}

// NewSecure creates a new SecureLogger wrapper around the provided logger.
func NewSecure(log Source) *SecureLogger {
	return &SecureLogger{log: log}
}

// zerologSource adapts a bare zerolog.Logger to Source.
type zerologSource struct {
	zl zerolog.Logger
}

func (z *zerologSource) Info() *zerolog.Event  { return z.zl.Info() }
func (z *zerologSource) Debug() *zerolog.Event { return z.zl.Debug() }
func (z *zerologSource) Warn() *zerolog.Event  { return z.zl.Warn() }
func (z *zerologSource) Error() *zerolog.Event { return z.zl.Error() }
func (z *zerologSource) Close() error          { return nil }

// NewFromZerolog wraps a plain zerolog.Logger, e.g. one writing into a test buffer.
func NewFromZerolog(zl zerolog.Logger) *SecureLogger {
	return NewSecure(&zerologSource{zl: zl})
}

// NewNop returns a SecureLogger that discards everything.
func NewNop() *SecureLogger {
	return NewFromZerolog(zerolog.Nop())
}

// SecureEvent wraps a zerolog Event to provide secure string methods.
type SecureEvent struct {
	event *zerolog.Event
}

// Info starts a new info-level log event with credential sanitization.
func (s *SecureLogger) Info() *SecureEvent {
	return &SecureEvent{event: s.log.Info()}
}

// Debug starts a new debug-level log event with credential sanitization.
func (s *SecureLogger) Debug() *SecureEvent {
	return &SecureEvent{event: s.log.Debug()}
}

// Warn starts a new warn-level log event with credential sanitization.
func (s *SecureLogger) Warn() *SecureEvent {
	return &SecureEvent{event: s.log.Warn()}
}

// Error starts a new error-level log event with credential sanitization.
func (s *SecureLogger) Error() *SecureEvent {
	return &SecureEvent{event: s.log.Error()}
}

// Close closes the underlying logger.
func (s *SecureLogger) Close() error {
	return s.log.Close()
}

// Str adds a sanitized string field to the log event.
func (e *SecureEvent) Str(key, val string) *SecureEvent {
	e.event.Str(key, internalerrors.SanitizeString(val))
	return e
}

// Int adds an integer field to the log event.
func (e *SecureEvent) Int(key string, val int) *SecureEvent {
	e.event.Int(key, val)
	return e
}

// Int64 adds an int64 field to the log event.
func (e *SecureEvent) Int64(key string, val int64) *SecureEvent {
	e.event.Int64(key, val)
	return e
}

// Float64 adds a float64 field to the log event.
func (e *SecureEvent) Float64(key string, val float64) *SecureEvent {
	e.event.Float64(key, val)
	return e
}

// Bool adds a boolean field to the log event.
func (e *SecureEvent) Bool(key string, val bool) *SecureEvent {
	e.event.Bool(key, val)
	return e
}

// Dur adds a duration field to the log event.
func (e *SecureEvent) Dur(key string, val time.Duration) *SecureEvent {
	e.event.Dur(key, val)
	return e
}

// Err adds a sanitized error field to the log event.
func (e *SecureEvent) Err(err error) *SecureEvent {
	if err != nil {
		e.event.Err(internalerrors.SanitizeError(err))
	}
	return e
}

// Msg sends the log event with a sanitized message.
func (e *SecureEvent) Msg(msg string) {
	e.event.Msg(internalerrors.SanitizeString(msg))
}

// Msgf sends a formatted log event with sanitized format arguments.
// Only string and error arguments are sanitized.
func (e *SecureEvent) Msgf(format string, v ...interface{}) {
	sanitizedArgs := make([]interface{}, len(v))
	for i, arg := range v {
		switch a := arg.(type) {
		case string:
			sanitizedArgs[i] = internalerrors.SanitizeString(a)
		case error:
			sanitizedArgs[i] = internalerrors.SanitizeError(a)
		default:
			sanitizedArgs[i] = arg
		}
	}
	e.event.Msgf(format, sanitizedArgs...)
}
