// Package edenlog provides the structured logging primitives shared by every
// component of the core storage engine. It wraps zerolog so that callers
// never import zerolog directly, matching the layering used throughout this
// codebase between a component and the libraries it depends on.
package edenlog

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger without exposing it directly.
type Logger struct {
	zl zerolog.Logger
}

// Event wraps zerolog.Event without exposing it directly.
type Event struct {
	ze *zerolog.Event
}

// DefaultLogger is used by every package-level helper below. Daemon entry
// points replace it once the configured log output is known.
var DefaultLogger = Logger{zl: zerolog.New(os.Stderr).With().Timestamp().Logger()}

// Level mirrors zerolog.Level so call sites never import zerolog.
type Level int8

const (
	DebugLevel Level = Level(zerolog.DebugLevel)
	InfoLevel  Level = Level(zerolog.InfoLevel)
	WarnLevel  Level = Level(zerolog.WarnLevel)
	ErrorLevel Level = Level(zerolog.ErrorLevel)
	FatalLevel Level = Level(zerolog.FatalLevel)
	TraceLevel Level = Level(zerolog.TraceLevel)
	Disabled   Level = Level(zerolog.Disabled)
)

func SetGlobalLevel(level Level) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

func ParseLevel(s string) (Level, error) {
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return 0, fmt.Errorf("invalid log level %q: %w", s, err)
	}
	return Level(level), nil
}

func (l Level) String() string { return zerolog.Level(l).String() }

// New creates a Logger writing to w with an RFC3339 timestamp field.
func New(w io.Writer) Logger {
	return Logger{zl: zerolog.New(w).With().Timestamp().Logger()}
}

// NewConsoleWriter wraps w with zerolog's human-readable console formatter.
func NewConsoleWriter(w io.Writer, timeFormat string) io.Writer {
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}

// Output returns a copy of l writing to w.
func (l Logger) Output(w io.Writer) Logger {
	return Logger{zl: l.zl.Output(w)}
}

// Ctx is a wrapper around zerolog.Context used to build a child Logger.
type Ctx struct {
	zc zerolog.Context
}

func (l Logger) With() Ctx { return Ctx{zc: l.zl.With()} }
func (c Ctx) Logger() Logger { return Logger{zl: c.zc.Logger()} }
func (c Ctx) Str(key, val string) Ctx             { return Ctx{zc: c.zc.Str(key, val)} }
func (c Ctx) Int64(key string, val int64) Ctx     { return Ctx{zc: c.zc.Int64(key, val)} }
func (c Ctx) Uint64(key string, val uint64) Ctx   { return Ctx{zc: c.zc.Uint64(key, val)} }
func (c Ctx) Interface(key string, val interface{}) Ctx {
	return Ctx{zc: c.zc.Interface(key, val)}
}

func (l Logger) Debug() Event { return Event{ze: l.zl.Debug()} }
func (l Logger) Info() Event  { return Event{ze: l.zl.Info()} }
func (l Logger) Warn() Event  { return Event{ze: l.zl.Warn()} }
func (l Logger) Error() Event { return Event{ze: l.zl.Error()} }
func (l Logger) Fatal() Event { return Event{ze: l.zl.Fatal()} }
func (l Logger) Trace() Event { return Event{ze: l.zl.Trace()} }

func (e Event) Str(key, val string) Event               { return Event{ze: e.ze.Str(key, val)} }
func (e Event) Int(key string, val int) Event            { return Event{ze: e.ze.Int(key, val)} }
func (e Event) Int64(key string, val int64) Event        { return Event{ze: e.ze.Int64(key, val)} }
func (e Event) Uint64(key string, val uint64) Event      { return Event{ze: e.ze.Uint64(key, val)} }
func (e Event) Bool(key string, val bool) Event          { return Event{ze: e.ze.Bool(key, val)} }
func (e Event) Err(err error) Event                      { return Event{ze: e.ze.Err(err)} }
func (e Event) Dur(key string, val time.Duration) Event  { return Event{ze: e.ze.Dur(key, val)} }
func (e Event) Interface(key string, val interface{}) Event {
	return Event{ze: e.ze.Interface(key, val)}
}

func (e Event) Msg(msg string)                          { e.ze.Msg(msg) }
func (e Event) Msgf(format string, v ...interface{})     { e.ze.Msgf(format, v...) }
func (e Event) Enabled() bool                            { return e.ze.Enabled() }

func Debug() Event { return DefaultLogger.Debug() }
func Info() Event  { return DefaultLogger.Info() }
func Warn() Event  { return DefaultLogger.Warn() }
func Error() Event { return DefaultLogger.Error() }
func Fatal() Event { return DefaultLogger.Fatal() }
func Trace() Event { return DefaultLogger.Trace() }

func IsDebugEnabled() bool { return Debug().Enabled() }
