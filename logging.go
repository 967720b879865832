// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/joeycumines/logiface"
)

// LogLevel is the severity of a log entry.
type LogLevel int32

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", l)
	}
}

// LogEntry is one structured log record emitted by an EventLoop, Connection,
// or Acceptor.
type LogEntry struct {
	Level     LogLevel
	Category  string // "selector", "timer", "queue", "connection", "acceptor"
	LoopID    int64
	ConnID    int64
	TimerID   uint64
	Message   string
	Err       error
	Context   map[string]any
	Timestamp time.Time
}

// Logger is the structured logging interface every reactor component logs
// through. Implementations must be safe for concurrent use: callbacks from
// multiple EventLoops may log at once.
type Logger interface {
	Log(entry LogEntry)
	IsEnabled(level LogLevel) bool
}

// nopLogger is the default Logger, installed when Options omits WithLogger.
type nopLogger struct{}

func (nopLogger) Log(LogEntry)            {}
func (nopLogger) IsEnabled(LogLevel) bool { return false }

// WriterLogger is a minimal Logger writing tab-separated text lines to an
// io.Writer, suitable for tests and simple deployments.
type WriterLogger struct {
	mu    sync.Mutex
	out   io.Writer
	level LogLevel
}

func NewWriterLogger(out io.Writer, level LogLevel) *WriterLogger {
	return &WriterLogger{out: out, level: level}
}

func (l *WriterLogger) IsEnabled(level LogLevel) bool { return level >= l.level }

func (l *WriterLogger) Log(entry LogEntry) {
	if !l.IsEnabled(entry.Level) {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintf(l.out, "%s\t%s\t[%s]\t%s", entry.Timestamp.Format("15:04:05.000"), entry.Level, entry.Category, entry.Message)
	if entry.LoopID != 0 {
		fmt.Fprintf(l.out, "\tloop=%d", entry.LoopID)
	}
	if entry.ConnID != 0 {
		fmt.Fprintf(l.out, "\tconn=%d", entry.ConnID)
	}
	if entry.TimerID != 0 {
		fmt.Fprintf(l.out, "\ttimer=%d", entry.TimerID)
	}
	for k, v := range entry.Context {
		fmt.Fprintf(l.out, "\t%s=%v", k, v)
	}
	if entry.Err != nil {
		fmt.Fprintf(l.out, "\terr=%v", entry.Err)
	}
	fmt.Fprintln(l.out)
}

// reactorEvent adapts a LogEntry to logiface.Event, the minimum surface
// logifaceLogger needs to round-trip a structured entry through a
// logiface.Logger pipeline (encoder, sampling, any registered Modifiers).
type reactorEvent struct {
	logiface.UnimplementedEvent
	level   logiface.Level
	message string
	fields  map[string]any
}

func (e *reactorEvent) Level() logiface.Level { return e.level }

func (e *reactorEvent) AddField(key string, val any) {
	if e.fields == nil {
		e.fields = make(map[string]any, 4)
	}
	e.fields[key] = val
}

func (e *reactorEvent) AddMessage(msg string) bool {
	e.message = msg
	return true
}

func (e *reactorEvent) AddError(err error) bool {
	e.AddField("error", err.Error())
	return true
}

type reactorEventFactory struct{}

func (reactorEventFactory) NewEvent(level logiface.Level) *reactorEvent {
	return &reactorEvent{level: level}
}

// reactorEventWriter marshals a reactorEvent to a single JSON line.
type reactorEventWriter struct {
	mu  sync.Mutex
	out io.Writer
}

func (w *reactorEventWriter) Write(e *reactorEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return json.NewEncoder(w.out).Encode(map[string]any{
		"level":   e.level.String(),
		"message": e.message,
		"fields":  e.fields,
	})
}

func toLogifaceLevel(l LogLevel) logiface.Level {
	switch l {
	case LevelDebug:
		return logiface.LevelDebug
	case LevelInfo:
		return logiface.LevelInformational
	case LevelWarn:
		return logiface.LevelWarning
	default:
		return logiface.LevelError
	}
}

// logifaceLogger adapts a logiface.Logger[*reactorEvent] pipeline to the
// reactor Logger interface, so any logiface backend (stumpy, zerolog,
// logrus, ...) can receive reactor's structured entries unchanged.
type logifaceLogger struct {
	inner *logiface.Logger[*reactorEvent]
}

// NewLogifaceLogger builds a Logger backed by logiface, JSON-encoding each
// entry to out through the given minimum level.
func NewLogifaceLogger(out io.Writer, level LogLevel) Logger {
	inner := logiface.New[*reactorEvent](
		logiface.WithLevel[*reactorEvent](toLogifaceLevel(level)),
		logiface.WithEventFactory[*reactorEvent](reactorEventFactory{}),
		logiface.WithWriter[*reactorEvent](&reactorEventWriter{out: out}),
	)
	return &logifaceLogger{inner: inner}
}

func (l *logifaceLogger) IsEnabled(level LogLevel) bool {
	switch toLogifaceLevel(level) {
	case logiface.LevelDebug:
		return l.inner.Debug().Enabled()
	case logiface.LevelInformational:
		return l.inner.Info().Enabled()
	case logiface.LevelWarning:
		return l.inner.Warning().Enabled()
	default:
		return l.inner.Err().Enabled()
	}
}

func (l *logifaceLogger) Log(entry LogEntry) {
	var b *logiface.Builder[*reactorEvent]
	switch entry.Level {
	case LevelDebug:
		b = l.inner.Debug()
	case LevelInfo:
		b = l.inner.Info()
	case LevelWarn:
		b = l.inner.Warning()
	default:
		b = l.inner.Err()
	}
	if entry.LoopID != 0 {
		b = b.Int64("loop", entry.LoopID)
	}
	if entry.ConnID != 0 {
		b = b.Int64("conn", entry.ConnID)
	}
	if entry.TimerID != 0 {
		b = b.Uint64("timer", entry.TimerID)
	}
	for k, v := range entry.Context {
		b = b.Any(k, v)
	}
	if entry.Err != nil {
		b = b.Err(entry.Err)
	}
	b.Log(entry.Message)
}
