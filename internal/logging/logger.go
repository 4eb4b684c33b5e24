package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"

	"github.com/fatih/color"
)

// writer is an io.Writer that splits its input stream into lines and writes
// those lines to an underlying logger.
type writer struct {
	// callback is the logging callback.
	callback func(string)
	// buffer is any incomplete line fragment left over from a previous write.
	buffer []byte
}

// trimCarriageReturn trims any single trailing carriage return from the end of
// a byte slice.
func trimCarriageReturn(buffer []byte) []byte {
	if len(buffer) > 0 && buffer[len(buffer)-1] == '\r' {
		return buffer[:len(buffer)-1]
	}
	return buffer
}

// Write implements io.Writer.Write.
func (w *writer) Write(buffer []byte) (int, error) {
	w.buffer = append(w.buffer, buffer...)

	var processed int
	remaining := w.buffer
	for {
		index := bytes.IndexByte(remaining, '\n')
		if index == -1 {
			break
		}
		w.callback(string(trimCarriageReturn(remaining[:index])))
		processed += index + 1
		remaining = remaining[index+1:]
	}

	if processed > 0 {
		leftover := len(w.buffer) - processed
		if leftover > 0 {
			copy(w.buffer[:leftover], w.buffer[processed:])
		}
		w.buffer = w.buffer[:leftover]
	}

	return len(buffer), nil
}

// Logger is the main logger type. A nil *Logger is valid and silently
// discards everything, so components can be constructed with a nil logger in
// tests without special-casing. It is safe for concurrent use, since the
// standard library's log.Logger already serializes writes.
type Logger struct {
	// prefix is the dotted component path for this logger (e.g. "engine.lock").
	prefix string
	// level is the minimum level at which this logger (and its descendants,
	// unless overridden) emits output.
	level Level
}

// NewLogger creates a new root logger at the given level.
func NewLogger(level Level) *Logger {
	return &Logger{level: level}
}

// Sublogger creates a new logger with the specified name appended to the
// dotted prefix, inheriting the parent's level.
func (l *Logger) Sublogger(name string) *Logger {
	if l == nil {
		return nil
	}
	prefix := name
	if l.prefix != "" {
		prefix = l.prefix + "." + name
	}
	return &Logger{prefix: prefix, level: l.level}
}

// Level returns the logger's configured level.
func (l *Logger) Level() Level {
	if l == nil {
		return LevelDisabled
	}
	return l.level
}

func (l *Logger) enabled(level Level) bool {
	return l != nil && l.level >= level
}

func (l *Logger) output(line string) {
	if l.prefix != "" {
		line = fmt.Sprintf("[%s] %s", l.prefix, line)
	}
	log.Output(4, line)
}

// Error logs error information, unconditionally colored red, at LevelError.
func (l *Logger) Error(err error) {
	if l.enabled(LevelError) {
		l.output(color.RedString("error: %v", err))
	}
}

// Warn logs warning information, colored yellow, at LevelWarn.
func (l *Logger) Warn(v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.output(color.YellowString("warning: %s", fmt.Sprint(v...)))
	}
}

// Warnf is the formatted variant of Warn.
func (l *Logger) Warnf(format string, v ...interface{}) {
	if l.enabled(LevelWarn) {
		l.output(color.YellowString("warning: "+format, v...))
	}
}

// Info logs basic execution information at LevelInfo.
func (l *Logger) Info(v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(fmt.Sprint(v...))
	}
}

// Infof is the formatted variant of Info.
func (l *Logger) Infof(format string, v ...interface{}) {
	if l.enabled(LevelInfo) {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Debug logs advanced execution information at LevelDebug.
func (l *Logger) Debug(v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(fmt.Sprint(v...))
	}
}

// Debugf is the formatted variant of Debug.
func (l *Logger) Debugf(format string, v ...interface{}) {
	if l.enabled(LevelDebug) {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Trace logs low-level execution information at LevelTrace.
func (l *Logger) Trace(v ...interface{}) {
	if l.enabled(LevelTrace) {
		l.output(fmt.Sprint(v...))
	}
}

// Tracef is the formatted variant of Trace.
func (l *Logger) Tracef(format string, v ...interface{}) {
	if l.enabled(LevelTrace) {
		l.output(fmt.Sprintf(format, v...))
	}
}

// Writer returns an io.Writer that writes lines at LevelInfo using Info.
func (l *Logger) Writer() io.Writer {
	if !l.enabled(LevelInfo) {
		return io.Discard
	}
	return &writer{callback: func(s string) { l.Info(s) }}
}
