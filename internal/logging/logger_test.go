package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNilLoggerIsSilentAndReportsDisabled(t *testing.T) {
	var l *Logger
	assert.Equal(t, LevelDisabled, l.Level())
	assert.NotPanics(t, func() {
		l.Info("hello")
		l.Error(assert.AnError)
	})
}

func TestSubloggerBuildsDottedPrefixAndInheritsLevel(t *testing.T) {
	root := NewLogger(LevelDebug)
	child := root.Sublogger("engine")
	grandchild := child.Sublogger("lock")

	assert.Equal(t, LevelDebug, child.Level())
	assert.Equal(t, LevelDebug, grandchild.Level())
}

func TestSubloggerOnNilLoggerReturnsNil(t *testing.T) {
	var l *Logger
	assert.Nil(t, l.Sublogger("x"))
}

func TestWriterSplitsIntoLines(t *testing.T) {
	var lines []string
	w := &writer{callback: func(s string) { lines = append(lines, s) }}

	n, err := w.Write([]byte("first\nsecond\nthird-partial"))
	assert.NoError(t, err)
	assert.Equal(t, len("first\nsecond\nthird-partial"), n)
	assert.Equal(t, []string{"first", "second"}, lines)

	_, err = w.Write([]byte(" line\n"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "third-partial line"}, lines)
}

func TestWriterTrimsTrailingCarriageReturn(t *testing.T) {
	var lines []string
	w := &writer{callback: func(s string) { lines = append(lines, s) }}

	_, err := w.Write([]byte("crlf line\r\n"))
	assert.NoError(t, err)
	assert.Equal(t, []string{"crlf line"}, lines)
}

func TestLoggerWriterDiscardsBelowInfoLevel(t *testing.T) {
	l := NewLogger(LevelWarn)
	w := l.Writer()
	n, err := w.Write([]byte("ignored\n"))
	assert.NoError(t, err)
	assert.Equal(t, len("ignored\n"), n)
}
