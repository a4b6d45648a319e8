package framework

import (
	"bytes"
	"fmt"
	"io"
	"sync"
	"time"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger is the minimal logging interface used throughout the harness. The
// launcher components write their progress and any container output through
// a Logger, so that output can either go straight to the console or be
// captured per test and replayed only on failure.
type Logger interface {
	Printf(message string, args ...interface{})
}

type nullLogger struct{}

func (n nullLogger) Printf(message string, args ...interface{}) {}

func NullLogger() Logger { return nullLogger{} }

type CapturedMessage struct {
	Time    time.Time
	Message string
}

type CapturedOutput []CapturedMessage

// CapturingLogger accumulates messages in memory. It is safe for concurrent
// use; load-generation goroutines may log through it simultaneously.
type CapturingLogger struct {
	output []CapturedMessage
	lock   sync.Mutex
}

func (l *CapturingLogger) Printf(message string, args ...interface{}) {
	l.lock.Lock()
	l.output = append(l.output, CapturedMessage{Time: time.Now(), Message: fmt.Sprintf(message, args...)})
	l.lock.Unlock()
}

func (l *CapturingLogger) Output() CapturedOutput {
	l.lock.Lock()
	ret := append(CapturedOutput(nil), l.output...)
	l.lock.Unlock()
	return ret
}

func (output CapturedOutput) Dump(dest io.Writer, prefix string) {
	for _, m := range output {
		fmt.Fprintf(dest, "%s[%s] %s\n",
			prefix,
			m.Time.Format(timestampFormat),
			m.Message,
		)
	}
}

// LineWriter adapts a Logger to io.Writer, emitting one log message per line
// of written text. The health probe uses this to forward container log output
// into the harness's own log stream. Partial lines are buffered until a
// newline arrives or Flush is called.
type LineWriter struct {
	Logger Logger
	Prefix string
	buf    bytes.Buffer
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	for {
		line, err := w.buf.ReadString('\n')
		if err != nil {
			// Incomplete line; put it back and wait for more input.
			w.buf.WriteString(line)
			break
		}
		w.Logger.Printf("%s%s", w.Prefix, trimLineEnding(line))
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *LineWriter) Flush() {
	if w.buf.Len() > 0 {
		w.Logger.Printf("%s%s", w.Prefix, trimLineEnding(w.buf.String()))
		w.buf.Reset()
	}
}

func trimLineEnding(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
