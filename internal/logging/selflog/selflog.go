// Package selflog is the diagnostic side-channel of the shipping pipeline.
// Pipeline internals report dropped entries, dropped batches and sink errors
// here instead of failing; with no writer attached every call is a no-op.
package selflog

import (
	"fmt"
	"io"
	"sync"
	"time"
)

type Logger struct {
	mu  sync.Mutex
	out io.Writer
}

func New() *Logger {
	return &Logger{}
}

// Enable directs diagnostic output to w. Passing nil is the same as Disable.
func (l *Logger) Enable(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = w
}

func (l *Logger) Disable() {
	l.Enable(nil)
}

// Printf writes one diagnostic line. A nil receiver, a disabled logger, a
// failing writer and a panicking formatter are all silent: diagnostics must
// never destabilize the pipeline they report on.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	fmt.Fprintf(l.out, "%s %s\n", time.Now().Format(time.RFC3339), fmt.Sprintf(format, args...))
}
