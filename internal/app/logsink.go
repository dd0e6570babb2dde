package app

import (
	"strings"
	"sync"
)

// logSink is the io.Writer behind the UI logger. It keeps the last limit
// lines and pings notify after every write.
type logSink struct {
	mu     sync.Mutex
	lines  []string
	limit  int
	notify func()
}

func newLogSink(limit int, notify func()) *logSink {
	if limit <= 0 {
		limit = 200
	}
	return &logSink{limit: limit, notify: notify}
}

func (l *logSink) Write(p []byte) (int, error) {
	text := strings.ReplaceAll(string(p), "\r\n", "\n")
	l.mu.Lock()
	for _, part := range strings.Split(text, "\n") {
		if part == "" {
			continue
		}
		l.lines = append(l.lines, part)
	}
	if len(l.lines) > l.limit {
		l.lines = l.lines[len(l.lines)-l.limit:]
	}
	notify := l.notify
	l.mu.Unlock()
	if notify != nil {
		notify()
	}
	return len(p), nil
}

// Text returns the retained lines joined by newlines.
func (l *logSink) Text() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return strings.Join(l.lines, "\n")
}

func (l *logSink) setNotify(fn func()) {
	l.mu.Lock()
	l.notify = fn
	l.mu.Unlock()
}
