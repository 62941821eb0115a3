package sink

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Log keeps the last few transcripts in memory for status queries and, when
// a path is set, appends each one to a transcript file.
type Log struct {
	path   string
	tail   int
	logger *logrus.Logger

	mu      sync.Mutex
	entries []Transcript
}

// NewLog returns a Log holding up to tail entries. An empty path disables
// the file.
func NewLog(path string, tail int, logger *logrus.Logger) *Log {
	if tail <= 0 {
		tail = 1
	}
	return &Log{path: path, tail: tail, logger: logger, entries: make([]Transcript, 0, tail)}
}

func (l *Log) Segment(Result) {}

func (l *Log) Utterance(t Transcript) {
	if t.At.IsZero() {
		t.At = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, t)
	if len(l.entries) > l.tail {
		l.entries = l.entries[len(l.entries)-l.tail:]
	}
	if l.path == "" {
		return
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		l.logger.Warnf("open transcript log: %v", err)
		return
	}
	if _, err := fmt.Fprintf(f, "%s\t%s\n", t.At.Format(time.RFC3339), t.Text); err != nil {
		l.logger.Warnf("write transcript: %v", err)
	}
	_ = f.Close()
}

// Tail returns a copy of the retained transcripts, oldest first.
func (l *Log) Tail() []Transcript {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transcript, len(l.entries))
	copy(out, l.entries)
	return out
}
