// Package sink delivers transcription results to their consumers.
package sink

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// Result is one transcribed segment. Start and End are offsets within the
// utterance.
type Result struct {
	Utterance uint64
	Start     time.Duration
	End       time.Duration
	Text      string
}

// Transcript is the joined text of a finished utterance.
type Transcript struct {
	Utterance uint64
	Text      string
	Audio     time.Duration
	At        time.Time
}

// Sink receives segments as they arrive and one Transcript per utterance
// that produced text. Calls come from the dispatcher's worker goroutine.
type Sink interface {
	Segment(Result)
	Utterance(Transcript)
}

// FormatOffset renders d as hh:mm:ss.mmm.
func FormatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms%1000)
}

// Console writes one line per segment.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Segment(r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, "%s->%s: %s\n", FormatOffset(r.Start), FormatOffset(r.End), r.Text)
}

func (c *Console) Utterance(Transcript) {}

// Fanout forwards to every non-nil sink in order.
type Fanout []Sink

func (f Fanout) Segment(r Result) {
	for _, s := range f {
		if s != nil {
			s.Segment(r)
		}
	}
}

func (f Fanout) Utterance(t Transcript) {
	for _, s := range f {
		if s != nil {
			s.Utterance(t)
		}
	}
}

// Func adapts plain functions; nil fields are skipped.
type Func struct {
	OnSegment   func(Result)
	OnUtterance func(Transcript)
}

func (f Func) Segment(r Result) {
	if f.OnSegment != nil {
		f.OnSegment(r)
	}
}

func (f Func) Utterance(t Transcript) {
	if f.OnUtterance != nil {
		f.OnUtterance(t)
	}
}
