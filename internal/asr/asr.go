// Package asr turns utterance audio into timestamped text segments.
package asr

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrUnsupported is returned when the binary was built without the
	// whisper tag.
	ErrUnsupported = errors.New("asr: whisper support not compiled in (build with -tags whisper)")
	// ErrModelNotFound means no model file could be located.
	ErrModelNotFound = errors.New("asr: model file not found")
)

// Segment is a recognized piece of text. Start and End are offsets from the
// beginning of the utterance.
type Segment struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

// Stream yields segments as the engine produces them. Next returns io.EOF
// after the last segment.
type Stream interface {
	Next() (Segment, error)
	Close() error
}

// Engine transcribes one WAV container per call. Implementations must be
// safe for sequential reuse; the dispatcher never calls Transcribe
// concurrently.
type Engine interface {
	Transcribe(ctx context.Context, wav io.ReadSeeker) (Stream, error)
	Close() error
}

// Options configure the whisper engine.
type Options struct {
	ModelPath string
	Language  string
	Threads   int
}

// New loads the whisper model.
func New(opts Options, logger *logrus.Logger) (Engine, error) {
	return newWhisperEngine(opts, logger)
}

// Collect drains s and closes it.
func Collect(s Stream) ([]Segment, error) {
	defer func() { _ = s.Close() }()
	var out []Segment
	for {
		seg, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, seg)
	}
}

// SliceStream replays a fixed list of segments, then Err (io.EOF if nil).
type SliceStream struct {
	Segments []Segment
	Err      error
	pos      int
}

func (s *SliceStream) Next() (Segment, error) {
	if s.pos < len(s.Segments) {
		seg := s.Segments[s.pos]
		s.pos++
		return seg, nil
	}
	if s.Err != nil {
		return Segment{}, s.Err
	}
	return Segment{}, io.EOF
}

func (s *SliceStream) Close() error { return nil }
