// Package capture produces fixed-size PCM frames from a microphone or a
// WAV file.
package capture

import (
	"context"
	"errors"
)

// ErrUnsupported is returned by the microphone source when the binary was
// built without PortAudio.
var ErrUnsupported = errors.New("capture: microphone support not compiled in (build with -tags whisper)")

// FrameFunc receives each captured frame. It runs on the capture goroutine
// and must not retain frame after returning unless it copies it.
type FrameFunc func(frame []byte)

// Source delivers 16 kHz mono 16-bit frames until ctx is done or the input
// ends. A finite source returns nil at end of input.
type Source interface {
	Run(ctx context.Context, fn FrameFunc) error
}

// Device describes an input device.
type Device struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Channels  int     `json:"channels"`
	LatencyMs float64 `json:"latency_ms"`
	Default   bool    `json:"default"`
}
