package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"earshot/internal/audio"
)

// WAV replays PCM in frame-sized chunks, optionally paced at real time.
type WAV struct {
	pcm      []byte
	format   audio.Format
	frameMS  int
	realtime bool
}

// NewWAV wraps already-decoded PCM.
func NewWAV(pcm []byte, f audio.Format, frameMS int, realtime bool) *WAV {
	if frameMS <= 0 {
		frameMS = 20
	}
	return &WAV{pcm: pcm, format: f, frameMS: frameMS, realtime: realtime}
}

// OpenWAV decodes a 16 kHz mono 16-bit WAV file.
func OpenWAV(path string, frameMS int, realtime bool) (*WAV, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	pcm, err := audio.DecodeWAVStrict(f, audio.PCM16kMono)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewWAV(pcm, audio.PCM16kMono, frameMS, realtime), nil
}

// Duration is the length of the replayed audio.
func (w *WAV) Duration() time.Duration {
	return w.format.Duration(int64(len(w.pcm)))
}

func (w *WAV) Run(ctx context.Context, fn FrameFunc) error {
	size := w.format.FrameBytes(w.frameMS)
	var tick <-chan time.Time
	if w.realtime {
		t := time.NewTicker(time.Duration(w.frameMS) * time.Millisecond)
		defer t.Stop()
		tick = t.C
	}
	for off := 0; off < len(w.pcm); off += size {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+size, len(w.pcm))
		fn(w.pcm[off:end])
	}
	return nil
}
