package vad

import (
	"time"

	"earshot/internal/audio"
)

// Clock stamps each non-empty frame with the instant it is taken to have
// arrived.
type Clock interface {
	Stamp(frame []byte) time.Time
}

// WallClock stamps frames with time.Now.
type WallClock struct{}

func (WallClock) Stamp([]byte) time.Time { return time.Now() }

// AudioClock derives time from the amount of audio consumed, so segmentation
// of a recording does not depend on how fast it is fed.
type AudioClock struct {
	base   time.Time
	format audio.Format
	total  int64
}

func NewAudioClock(base time.Time, f audio.Format) *AudioClock {
	return &AudioClock{base: base, format: f}
}

// Stamp returns the stream time at the end of frame.
func (c *AudioClock) Stamp(frame []byte) time.Time {
	c.total += int64(len(frame))
	return c.base.Add(c.format.Duration(c.total))
}

// Elapsed is the duration of audio stamped so far.
func (c *AudioClock) Elapsed() time.Duration { return c.format.Duration(c.total) }
