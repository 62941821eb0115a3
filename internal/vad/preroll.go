package vad

// PreRoll holds the most recent audio seen outside an utterance.
//
// In reset mode an append that would exceed capacity empties the buffer,
// dropping the new frame too. In sliding mode the oldest bytes are trimmed
// so the buffer always ends with the latest audio.
type PreRoll struct {
	buf     []byte
	cap     int
	sliding bool
	resets  int
}

// NewPreRoll returns a pre-roll bounded to capacity bytes. Capacity is
// rounded down to a whole sample.
func NewPreRoll(capacity int, sliding bool) *PreRoll {
	capacity &^= 1
	return &PreRoll{buf: make([]byte, 0, capacity), cap: capacity, sliding: sliding}
}

// Append adds frame and reports whether the buffer overflowed.
func (p *PreRoll) Append(frame []byte) bool {
	if len(p.buf)+len(frame) <= p.cap {
		p.buf = append(p.buf, frame...)
		return false
	}
	p.resets++
	if !p.sliding {
		p.buf = p.buf[:0]
		return true
	}
	if len(frame) >= p.cap {
		p.buf = append(p.buf[:0], frame[len(frame)-p.cap:]...)
		return true
	}
	drop := len(p.buf) + len(frame) - p.cap
	n := copy(p.buf, p.buf[drop:])
	p.buf = append(p.buf[:n], frame...)
	return true
}

// Drain returns the buffered audio and empties the buffer. The returned
// slice is owned by the caller.
func (p *PreRoll) Drain() []byte {
	out := make([]byte, len(p.buf), len(p.buf)+4096)
	copy(out, p.buf)
	p.buf = p.buf[:0]
	return out
}

// Clear empties the buffer.
func (p *PreRoll) Clear() { p.buf = p.buf[:0] }

func (p *PreRoll) Len() int { return len(p.buf) }

func (p *PreRoll) Cap() int { return p.cap }

// Resets counts overflows since construction.
func (p *PreRoll) Resets() int { return p.resets }
