//go:build whisper

package vad

import (
	"fmt"

	"earshot/internal/audio"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// WebRTCMeter reports the fraction of fixed-size sub-frames the WebRTC
// detector classifies as voiced. Trailing bytes shorter than a sub-frame are
// not classified.
type WebRTCMeter struct {
	vad      *webrtcvad.VAD
	rate     int
	subBytes int
}

// NewWebRTCMeter creates a meter classifying frameMS sub-frames (10, 20 or
// 30) at the given aggressiveness (0-3).
func NewWebRTCMeter(f audio.Format, frameMS, aggressiveness int) (Meter, error) {
	switch frameMS {
	case 10, 20, 30:
	default:
		return nil, fmt.Errorf("webrtc vad: frame_ms must be 10, 20 or 30 (got %d)", frameMS)
	}
	switch f.SampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return nil, fmt.Errorf("webrtc vad: unsupported sample rate %d", f.SampleRate)
	}
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("webrtc vad: %w", err)
	}
	if err := v.SetMode(aggressiveness); err != nil {
		return nil, fmt.Errorf("webrtc vad mode: %w", err)
	}
	return &WebRTCMeter{vad: v, rate: f.SampleRate, subBytes: f.FrameBytes(frameMS)}, nil
}

func (m *WebRTCMeter) Level(frame []byte) float64 {
	var total, voiced int
	for off := 0; off+m.subBytes <= len(frame); off += m.subBytes {
		total++
		active, err := m.vad.Process(m.rate, frame[off:off+m.subBytes])
		if err == nil && active {
			voiced++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(voiced) / float64(total)
}
