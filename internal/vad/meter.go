// Package vad turns a stream of raw PCM frames into discrete utterances.
//
// A Meter reduces each frame to a level in [0,1]; the Segmenter compares that
// level against a threshold, keeps a short PreRoll of audio so the attack of
// a word is not clipped, and hands completed utterances to a Submitter once
// silence has outlasted the hangover.
package vad

import "encoding/binary"

// Meter reduces a frame to a single activity level in [0,1].
type Meter interface {
	Level(frame []byte) float64
}

// EnergyMeter measures mean normalised absolute amplitude.
type EnergyMeter struct{}

func (EnergyMeter) Level(frame []byte) float64 { return Loudness(frame) }

// Loudness returns the mean of |sample|/32768 over the 16-bit little-endian
// samples in frame. Callers never pass an empty frame.
func Loudness(frame []byte) float64 {
	n := len(frame) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := int32(int16(binary.LittleEndian.Uint16(frame[i*2:])))
		if v < 0 {
			v = -v
		}
		sum += float64(v) / 32768
	}
	return sum / float64(n)
}
