// Package audio describes the raw PCM stream format and converts between raw
// PCM, float samples and WAV containers.
package audio

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Format describes interleaved signed little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// PCM16kMono is the only format the segmentation pipeline accepts.
var PCM16kMono = Format{SampleRate: 16000, Channels: 1, BitDepth: 16}

// BytesPerSample is the size of one sample of one channel.
func (f Format) BytesPerSample() int { return f.BitDepth / 8 }

// BytesPerSecond is the byte rate of the stream.
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BytesPerSample()
}

// FrameBytes returns the byte length of a frame lasting ms milliseconds.
func (f Format) FrameBytes(ms int) int {
	return f.SampleRate * ms / 1000 * f.Channels * f.BytesPerSample()
}

// Duration returns how long n bytes of audio last. It splits whole seconds
// from the remainder so long-running streams do not overflow.
func (f Format) Duration(n int64) time.Duration {
	bps := int64(f.BytesPerSecond())
	if bps <= 0 {
		return 0
	}
	secs := n / bps
	rem := n % bps
	return time.Duration(secs)*time.Second + time.Duration(rem)*time.Second/time.Duration(bps)
}

func (f Format) String() string {
	return fmt.Sprintf("%d Hz/%d-bit/%dch", f.SampleRate, f.BitDepth, f.Channels)
}

// PCMToFloat32 converts 16-bit little-endian PCM to samples in [-1, 1].
// A trailing odd byte is ignored.
func PCMToFloat32(pcm []byte) []float32 {
	n := len(pcm) / 2
	samples := make([]float32, n)
	for i := range n {
		s := int16(binary.LittleEndian.Uint16(pcm[i*2:]))
		samples[i] = float32(s) / 32768.0
	}
	return samples
}

// Int16ToPCM serialises samples as 16-bit little-endian PCM.
func Int16ToPCM(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
