package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

func TestEncodeDecodeWAVPreservesSamples(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234, -4321}
	pcm := Int16ToPCM(samples)

	data, err := EncodeWAV(pcm, PCM16kMono)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Fatalf("missing RIFF/WAVE header: %q", data[:12])
	}
	if got := binary.LittleEndian.Uint32(data[24:28]); got != 16000 {
		t.Fatalf("header sample rate = %d, want 16000", got)
	}

	got, f, err := DecodeWAV(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f != PCM16kMono {
		t.Fatalf("format = %s, want %s", f, PCM16kMono)
	}
	if !bytes.Equal(got, pcm) {
		t.Fatalf("pcm mismatch: got %v want %v", got, pcm)
	}
}

func TestDecodeWAVStrictRejectsOtherRates(t *testing.T) {
	data, err := EncodeWAV(Int16ToPCM([]int16{1, 2, 3, 4}), Format{SampleRate: 8000, Channels: 1, BitDepth: 16})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := DecodeWAVStrict(bytes.NewReader(data), PCM16kMono); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV(bytes.NewReader([]byte("definitely not a wav file"))); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat, got %v", err)
	}
}

func TestFormatDuration(t *testing.T) {
	f := PCM16kMono
	cases := []struct {
		n    int64
		want time.Duration
	}{
		{0, 0},
		{2, 62500 * time.Nanosecond},
		{1600, 50 * time.Millisecond},
		{32000, time.Second},
		{48000, 1500 * time.Millisecond},
		{32000 * 3600 * 100, 100 * time.Hour},
	}
	for _, c := range cases {
		if got := f.Duration(c.n); got != c.want {
			t.Errorf("Duration(%d) = %s, want %s", c.n, got, c.want)
		}
	}
	if got := f.FrameBytes(20); got != 640 {
		t.Fatalf("FrameBytes(20) = %d, want 640", got)
	}
}

func TestPCMToFloat32(t *testing.T) {
	out := PCMToFloat32(append(Int16ToPCM([]int16{-32768, 0, 16384}), 0x7f))
	if len(out) != 3 {
		t.Fatalf("len = %d, want 3 (odd byte ignored)", len(out))
	}
	if out[0] != -1 || out[1] != 0 || out[2] != 0.5 {
		t.Fatalf("unexpected samples %v", out)
	}
}

func TestWriteSeekerOverwrite(t *testing.T) {
	ws := &writeSeeker{}
	_, _ = ws.Write([]byte("abcdef"))
	if _, err := ws.Seek(2, 0); err != nil {
		t.Fatalf("seek: %v", err)
	}
	_, _ = ws.Write([]byte("XY"))
	if got := string(ws.Bytes()); got != "abXYef" {
		t.Fatalf("got %q", got)
	}
	if _, err := ws.Seek(-1, 0); err == nil {
		t.Fatalf("expected error for negative seek")
	}
}
