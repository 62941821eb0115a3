package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// ErrFormat is returned for WAV input the pipeline cannot consume.
var ErrFormat = errors.New("audio: unsupported format")

const wavFormatPCM = 1

// EncodeWAV wraps raw PCM in a RIFF/WAVE container whose header matches f.
func EncodeWAV(pcm []byte, f Format) ([]byte, error) {
	if f.BitDepth != 16 {
		return nil, fmt.Errorf("%w: %d-bit", ErrFormat, f.BitDepth)
	}
	data := make([]int, len(pcm)/2)
	for i := range data {
		data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: f.BitDepth,
	}
	ws := &writeSeeker{}
	enc := wav.NewEncoder(ws, f.SampleRate, f.BitDepth, f.Channels, wavFormatPCM)
	if err := enc.Write(buf); err != nil {
		return nil, fmt.Errorf("wav encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("wav finalize: %w", err)
	}
	return ws.Bytes(), nil
}

// DecodeWAV reads a PCM WAV stream and returns its samples as raw 16-bit
// little-endian PCM together with the stream format.
func DecodeWAV(r io.ReadSeeker) ([]byte, Format, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, Format{}, fmt.Errorf("%w: not a PCM wav stream", ErrFormat)
	}
	f := Format{
		SampleRate: int(dec.SampleRate),
		Channels:   int(dec.NumChans),
		BitDepth:   int(dec.BitDepth),
	}
	if f.BitDepth != 16 {
		return nil, f, fmt.Errorf("%w: %s", ErrFormat, f)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, f, fmt.Errorf("wav decode: %w", err)
	}
	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return pcm, f, nil
}

// DecodeWAVStrict is DecodeWAV restricted to want.
func DecodeWAVStrict(r io.ReadSeeker, want Format) ([]byte, error) {
	pcm, got, err := DecodeWAV(r)
	if err != nil {
		return nil, err
	}
	if got != want {
		return nil, fmt.Errorf("%w: got %s, want %s", ErrFormat, got, want)
	}
	return pcm, nil
}

// writeSeeker is an in-memory io.WriteSeeker; the wav encoder seeks back to
// patch chunk sizes once the data length is known.
type writeSeeker struct {
	buf []byte
	pos int
}

func (w *writeSeeker) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, end, 2*end)
			copy(grown, w.buf)
			w.buf = grown
		} else {
			w.buf = w.buf[:end]
		}
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeeker) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = int64(w.pos) + offset
	case io.SeekEnd:
		next = int64(len(w.buf)) + offset
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if next < 0 {
		return 0, fmt.Errorf("seek: negative position %d", next)
	}
	w.pos = int(next)
	return next, nil
}

func (w *writeSeeker) Bytes() []byte { return w.buf }
