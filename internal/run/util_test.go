package run

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"

	"earshot/internal/asr"
	"earshot/internal/audio"
	"earshot/internal/config"
)

// echoEngine reports each utterance as one segment spanning its audio.
type echoEngine struct {
	calls atomic.Int64
	fail  func(n int64) error
}

func (e *echoEngine) Transcribe(_ context.Context, wav io.ReadSeeker) (asr.Stream, error) {
	pcm, err := audio.DecodeWAVStrict(wav, audio.PCM16kMono)
	if err != nil {
		return nil, err
	}
	n := e.calls.Add(1)
	if e.fail != nil {
		if err := e.fail(n); err != nil {
			return nil, err
		}
	}
	return &asr.SliceStream{Segments: []asr.Segment{{
		Start: 0,
		End:   audio.PCM16kMono.Duration(int64(len(pcm))),
		Text:  fmt.Sprintf("utterance %d", n),
	}}}, nil
}

func (e *echoEngine) Close() error { return nil }

// speech builds ms milliseconds of constant-amplitude audio.
func speech(ms int, v int16) []byte {
	samples := make([]int16, 16*ms)
	for i := range samples {
		samples[i] = v
	}
	return audio.Int16ToPCM(samples)
}

// twoUtterances is 0.2 s silence, 0.5 s speech, 1.5 s silence, 0.4 s speech,
// 1.5 s silence.
func twoUtterances() []byte {
	var pcm []byte
	pcm = append(pcm, speech(200, 0)...)
	pcm = append(pcm, speech(500, 12000)...)
	pcm = append(pcm, speech(1500, 0)...)
	pcm = append(pcm, speech(400, 12000)...)
	pcm = append(pcm, speech(1500, 0)...)
	return pcm
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	dir := t.TempDir()
	cfg.Paths.StateDir = dir
	cfg.Paths.LogPath = filepath.Join(dir, "earshot.log")
	cfg.Paths.TranscriptPath = filepath.Join(dir, "transcripts.log")
	cfg.Paths.SocketPath = filepath.Join(dir, "e.sock")
	cfg.Paths.PidPath = filepath.Join(dir, "earshot.pid")
	cfg.VAD.Clock = config.ClockAudio
	return cfg
}
