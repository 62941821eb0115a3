package run

import (
	"context"
	"errors"
	"sync"
	"testing"

	"earshot/internal/audio"
	"earshot/internal/capture"
	"earshot/internal/config"
	"earshot/internal/logging"
	"earshot/internal/sink"
	"earshot/internal/vad"
)

type collected struct {
	mu   sync.Mutex
	segs []sink.Result
}

func (c *collected) Segment(r sink.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.segs = append(c.segs, r)
}

func (c *collected) Utterance(sink.Transcript) {}

func TestPipelineTranscribesEachUtterance(t *testing.T) {
	cfg := testConfig(t)
	eng := &echoEngine{}
	out := &collected{}
	src := capture.NewWAV(twoUtterances(), audio.PCM16kMono, 20, false)

	p, err := NewPipeline(cfg, eng, src, out, nil, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := eng.calls.Load(); got != 2 {
		t.Fatalf("engine calls = %d, want 2", got)
	}
	if len(out.segs) != 2 || out.segs[1].Text != "utterance 2" {
		t.Fatalf("segments = %+v", out.segs)
	}
	if p.Segmenter.State() == vad.Recording {
		t.Fatalf("segmenter still recording after end of input")
	}
}

func TestPipelineFlushesTrailingSpeech(t *testing.T) {
	cfg := testConfig(t)
	eng := &echoEngine{}
	out := &collected{}
	pcm := append(speech(100, 0), speech(300, 12000)...)
	src := capture.NewWAV(pcm, audio.PCM16kMono, 20, false)

	p, err := NewPipeline(cfg, eng, src, out, nil, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(out.segs) != 1 {
		t.Fatalf("trailing speech not transcribed: %+v", out.segs)
	}
	// pre-roll (100 ms) + speech (300 ms)
	if out.segs[0].End.Milliseconds() != 400 {
		t.Fatalf("utterance spans %s", out.segs[0].End)
	}
}

func TestPipelineSurvivesEngineFailure(t *testing.T) {
	cfg := testConfig(t)
	eng := &echoEngine{fail: func(n int64) error {
		if n == 1 {
			return errors.New("boom")
		}
		return nil
	}}
	out := &collected{}
	src := capture.NewWAV(twoUtterances(), audio.PCM16kMono, 20, false)
	p, err := NewPipeline(cfg, eng, src, out, nil, logging.NewTestLogger())
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	if err := p.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if p.Dispatcher.Failed() != 1 || p.Dispatcher.Completed() != 1 {
		t.Fatalf("failed=%d completed=%d", p.Dispatcher.Failed(), p.Dispatcher.Completed())
	}
	if len(out.segs) != 1 || out.segs[0].Text != "utterance 2" {
		t.Fatalf("segments = %+v", out.segs)
	}
}

func TestNewPipelineRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Dispatch.Policy = "lifo"
	if _, err := NewPipeline(cfg, &echoEngine{}, capture.NewWAV(nil, audio.PCM16kMono, 20, false), &collected{}, nil, logging.NewTestLogger()); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestSegmenterOptionsFromConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.VAD.PreRollMode = config.PreRollSliding
	cfg.VAD.SilenceMS = 700
	cfg.Dispatch.Policy = config.PolicySingle
	opts := segmenterOptions(cfg)
	if !opts.SlidingPreRoll || !opts.SingleInFlight || opts.Hangover.Milliseconds() != 700 {
		t.Fatalf("options = %+v", opts)
	}
	if _, ok := opts.Clock.(*vad.AudioClock); !ok {
		t.Fatalf("expected audio clock, got %T", opts.Clock)
	}
}
