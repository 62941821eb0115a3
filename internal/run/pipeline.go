package run

import (
	"context"
	"errors"
	"time"

	"earshot/internal/asr"
	"earshot/internal/audio"
	"earshot/internal/capture"
	"earshot/internal/config"
	"earshot/internal/dispatch"
	"earshot/internal/metrics"
	"earshot/internal/sink"
	"earshot/internal/vad"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Pipeline wires a capture source through the segmenter into the
// transcription dispatcher.
type Pipeline struct {
	Segmenter  *vad.Segmenter
	Dispatcher *dispatch.Dispatcher

	source capture.Source
	logger *logrus.Logger
}

// NewPipeline builds the segmenter and dispatcher described by cfg.
func NewPipeline(cfg *config.Config, engine asr.Engine, src capture.Source, out sink.Sink, m *metrics.Pipeline, logger *logrus.Logger) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.Noop()
	}
	meter, err := newMeter(cfg)
	if err != nil {
		return nil, err
	}
	queue := cfg.Dispatch.QueueSize
	if cfg.Dispatch.Policy == config.PolicySingle {
		queue = 1
	}
	d := dispatch.New(engine, out, logger,
		dispatch.WithQueueSize(queue),
		dispatch.WithFormat(audio.PCM16kMono),
		dispatch.WithMetrics(m),
	)
	seg := vad.NewSegmenter(segmenterOptions(cfg), meter, d, logger, vad.WithMetrics(m))
	return &Pipeline{Segmenter: seg, Dispatcher: d, source: src, logger: logger}, nil
}

func segmenterOptions(cfg *config.Config) vad.Options {
	opts := vad.Options{
		Threshold:      cfg.VAD.Threshold,
		Hangover:       time.Duration(cfg.VAD.SilenceMS) * time.Millisecond,
		MaxUtterance:   time.Duration(cfg.VAD.MaxUtteranceMS) * time.Millisecond,
		PreRollBytes:   cfg.VAD.PreRollBytes,
		SlidingPreRoll: cfg.VAD.PreRollMode == config.PreRollSliding,
		SingleInFlight: cfg.Dispatch.Policy == config.PolicySingle,
		Format:         audio.PCM16kMono,
		Clock:          vad.WallClock{},
	}
	if cfg.VAD.Clock == config.ClockAudio {
		opts.Clock = vad.NewAudioClock(time.Now(), audio.PCM16kMono)
	}
	return opts
}

func newMeter(cfg *config.Config) (vad.Meter, error) {
	if cfg.VAD.Meter == config.MeterWebRTC {
		return vad.NewWebRTCMeter(audio.PCM16kMono, cfg.Audio.FrameMS, cfg.VAD.Aggressiveness)
	}
	return vad.EnergyMeter{}, nil
}

// Run captures until ctx is done or the source ends. At the end of the source
// any utterance still being recorded is handed off and the queue is drained;
// on cancellation only the transcription already running is finished.
func (p *Pipeline) Run(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error {
		if err := p.Dispatcher.Run(ctx); !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		defer p.Dispatcher.Close()
		p.logger.Info("listening")
		err := p.source.Run(ctx, p.Segmenter.OnFrame)
		p.Segmenter.Flush()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	return g.Wait()
}
