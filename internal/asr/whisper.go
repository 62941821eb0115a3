//go:build whisper

package asr

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"earshot/internal/audio"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/sirupsen/logrus"
)

// whisperEngine loads the model once; each Transcribe call gets a fresh
// context since contexts are not safe for reuse across goroutines.
type whisperEngine struct {
	model    whisper.Model
	language string
	threads  int
	logger   *logrus.Logger
}

func newWhisperEngine(opts Options, logger *logrus.Logger) (Engine, error) {
	path, err := ResolveModel(opts.ModelPath)
	if err != nil {
		return nil, err
	}
	model, err := whisper.New(path)
	if err != nil {
		return nil, fmt.Errorf("load model %q: %w", path, err)
	}
	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	lang := strings.TrimSpace(opts.Language)
	if lang == "" {
		lang = "auto"
	}
	logger.WithField("model", path).Info("whisper model loaded")
	return &whisperEngine{model: model, language: lang, threads: threads, logger: logger}, nil
}

func (e *whisperEngine) Close() error {
	return e.model.Close()
}

func (e *whisperEngine) Transcribe(ctx context.Context, wav io.ReadSeeker) (Stream, error) {
	pcm, err := audio.DecodeWAVStrict(wav, audio.PCM16kMono)
	if err != nil {
		return nil, err
	}
	samples := audio.PCMToFloat32(pcm)

	wctx, err := e.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(e.language); err != nil {
		e.logger.WithError(err).WithField("language", e.language).Warn("whisper: failed to set language, using default")
	}
	wctx.SetThreads(uint(e.threads))

	s := &whisperStream{
		ctx:  ctx,
		segs: make(chan Segment, 16),
		quit: make(chan struct{}),
	}
	go func() {
		defer close(s.segs)
		err := wctx.Process(samples, nil, func(seg whisper.Segment) {
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				return
			}
			select {
			case s.segs <- Segment{Start: seg.Start, End: seg.End, Text: text}:
			case <-s.quit:
			}
		}, nil)
		if err != nil {
			s.setErr(fmt.Errorf("whisper: process audio: %w", err))
		}
	}()
	return s, nil
}

type whisperStream struct {
	ctx  context.Context
	segs chan Segment
	quit chan struct{}
	once sync.Once

	mu  sync.Mutex
	err error
}

func (s *whisperStream) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *whisperStream) Next() (Segment, error) {
	select {
	case seg, ok := <-s.segs:
		if ok {
			return seg, nil
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.err != nil {
			return Segment{}, s.err
		}
		return Segment{}, io.EOF
	case <-s.ctx.Done():
		return Segment{}, s.ctx.Err()
	}
}

// Close stops delivery; an in-flight Process call still runs to completion.
func (s *whisperStream) Close() error {
	s.once.Do(func() { close(s.quit) })
	return nil
}
