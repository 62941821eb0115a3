// Package dispatch runs transcription off the capture path. Utterances are
// handed over through a bounded channel and transcribed one at a time by a
// single worker.
package dispatch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"earshot/internal/asr"
	"earshot/internal/audio"
	"earshot/internal/metrics"
	"earshot/internal/sink"
	"earshot/internal/vad"

	"github.com/sirupsen/logrus"
)

var (
	// ErrQueueFull is returned by Submit when the pending queue is at capacity.
	ErrQueueFull = errors.New("dispatch: queue full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("dispatch: closed")
)

const defaultQueueSize = 4

type job struct {
	u    vad.Utterance
	done chan struct{}
}

// Dispatcher implements vad.Submitter.
type Dispatcher struct {
	engine  asr.Engine
	sink    sink.Sink
	logger  *logrus.Logger
	metrics *metrics.Pipeline
	format  audio.Format

	mu     sync.RWMutex
	closed bool
	jobs   chan job

	completed atomic.Int64
	failed    atomic.Int64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithQueueSize bounds the number of utterances waiting for the worker.
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.jobs = make(chan job, n)
		}
	}
}

// WithFormat sets the PCM layout used for the WAV container.
func WithFormat(f audio.Format) Option {
	return func(d *Dispatcher) { d.format = f }
}

// WithMetrics records transcription counters on m.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// New returns a Dispatcher; call Run to start its worker.
func New(engine asr.Engine, out sink.Sink, logger *logrus.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		engine:  engine,
		sink:    out,
		logger:  logger,
		metrics: metrics.Noop(),
		format:  audio.PCM16kMono,
		jobs:    make(chan job, defaultQueueSize),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Submit queues u without blocking. The returned channel is closed when u
// has been processed, successfully or not.
func (d *Dispatcher) Submit(u vad.Utterance) (<-chan struct{}, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, ErrClosed
	}
	j := job{u: u, done: make(chan struct{})}
	select {
	case d.jobs <- j:
		return j.done, nil
	default:
		return nil, ErrQueueFull
	}
}

// Close stops accepting utterances. Run returns once the queue is drained.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.jobs)
}

// Pending reports utterances waiting for the worker.
func (d *Dispatcher) Pending() int { return len(d.jobs) }

// Completed and Failed count processed utterances.
func (d *Dispatcher) Completed() int64 { return d.completed.Load() }
func (d *Dispatcher) Failed() int64    { return d.failed.Load() }

// Run processes utterances until Close has been called and the queue is
// empty, or ctx is done. A transcription already running when ctx is
// cancelled is allowed to finish; utterances still queued are dropped and
// their completion channels closed, and Submit returns ErrClosed from then on.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			d.abandon()
			return err
		}
		select {
		case <-ctx.Done():
			d.abandon()
			return ctx.Err()
		case j, ok := <-d.jobs:
			if !ok {
				return nil
			}
			d.process(context.WithoutCancel(ctx), j)
		}
	}
}

func (d *Dispatcher) abandon() {
	d.Close()
	var dropped int
	for j := range d.jobs {
		close(j.done)
		d.metrics.DroppedUtterance()
		dropped++
	}
	if dropped > 0 {
		d.logger.WithField("dropped", dropped).Warn("shutting down, queued utterances dropped")
	}
}

func (d *Dispatcher) process(ctx context.Context, j job) {
	defer close(j.done)
	log := d.logger.WithField("utterance", j.u.Seq)
	start := time.Now()

	text, err := d.transcribe(ctx, j.u)
	d.metrics.Transcribed(time.Since(start).Seconds())
	if err != nil {
		d.failed.Add(1)
		d.metrics.Failure()
		log.WithError(err).Error("transcription failed")
		return
	}
	d.completed.Add(1)
	if text == "" {
		log.Debug("no speech recognized")
		return
	}
	d.sink.Utterance(sink.Transcript{
		Utterance: j.u.Seq,
		Text:      text,
		Audio:     d.format.Duration(int64(len(j.u.PCM))),
		At:        time.Now(),
	})
	log.WithField("took", time.Since(start).Round(time.Millisecond).String()).Info("utterance transcribed")
}

// transcribe streams segments to the sink as they arrive and returns the
// joined text. Segments emitted before a failure are kept.
func (d *Dispatcher) transcribe(ctx context.Context, u vad.Utterance) (text string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("engine panic: %v", r)
		}
	}()
	wav, err := audio.EncodeWAV(u.PCM, d.format)
	if err != nil {
		return "", fmt.Errorf("encode wav: %w", err)
	}
	stream, err := d.engine.Transcribe(ctx, bytes.NewReader(wav))
	if err != nil {
		return "", err
	}
	defer func() { _ = stream.Close() }()

	var parts []string
	for {
		seg, err := stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return strings.Join(parts, " "), err
		}
		d.metrics.Segment()
		d.sink.Segment(sink.Result{Utterance: u.Seq, Start: seg.Start, End: seg.End, Text: seg.Text})
		if t := strings.TrimSpace(seg.Text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, " "), nil
}
