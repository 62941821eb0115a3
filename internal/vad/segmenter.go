package vad

import (
	"sync"
	"sync/atomic"
	"time"

	"earshot/internal/audio"
	"earshot/internal/metrics"

	"github.com/sirupsen/logrus"
)

// State is the segmenter's position in the capture cycle.
type State int32

const (
	Idle State = iota
	Recording
	Dispatching
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Dispatching:
		return "dispatching"
	default:
		return "unknown"
	}
}

// Utterance is one completed span of speech. PCM begins with PreRoll bytes
// of audio captured before the onset frame.
type Utterance struct {
	Seq     uint64
	PCM     []byte
	PreRoll int
	Onset   time.Time
	End     time.Time
}

// Submitter takes ownership of a completed utterance. It must not block. The
// returned channel is closed once the utterance has been fully processed,
// whether or not transcription succeeded.
type Submitter interface {
	Submit(u Utterance) (<-chan struct{}, error)
}

// Options tune the segmenter. Zero values are replaced by DefaultOptions.
type Options struct {
	// Threshold is the level a frame must exceed to count as speech.
	Threshold float64
	// Hangover is how long silence must outlast the last loud frame before
	// the utterance is closed.
	Hangover time.Duration
	// MaxUtterance forces a hand-off after this long; zero disables it.
	MaxUtterance time.Duration
	// PreRollBytes bounds the pre-roll buffer.
	PreRollBytes   int
	SlidingPreRoll bool
	// SingleInFlight keeps the segmenter in Dispatching, discarding frames,
	// until the submitted utterance has been processed.
	SingleInFlight bool
	Format         audio.Format
	Clock          Clock
}

// DefaultOptions mirrors the documented defaults: 0.01 threshold, one second
// hangover, 0.5 s of 16 kHz mono pre-roll.
func DefaultOptions() Options {
	return Options{
		Threshold:    0.01,
		Hangover:     time.Second,
		PreRollBytes: 16000,
		Format:       audio.PCM16kMono,
		Clock:        WallClock{},
	}
}

// Segmenter is the voice activity state machine. OnFrame and Flush must be
// called from a single goroutine (the capture loop); State and Stats may be
// read from anywhere.
type Segmenter struct {
	opts    Options
	meter   Meter
	sub     Submitter
	logger  *logrus.Logger
	metrics *metrics.Pipeline

	state   atomic.Int32
	preroll *PreRoll

	buf         []byte
	prerollLen  int
	onset       time.Time
	lastLoudAt  time.Time
	lastQuietAt time.Time
	lastAt      time.Time
	seq         uint64

	mu       sync.Mutex
	inflight <-chan struct{}

	frames        atomic.Int64
	droppedFrames atomic.Int64
	dispatched    atomic.Int64
	rejected      atomic.Int64
}

// Option configures optional collaborators.
type Option func(*Segmenter)

// WithMetrics records segmentation counters on m.
func WithMetrics(m *metrics.Pipeline) Option {
	return func(s *Segmenter) { s.metrics = m }
}

// NewSegmenter builds an idle segmenter feeding sub.
func NewSegmenter(opts Options, meter Meter, sub Submitter, logger *logrus.Logger, extra ...Option) *Segmenter {
	def := DefaultOptions()
	if opts.Threshold <= 0 {
		opts.Threshold = def.Threshold
	}
	if opts.Hangover <= 0 {
		opts.Hangover = def.Hangover
	}
	if opts.PreRollBytes <= 0 {
		opts.PreRollBytes = def.PreRollBytes
	}
	if opts.Format == (audio.Format{}) {
		opts.Format = def.Format
	}
	if opts.Clock == nil {
		opts.Clock = def.Clock
	}
	if meter == nil {
		meter = EnergyMeter{}
	}
	s := &Segmenter{
		opts:    opts,
		meter:   meter,
		sub:     sub,
		logger:  logger,
		metrics: metrics.Noop(),
		preroll: NewPreRoll(opts.PreRollBytes, opts.SlidingPreRoll),
	}
	for _, o := range extra {
		o(s)
	}
	return s
}

// State returns the current state. An utterance whose transcription has
// completed reads as Idle even before the next frame arrives.
func (s *Segmenter) State() State {
	st := State(s.state.Load())
	if st == Dispatching && s.inflightDone() {
		return Idle
	}
	return st
}

func (s *Segmenter) rawState() State { return State(s.state.Load()) }

func (s *Segmenter) setInflight(done <-chan struct{}) {
	s.mu.Lock()
	s.inflight = done
	s.mu.Unlock()
}

func (s *Segmenter) inflightDone() bool {
	s.mu.Lock()
	done := s.inflight
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return true
	default:
		return false
	}
}

func (s *Segmenter) setState(st State) { s.state.Store(int32(st)) }

// PreRollLen reports the bytes currently held in the pre-roll.
func (s *Segmenter) PreRollLen() int { return s.preroll.Len() }

// PreRollResets reports how often the pre-roll has overflowed.
func (s *Segmenter) PreRollResets() int { return s.preroll.Resets() }

// Stats is a snapshot of the segmenter counters.
type Stats struct {
	State         string `json:"state"`
	Frames        int64  `json:"frames"`
	DroppedFrames int64  `json:"dropped_frames"`
	Dispatched    int64  `json:"dispatched"`
	Rejected      int64  `json:"rejected"`
}

func (s *Segmenter) Stats() Stats {
	return Stats{
		State:         s.State().String(),
		Frames:        s.frames.Load(),
		DroppedFrames: s.droppedFrames.Load(),
		Dispatched:    s.dispatched.Load(),
		Rejected:      s.rejected.Load(),
	}
}

// OnFrame advances the state machine by one captured frame. It does no I/O
// beyond logging and never blocks.
func (s *Segmenter) OnFrame(frame []byte) {
	if len(frame) == 0 {
		s.metrics.EmptyFrame()
		s.logger.Warn("no audio captured")
		return
	}
	s.frames.Add(1)
	s.metrics.Frame()
	now := s.opts.Clock.Stamp(frame)
	s.lastAt = now

	if s.rawState() == Dispatching {
		if s.inflightDone() {
			s.setInflight(nil)
			s.setState(Idle)
			s.logger.Info("listening")
		} else {
			s.droppedFrames.Add(1)
			s.metrics.DroppedFrame()
			s.logger.Debug("processing previous utterance, frame not buffered")
			return
		}
	}

	loud := s.meter.Level(frame) > s.opts.Threshold
	if loud {
		s.lastLoudAt = now
	} else {
		s.lastQuietAt = now
	}

	switch s.rawState() {
	case Idle:
		if !loud {
			if s.preroll.Append(frame) {
				s.metrics.PreRollReset()
			}
			return
		}
		s.begin(frame, now)
	case Recording:
		s.buf = append(s.buf, frame...)
		s.logger.Debug("recording")
		if s.lastQuietAt.Sub(s.lastLoudAt) > s.opts.Hangover {
			s.handOff(now)
			return
		}
		if s.opts.MaxUtterance > 0 && now.Sub(s.onset) >= s.opts.MaxUtterance {
			s.logger.WithField("max", s.opts.MaxUtterance).Info("utterance reached maximum length")
			s.handOff(now)
		}
	}
}

// Flush hands off an utterance still being recorded. It is meant for the end
// of a finite source.
func (s *Segmenter) Flush() {
	if s.rawState() != Recording {
		return
	}
	s.handOff(s.lastAt)
}

func (s *Segmenter) begin(frame []byte, now time.Time) {
	s.buf = s.preroll.Drain()
	s.prerollLen = len(s.buf)
	s.buf = append(s.buf, frame...)
	s.onset = now
	s.setState(Recording)
	s.logger.WithField("preroll_bytes", s.prerollLen).Info("recording")
}

func (s *Segmenter) handOff(now time.Time) {
	s.seq++
	u := Utterance{
		Seq:     s.seq,
		PCM:     s.buf,
		PreRoll: s.prerollLen,
		Onset:   s.onset,
		End:     now,
	}
	s.buf = nil
	s.prerollLen = 0
	s.preroll.Clear()
	s.setState(Dispatching)

	log := s.logger.WithFields(logrus.Fields{
		"utterance": u.Seq,
		"bytes":     len(u.PCM),
		"audio":     s.opts.Format.Duration(int64(len(u.PCM))).String(),
	})
	done, err := s.sub.Submit(u)
	if err != nil {
		s.rejected.Add(1)
		s.metrics.DroppedUtterance()
		log.WithError(err).Warn("utterance dropped")
		s.setState(Idle)
		s.logger.Info("listening")
		return
	}
	s.dispatched.Add(1)
	s.metrics.Utterance()
	log.Info("processing utterance")
	if s.opts.SingleInFlight && done != nil {
		s.setInflight(done)
		return
	}
	s.setState(Idle)
	s.logger.Info("listening")
}
