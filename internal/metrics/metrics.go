// Package metrics holds the OpenTelemetry instruments recorded by the capture
// and dispatch pipeline. Instruments are created from a caller-supplied
// MeterProvider; NewPrometheus builds one backed by a private Prometheus
// registry so /metrics can be scraped without touching global state.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

const meterName = "earshot"

// latencyBuckets are histogram boundaries in seconds sized for whisper runs.
var latencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32}

// Pipeline is safe for concurrent use; the OTel instruments synchronise
// internally.
type Pipeline struct {
	frames            metric.Int64Counter
	emptyFrames       metric.Int64Counter
	droppedFrames     metric.Int64Counter
	preRollResets     metric.Int64Counter
	utterances        metric.Int64Counter
	droppedUtterances metric.Int64Counter
	failures          metric.Int64Counter
	segments          metric.Int64Counter
	hooksSent         metric.Int64Counter
	hooksSkipped      metric.Int64Counter
	hooksDropped      metric.Int64Counter
	hooksFailed       metric.Int64Counter
	transcribeSeconds metric.Float64Histogram
}

// New creates all instruments on mp.
func New(mp metric.MeterProvider) (*Pipeline, error) {
	m := mp.Meter(meterName)
	p := &Pipeline{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&p.frames, "earshot.frames", "Audio frames delivered by the capture source."},
		{&p.emptyFrames, "earshot.frames.empty", "Capture ticks that delivered no audio."},
		{&p.droppedFrames, "earshot.frames.dropped", "Frames discarded while an utterance was being transcribed."},
		{&p.preRollResets, "earshot.preroll.resets", "Times the pre-roll buffer overflowed and was emptied."},
		{&p.utterances, "earshot.utterances", "Utterances handed to the transcription dispatcher."},
		{&p.droppedUtterances, "earshot.utterances.dropped", "Utterances rejected because the dispatch queue was full."},
		{&p.failures, "earshot.transcription.failures", "Transcription engine failures."},
		{&p.segments, "earshot.transcription.segments", "Transcript segments emitted."},
		{&p.hooksSent, "earshot.hooks.sent", "Hook commands that completed."},
		{&p.hooksSkipped, "earshot.hooks.skipped", "Transcripts not sent because of cooldown or length."},
		{&p.hooksDropped, "earshot.hooks.dropped", "Hook jobs dropped because the hook queue was full."},
		{&p.hooksFailed, "earshot.hooks.failed", "Hook commands that exited with an error."},
	}
	var err error
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}
	if p.transcribeSeconds, err = m.Float64Histogram("earshot.transcription.duration",
		metric.WithDescription("Wall time spent transcribing one utterance."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	return p, nil
}

// Noop returns instruments that record nothing.
func Noop() *Pipeline {
	p, _ := New(noop.NewMeterProvider())
	return p
}

// NewPrometheus returns instruments exported through a private Prometheus
// registry, the handler serving that registry, and a shutdown func.
func NewPrometheus() (*Pipeline, http.Handler, func(context.Context) error, error) {
	reg := prometheus.NewRegistry()
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exp))
	p, err := New(mp)
	if err != nil {
		_ = mp.Shutdown(context.Background())
		return nil, nil, nil, err
	}
	return p, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), mp.Shutdown, nil
}

func (p *Pipeline) Frame()            { p.frames.Add(context.Background(), 1) }
func (p *Pipeline) EmptyFrame()       { p.emptyFrames.Add(context.Background(), 1) }
func (p *Pipeline) DroppedFrame()     { p.droppedFrames.Add(context.Background(), 1) }
func (p *Pipeline) PreRollReset()     { p.preRollResets.Add(context.Background(), 1) }
func (p *Pipeline) Utterance()        { p.utterances.Add(context.Background(), 1) }
func (p *Pipeline) DroppedUtterance() { p.droppedUtterances.Add(context.Background(), 1) }
func (p *Pipeline) Failure()          { p.failures.Add(context.Background(), 1) }
func (p *Pipeline) Segment()          { p.segments.Add(context.Background(), 1) }
func (p *Pipeline) HookSent()         { p.hooksSent.Add(context.Background(), 1) }
func (p *Pipeline) HookSkipped()      { p.hooksSkipped.Add(context.Background(), 1) }
func (p *Pipeline) HookDropped()      { p.hooksDropped.Add(context.Background(), 1) }
func (p *Pipeline) HookFailed()       { p.hooksFailed.Add(context.Background(), 1) }

// Transcribed records the duration of one engine call in seconds.
func (p *Pipeline) Transcribed(seconds float64) {
	p.transcribeSeconds.Record(context.Background(), seconds)
}
