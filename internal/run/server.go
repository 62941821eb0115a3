package run

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"earshot/internal/asr"
	"earshot/internal/capture"
	"earshot/internal/config"
	"earshot/internal/control"
	"earshot/internal/hook"
	"earshot/internal/metrics"
	"earshot/internal/sink"

	"github.com/sirupsen/logrus"
)

// Options supply the collaborators Serve cannot build from config alone.
type Options struct {
	Engine     asr.Engine
	Source     capture.Source
	SourceName string
	// Stdout receives console transcript lines.
	Stdout io.Writer
}

// Server manages the capture pipeline, hook dispatch, metrics, and control
// endpoints.
type Server struct {
	cfg       *config.Config
	logger    *logrus.Logger
	hook      *hook.Runner
	startedAt time.Time
	lastHeard atomic.Int64
	source    string

	transcripts *sink.Log
	pipeline    *Pipeline

	metrics *metrics.Pipeline
	hookCh  chan hook.Job

	wg sync.WaitGroup
}

// Serve runs the pipeline until interrupted or the source ends.
func Serve(cfg *config.Config, logger *logrus.Logger, opts Options) error {
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	// Write pid file.
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	// Ensure socket removed
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	m := metrics.Noop()
	var metricsSrv *metricsServer
	if cfg.Metrics.Enabled {
		pm, handler, shutdown, err := metrics.NewPrometheus()
		if err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
		defer func() { _ = shutdown(context.Background()) }()
		m = pm
		metricsSrv = newMetricsServer(cfg.Metrics.Addr, handler)
	}

	srv, err := newServer(cfg, logger, m, opts)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Control socket
	go srv.controlLoop(ctx)

	// Hook worker
	srv.wg.Add(1)
	go srv.hookWorker()

	// Metrics server
	if metricsSrv != nil {
		go metricsSrv.serve(ctx, logger)
	}

	// Handle signals
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case s := <-sigCh:
			// A second signal gets the default action and ends the process.
			signal.Stop(sigCh)
			logger.Infof("received signal %s, finishing current transcription (signal again to force)", s)
			cancel()
		case <-ctx.Done():
		}
	}()

	runErr := srv.pipeline.Run(ctx)
	if runErr != nil {
		logger.Errorf("capture: %v", runErr)
	}
	// No more transcripts can arrive once the pipeline has returned.
	close(srv.hookCh)
	srv.wg.Wait()
	cancel()
	return runErr
}

func newServer(cfg *config.Config, logger *logrus.Logger, m *metrics.Pipeline, opts Options) (*Server, error) {
	transcriptPath := ""
	if cfg.Transcripts.Enabled {
		transcriptPath = cfg.Paths.TranscriptPath
	}
	srv := &Server{
		cfg:         cfg,
		logger:      logger,
		hook:        hook.NewRunner(cfg, logger),
		startedAt:   time.Now(),
		source:      opts.SourceName,
		transcripts: sink.NewLog(transcriptPath, cfg.UI.StatusTail, logger),
		metrics:     m,
		hookCh:      make(chan hook.Job, max(1, cfg.Hook.QueueSize)),
	}
	sinks := sink.Fanout{srv.transcripts, srv}
	if cfg.Output.Console && opts.Stdout != nil {
		sinks = append(sinks, sink.NewConsole(opts.Stdout))
	}
	p, err := NewPipeline(cfg, opts.Engine, opts.Source, sinks, m, logger)
	if err != nil {
		return nil, err
	}
	srv.pipeline = p
	return srv, nil
}

// Segment is a no-op; hooks fire per utterance.
func (s *Server) Segment(sink.Result) {}

// Utterance queues the transcript for the hook worker.
func (s *Server) Utterance(t sink.Transcript) {
	s.lastHeard.Store(time.Now().UnixNano())
	s.logger.Infof("heard: %q", t.Text)
	if !s.cfg.Hook.Enabled {
		return
	}
	now := time.Now()
	if d := s.hook.Accept(now, t.Text); d != hook.Send {
		s.logger.Debugf("hook skipped (%s)", d)
		s.metrics.HookSkipped()
		return
	}
	job := hook.Job{
		Utterance: t.Utterance,
		Text:      t.Text,
		Timestamp: t.At,
	}
	select {
	case s.hookCh <- job:
	default:
		s.hook.Release(now)
		s.metrics.HookDropped()
		s.logger.Warn("hook queue full, dropping job")
	}
}

func (s *Server) status() control.Status {
	st := control.Status{
		Running:     true,
		UptimeSec:   time.Since(s.startedAt).Seconds(),
		Source:      s.source,
		Policy:      s.cfg.Dispatch.Policy,
		Segmenter:   s.pipeline.Segmenter.Stats(),
		Pending:     s.pipeline.Dispatcher.Pending(),
		Completed:   s.pipeline.Dispatcher.Completed(),
		Failed:      s.pipeline.Dispatcher.Failed(),
		Transcripts: s.copyTranscripts(),
	}
	if ns := s.lastHeard.Load(); ns != 0 {
		t := time.Unix(0, ns)
		st.LastHeard = &t
	}
	return st
}

func (s *Server) controlLoop(ctx context.Context) {
	ln, err := net.Listen("unix", s.cfg.Paths.SocketPath)
	if err != nil {
		s.logger.Errorf("control listen: %v", err)
		return
	}
	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Errorf("control accept: %v", err)
			continue
		}
		go s.handleConn(ctx, conn)
	}
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() {
		if err := conn.Close(); err != nil && ctx.Err() == nil {
			s.logger.Warnf("control connection close: %v", err)
		}
	}()
	sc := bufio.NewScanner(conn)
	if !sc.Scan() {
		return
	}
	var req control.Request
	if err := json.Unmarshal(sc.Bytes(), &req); err != nil {
		return
	}
	switch req.Op {
	case "status":
		_ = json.NewEncoder(conn).Encode(s.status())
	case "health":
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: true, Message: "ok"})
	default:
		_ = json.NewEncoder(conn).Encode(control.SimpleResponse{OK: false, Message: fmt.Sprintf("unknown op %q", req.Op)})
	}
}

func (s *Server) copyTranscripts() []control.Transcript {
	tail := s.transcripts.Tail()
	out := make([]control.Transcript, len(tail))
	for i, t := range tail {
		out[i] = control.Transcript{Text: t.Text, Timestamp: t.At}
	}
	return out
}
