package run

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net"
	"os"
	"strings"
	"syscall"
	"testing"
	"time"

	"earshot/internal/audio"
	"earshot/internal/capture"
	"earshot/internal/control"
	"earshot/internal/hook"
	"earshot/internal/logging"
	"earshot/internal/metrics"
	"earshot/internal/sink"
)

func TestServeReplaysFileAndCleansUp(t *testing.T) {
	cfg := testConfig(t)
	var stdout bytes.Buffer
	err := Serve(cfg, logging.NewTestLogger(), Options{
		Engine:     &echoEngine{},
		Source:     capture.NewWAV(twoUtterances(), audio.PCM16kMono, 20, false),
		SourceName: "test",
		Stdout:     &stdout,
	})
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "00:00:00.000->") || !strings.HasSuffix(lines[1], ": utterance 2") {
		t.Fatalf("console output = %q", stdout.String())
	}
	data, err := os.ReadFile(cfg.Paths.TranscriptPath)
	if err != nil {
		t.Fatalf("transcripts: %v", err)
	}
	if strings.Count(string(data), "\n") != 2 {
		t.Fatalf("transcript log = %q", data)
	}
	if _, err := os.Stat(cfg.Paths.PidPath); !os.IsNotExist(err) {
		t.Fatalf("pid file not removed")
	}
}

func TestServeRunsHook(t *testing.T) {
	cfg := testConfig(t)
	out := cfg.Paths.StateDir + "/hook.out"
	cfg.Hook.Enabled = true
	cfg.Hook.Command = "/bin/sh"
	cfg.Hook.Args = []string{"-c", `echo "$EARSHOT_TEXT" >> "$OUT"`}
	cfg.Hook.Env = map[string]string{"OUT": out}
	cfg.Hook.CooldownSec = 0
	err := Serve(cfg, logging.NewTestLogger(), Options{
		Engine: &echoEngine{},
		Source: capture.NewWAV(twoUtterances(), audio.PCM16kMono, 20, false),
	})
	if err != nil {
		t.Fatalf("serve: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("hook output: %v", err)
	}
	if string(data) != "utterance 1\nutterance 2\n" {
		t.Fatalf("hook saw %q", data)
	}
}

func TestUtteranceGatesHook(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hook.Enabled = true
	cfg.Hook.MinChars = 5
	cfg.Hook.CooldownSec = 0
	cfg.Hook.QueueSize = 1
	srv, err := newServer(cfg, logging.NewTestLogger(), metrics.Noop(), Options{
		Engine: &echoEngine{},
		Source: capture.NewWAV(nil, audio.PCM16kMono, 20, false),
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv.Utterance(sink.Transcript{Text: "hi"})
	if len(srv.hookCh) != 0 {
		t.Fatalf("short transcript queued")
	}
	srv.Utterance(sink.Transcript{Utterance: 1, Text: "hello world"})
	srv.Utterance(sink.Transcript{Utterance: 2, Text: "hello again"})
	if len(srv.hookCh) != 1 {
		t.Fatalf("queue len = %d, want 1 (second dropped)", len(srv.hookCh))
	}
	if job := <-srv.hookCh; job.Utterance != 1 {
		t.Fatalf("queued job = %+v", job)
	}
	if srv.lastHeard.Load() == 0 {
		t.Fatalf("lastHeard not updated")
	}
}

func TestControlStatusAndHealth(t *testing.T) {
	cfg := testConfig(t)
	srv, err := newServer(cfg, logging.NewTestLogger(), metrics.Noop(), Options{
		Engine:     &echoEngine{},
		Source:     capture.NewWAV(nil, audio.PCM16kMono, 20, false),
		SourceName: "mic",
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv.transcripts.Utterance(sink.Transcript{Text: "earlier", At: time.Now()})

	query := func(op string, v any) {
		t.Helper()
		client, server := net.Pipe()
		go srv.handleConn(context.Background(), server)
		defer client.Close()
		if err := json.NewEncoder(client).Encode(control.Request{Op: op}); err != nil {
			t.Fatalf("encode: %v", err)
		}
		if err := json.NewDecoder(bufio.NewReader(client)).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", op, err)
		}
	}

	var st control.Status
	query("status", &st)
	if !st.Running || st.Source != "mic" || st.Segmenter.State != "idle" || st.Policy != "queue" {
		t.Fatalf("status = %+v", st)
	}
	if len(st.Transcripts) != 1 || st.Transcripts[0].Text != "earlier" {
		t.Fatalf("transcripts = %+v", st.Transcripts)
	}
	var h control.SimpleResponse
	query("health", &h)
	if !h.OK {
		t.Fatalf("health = %+v", h)
	}
	query("reload", &h)
	if h.OK {
		t.Fatalf("unknown op reported ok")
	}
}

// feedThenWait replays src and then holds the capture open until ctx ends,
// like a microphone would.
type feedThenWait struct {
	src capture.Source
	fed chan struct{}
}

func (f *feedThenWait) Run(ctx context.Context, fn capture.FrameFunc) error {
	if err := f.src.Run(ctx, fn); err != nil {
		return err
	}
	close(f.fed)
	<-ctx.Done()
	return ctx.Err()
}

func TestServeSignalFinishesInFlightAndDropsQueued(t *testing.T) {
	cfg := testConfig(t)
	started := make(chan struct{})
	release := make(chan struct{})
	eng := &echoEngine{fail: func(n int64) error {
		if n == 1 {
			close(started)
			<-release
		}
		return nil
	}}
	pcm := append(twoUtterances(), speech(400, 12000)...)
	pcm = append(pcm, speech(1500, 0)...)
	src := &feedThenWait{
		src: capture.NewWAV(pcm, audio.PCM16kMono, 20, false),
		fed: make(chan struct{}),
	}
	var stdout bytes.Buffer
	errc := make(chan error, 1)
	go func() {
		errc <- Serve(cfg, logging.NewTestLogger(), Options{Engine: eng, Source: src, Stdout: &stdout})
	}()

	for _, ch := range []chan struct{}{started, src.fed} {
		select {
		case <-ch:
		case <-time.After(5 * time.Second):
			t.Fatalf("pipeline did not start")
		}
	}
	socketExists := func() bool {
		_, err := os.Stat(cfg.Paths.SocketPath)
		return err == nil
	}
	waitFor(t, socketExists)
	if err := syscall.Kill(os.Getpid(), syscall.SIGTERM); err != nil {
		t.Fatalf("signal: %v", err)
	}
	// The control socket goes away once shutdown has begun.
	waitFor(t, func() bool { return !socketExists() })
	close(release)

	select {
	case err := <-errc:
		if err != nil {
			t.Fatalf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("serve did not return after SIGTERM")
	}
	if n := eng.calls.Load(); n != 1 {
		t.Fatalf("engine ran %d times, want only the in-flight utterance", n)
	}
	if got := strings.TrimSpace(stdout.String()); !strings.HasSuffix(got, ": utterance 1") || strings.Contains(got, "\n") {
		t.Fatalf("console output = %q", stdout.String())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not reached")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDroppedHookJobDoesNotStartCooldown(t *testing.T) {
	cfg := testConfig(t)
	cfg.Hook.Enabled = true
	cfg.Hook.MinChars = 1
	cfg.Hook.CooldownSec = 60
	cfg.Hook.QueueSize = 1
	srv, err := newServer(cfg, logging.NewTestLogger(), metrics.Noop(), Options{
		Engine: &echoEngine{},
		Source: capture.NewWAV(nil, audio.PCM16kMono, 20, false),
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	srv.hookCh <- hook.Job{Utterance: 99}
	srv.Utterance(sink.Transcript{Utterance: 1, Text: "dropped while the queue is full"})
	if job := <-srv.hookCh; job.Utterance != 99 {
		t.Fatalf("queue held %+v", job)
	}
	srv.Utterance(sink.Transcript{Utterance: 2, Text: "queued"})
	if len(srv.hookCh) != 1 {
		t.Fatalf("utterance after a dropped job was held back by the cooldown")
	}
	if job := <-srv.hookCh; job.Utterance != 2 {
		t.Fatalf("queued job = %+v", job)
	}
}
