package control

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"earshot/internal/config"
	"earshot/internal/vad"
)

func TestTailFileKeepsLastLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "earshot.log")
	if err := os.WriteFile(path, []byte("one\ntwo\n\nthree\nfour\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if err := tailFile(&buf, path, 2); err != nil {
		t.Fatalf("tail: %v", err)
	}
	if got := buf.String(); got != "three\nfour\n" {
		t.Fatalf("unexpected tail %q", got)
	}
}

func TestTailFileMissing(t *testing.T) {
	var buf bytes.Buffer
	if err := tailFile(&buf, filepath.Join(t.TempDir(), "nope.log"), 5); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func serveOnce(t *testing.T, reply any) (string, <-chan Request) {
	t.Helper()
	dir, err := os.MkdirTemp("", "es")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	sock := filepath.Join(dir, "c.sock")
	ln, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	got := make(chan Request, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		var req Request
		if err := json.NewDecoder(conn).Decode(&req); err != nil {
			return
		}
		got <- req
		_ = json.NewEncoder(conn).Encode(reply)
	}()
	return sock, got
}

func TestQueryStatus(t *testing.T) {
	heard := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	want := Status{
		Running:   true,
		Source:    "mic",
		Policy:    "queue",
		Segmenter: vad.Stats{State: "idle", Frames: 42, Dispatched: 2},
		Completed: 2,
		LastHeard: &heard,
		Transcripts: []Transcript{
			{Text: "hello there", Timestamp: heard},
		},
	}
	sock, reqs := serveOnce(t, want)
	var got Status
	if err := Query(sock, "status", &got); err != nil {
		t.Fatalf("query: %v", err)
	}
	if req := <-reqs; req.Op != "status" {
		t.Fatalf("server saw op %q", req.Op)
	}
	if got.Segmenter.Frames != 42 || got.Completed != 2 || len(got.Transcripts) != 1 {
		t.Fatalf("unexpected status %+v", got)
	}

	var buf bytes.Buffer
	printStatus(&buf, got)
	out := buf.String()
	for _, s := range []string{"running: true", "state: idle", "frames: 42", "hello there"} {
		if !strings.Contains(out, s) {
			t.Fatalf("status output missing %q:\n%s", s, out)
		}
	}
}

func TestQueryNoDaemon(t *testing.T) {
	var resp SimpleResponse
	if err := Query(filepath.Join(t.TempDir(), "none.sock"), "health", &resp); err == nil {
		t.Fatalf("expected connect error")
	}
}

func TestApplyMic(t *testing.T) {
	cfg, _ := config.Default()
	if err := applyMic(cfg, []string{"USB Mic"}, -1); err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.DeviceName != "USB Mic" || cfg.Audio.DeviceIndex != -1 {
		t.Fatalf("name not applied: %+v", cfg.Audio)
	}
	if err := applyMic(cfg, []string{"2"}, -1); err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.DeviceIndex != 2 || cfg.Audio.DeviceName != "" {
		t.Fatalf("numeric arg not applied as index: %+v", cfg.Audio)
	}
	if err := applyMic(cfg, nil, 5); err != nil {
		t.Fatal(err)
	}
	if cfg.Audio.DeviceIndex != 5 {
		t.Fatalf("flag index not applied: %+v", cfg.Audio)
	}
	if err := applyMic(cfg, nil, -1); err == nil {
		t.Fatalf("expected error without name or index")
	}
}

func TestResolveModelArg(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Paths.StateDir = "/state"
	if got := resolveModelArg(cfg, "ggml-small.bin"); got != filepath.Join("/state", "models", "ggml-small.bin") {
		t.Fatalf("bare name resolved to %s", got)
	}
	if got := resolveModelArg(cfg, "/opt/m.bin"); got != "/opt/m.bin" {
		t.Fatalf("path rewritten to %s", got)
	}
}

func TestParseEnvPairs(t *testing.T) {
	env, err := parseEnvPairs([]string{"EARSHOT_METRICS_ADDR=127.0.0.1:9317", "EMPTY="})
	if err != nil {
		t.Fatal(err)
	}
	if env["EARSHOT_METRICS_ADDR"] != "127.0.0.1:9317" || env["EMPTY"] != "" {
		t.Fatalf("unexpected env %v", env)
	}
	if _, err := parseEnvPairs([]string{"novalue"}); err == nil {
		t.Fatalf("expected error")
	}
}
