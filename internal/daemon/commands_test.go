package daemon

import (
	"fmt"
	"os"
	"testing"
	"time"

	"earshot/internal/config"
)

func TestWaitForShutdownSucceedsWhenPidFileRemoved(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.ConfigPath = dir + "/config.toml"
	cfg.Paths.PidPath = dir + "/earshot.pid"
	if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
		t.Fatalf("save cfg: %v", err)
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte("12345"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.Remove(cfg.Paths.PidPath)
	}()
	if err := waitForShutdown(cfg.Paths.ConfigPath, 2*time.Second); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestWaitForShutdownTimesOutOnAlivePid(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.ConfigPath = dir + "/config.toml"
	cfg.Paths.PidPath = dir + "/earshot.pid"
	if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
		t.Fatalf("save cfg: %v", err)
	}
	selfPid := os.Getpid()
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", selfPid)), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if err := waitForShutdown(cfg.Paths.ConfigPath, 300*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestApplyRunFlagsUsesAudioClockForFileInput(t *testing.T) {
	cfg, _ := config.Default()
	cmd := NewListenCmd(new(string))
	if err := cmd.ParseFlags([]string{"--policy", "single", "--metrics-addr", "127.0.0.1:0"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := applyRunFlags(cmd, cfg, "speech.wav", false); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.VAD.Clock != config.ClockAudio {
		t.Fatalf("expected audio clock, got %q", cfg.VAD.Clock)
	}
	if cfg.Dispatch.Policy != config.PolicySingle {
		t.Fatalf("expected single policy, got %q", cfg.Dispatch.Policy)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "127.0.0.1:0" {
		t.Fatalf("metrics not enabled: %+v", cfg.Metrics)
	}
}

func TestApplyRunFlagsKeepsWallClockForRealtime(t *testing.T) {
	cfg, _ := config.Default()
	cmd := NewListenCmd(new(string))
	if err := applyRunFlags(cmd, cfg, "speech.wav", true); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if cfg.VAD.Clock != config.ClockWall {
		t.Fatalf("expected wall clock, got %q", cfg.VAD.Clock)
	}
}

func TestApplyRunFlagsRejectsUnknownPolicy(t *testing.T) {
	cfg, _ := config.Default()
	cmd := NewListenCmd(new(string))
	if err := cmd.ParseFlags([]string{"--policy", "drop-oldest"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	if err := applyRunFlags(cmd, cfg, "", false); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestEnsureNotRunningIgnoresStalePid(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Paths.PidPath = t.TempDir() + "/earshot.pid"
	if err := ensureNotRunning(cfg); err != nil {
		t.Fatalf("missing pid file: %v", err)
	}
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if err := ensureNotRunning(cfg); err == nil {
		t.Fatalf("expected running error for live pid")
	}
}

func TestRestartWaitFlag(t *testing.T) {
	cmd := NewRestartCmd(new(string))
	wait, err := cmd.Flags().GetDuration("wait")
	if err != nil {
		t.Fatalf("wait flag: %v", err)
	}
	if wait != defaultStopWait {
		t.Fatalf("default wait = %s", wait)
	}
	if err := cmd.ParseFlags([]string{"--wait", "2m"}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if wait, _ = cmd.Flags().GetDuration("wait"); wait != 2*time.Minute {
		t.Fatalf("wait = %s, want 2m", wait)
	}
}
