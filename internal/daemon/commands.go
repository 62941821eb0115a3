package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"earshot/internal/config"
	"earshot/internal/logging"
	"earshot/internal/run"

	"github.com/spf13/cobra"
)

// defaultStopWait covers one whisper run on a long utterance.
const defaultStopWait = 30 * time.Second

// NewStartCmd starts the daemon (background).
func NewStartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start earshot daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := ensureNotRunning(cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Paths.PidPath), 0o755); err != nil {
				return err
			}
			self, err := os.Executable()
			if err != nil {
				return err
			}
			child := exec.Command(self, "serve", "--config", cfg.Paths.ConfigPath)
			child.Env = os.Environ()
			// propagate runtime flags via env overrides
			if addr := cmd.Flag("metrics-addr").Value.String(); addr != "" {
				child.Env = append(child.Env, "EARSHOT_METRICS_ADDR="+addr)
			}
			if policy := cmd.Flag("policy").Value.String(); policy != "" {
				child.Env = append(child.Env, "EARSHOT_DISPATCH_POLICY="+policy)
			}
			child.Stdout = os.Stdout
			child.Stderr = os.Stderr
			if err := child.Start(); err != nil {
				return err
			}
			// Wait a moment and confirm pid file appears.
			for waited := 0; waited < 20; waited++ {
				if _, err := os.Stat(cfg.Paths.PidPath); err == nil {
					break
				}
				time.Sleep(100 * time.Millisecond)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "earshot started (pid %d)\n", child.Process.Pid)
			return nil
		},
	}
	cmd.Flags().String("metrics-addr", "", "enable metrics at address (e.g., 127.0.0.1:9317) for this run")
	cmd.Flags().String("policy", "", "dispatch policy for this run (queue or single)")
	return cmd
}

// NewServeCmd runs the daemon foreground (internal).
func NewServeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Run earshot daemon (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr := cmd.Flag("metrics-addr").Value.String(); addr != "" {
				if err := os.Setenv("EARSHOT_METRICS_ADDR", addr); err != nil {
					return fmt.Errorf("set EARSHOT_METRICS_ADDR: %w", err)
				}
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			return serve(cmd, cfg, "", false)
		},
	}
	cmd.Flags().String("metrics-addr", "", "enable metrics at address (e.g., 127.0.0.1:9317)")
	return cmd
}

// NewListenCmd runs the pipeline in the foreground and prints transcripts.
func NewListenCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen in the foreground and print transcripts",
		Long: `Listen captures from the configured microphone (or replays --input) and prints
one line per recognized segment as "start->end: text".`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := ensureNotRunning(cfg); err != nil {
				return err
			}
			input, _ := cmd.Flags().GetString("input")
			realtime, _ := cmd.Flags().GetBool("realtime")
			if err := applyRunFlags(cmd, cfg, input, realtime); err != nil {
				return err
			}
			return serve(cmd, cfg, input, realtime)
		},
	}
	cmd.Flags().StringP("input", "i", "", "replay a 16 kHz mono WAV file instead of the microphone")
	cmd.Flags().Bool("realtime", false, "pace --input at wall-clock speed")
	cmd.Flags().String("metrics-addr", "", "enable metrics at address (e.g., 127.0.0.1:9317)")
	cmd.Flags().String("policy", "", "dispatch policy (queue or single)")
	cmd.Flags().Bool("hook", false, "run the configured hook for each utterance")
	return cmd
}

// NewTranscribeCmd segments and transcribes a WAV file, then exits.
func NewTranscribeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Transcribe a 16 kHz mono WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			cfg.Hook.Enabled = false
			if err := applyRunFlags(cmd, cfg, args[0], false); err != nil {
				return err
			}
			// Keep a one-shot run off the daemon's socket and pid file.
			dir, err := os.MkdirTemp("", "earshot-transcribe-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)
			cfg.Paths.SocketPath = filepath.Join(dir, "earshot.sock")
			cfg.Paths.PidPath = filepath.Join(dir, "earshot.pid")
			cfg.Transcripts.Enabled = false
			cfg.Metrics.Enabled = false
			return serve(cmd, cfg, args[0], false)
		},
	}
	cmd.Flags().Bool("hook", false, "run the configured hook for each utterance")
	cmd.Flags().String("policy", "", "dispatch policy (queue or single)")
	return cmd
}

// applyRunFlags folds foreground flags into cfg. File input that is not paced
// in real time is timed by the audio itself.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config, input string, realtime bool) error {
	if f := cmd.Flags().Lookup("metrics-addr"); f != nil && f.Value.String() != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Addr = f.Value.String()
	}
	if policy, _ := cmd.Flags().GetString("policy"); policy != "" {
		cfg.Dispatch.Policy = policy
	}
	if cmd.Flags().Changed("hook") {
		cfg.Hook.Enabled, _ = cmd.Flags().GetBool("hook")
	}
	if input != "" && !realtime {
		cfg.VAD.Clock = config.ClockAudio
	}
	cfg.Output.Console = true
	return cfg.Validate()
}

func serve(cmd *cobra.Command, cfg *config.Config, input string, realtime bool) error {
	logger, err := logging.Configure(cfg)
	if err != nil {
		return err
	}
	src, name, err := run.NewSource(cfg, logger, input, realtime)
	if err != nil {
		return err
	}
	engine, err := run.NewEngine(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warnf("close model: %v", err)
		}
	}()
	return run.Serve(cfg, logger, run.Options{
		Engine:     engine,
		Source:     src,
		SourceName: name,
		Stdout:     cmd.OutOrStdout(),
	})
}

// NewStopCmd stops the daemon.
func NewStopCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop earshot daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			pid, err := readPID(cfg.Paths.PidPath)
			if err != nil {
				return err
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent")
			return nil
		},
	}
}

// NewRestartCmd stops then starts.
func NewRestartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart earshot daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopCmd := NewStopCmd(cfgPath)
			stopCmd.SetOut(cmd.OutOrStdout())
			_ = stopCmd.RunE(stopCmd, args) // ignore error if not running

			wait, _ := cmd.Flags().GetDuration("wait")
			if err := waitForShutdown(*cfgPath, wait); err != nil {
				return err
			}

			startCmd := NewStartCmd(cfgPath)
			startCmd.SetOut(cmd.OutOrStdout())
			return startCmd.RunE(startCmd, args)
		},
	}
	cmd.Flags().Duration("wait", defaultStopWait, "how long to wait for the running transcription to finish")
	return cmd
}

func ensureNotRunning(cfg *config.Config) error {
	pid, err := readPID(cfg.Paths.PidPath)
	if err != nil {
		return nil
	}
	// Check if process alive.
	proc, err := os.FindProcess(pid)
	if err == nil {
		if err := proc.Signal(syscall.Signal(0)); err == nil {
			return fmt.Errorf("already running with pid %d", pid)
		}
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

func waitForShutdown(cfgPath string, timeout time.Duration) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pid, err := readPID(cfg.Paths.PidPath)
		if err != nil {
			return nil // pid file gone
		}
		proc, _ := os.FindProcess(pid)
		if proc != nil {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				_ = os.Remove(cfg.Paths.PidPath)
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("restart: daemon did not stop within %s", timeout)
}
