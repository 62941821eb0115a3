package control

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"earshot/internal/config"
	"earshot/internal/doctor"
	"earshot/internal/hook"
	"earshot/internal/logging"

	"github.com/spf13/cobra"
)

// Query sends one request over the control socket and decodes the reply into v.
func Query(socketPath, op string, v any) error {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return fmt.Errorf("cannot connect to daemon: %w", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
	if err := json.NewEncoder(conn).Encode(Request{Op: op}); err != nil {
		return err
	}
	return json.NewDecoder(conn).Decode(v)
}

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var status Status
			if err := Query(cfg.Paths.SocketPath, "status", &status); err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(status)
			}
			printStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func printStatus(w io.Writer, status Status) {
	fmt.Fprintf(w, "running: %v\nuptime: %.1fs\n", status.Running, status.UptimeSec)
	fmt.Fprintf(w, "source: %s  policy: %s  state: %s\n", status.Source, status.Policy, status.Segmenter.State)
	fmt.Fprintf(w, "frames: %d (dropped %d)  utterances: %d (rejected %d)\n",
		status.Segmenter.Frames, status.Segmenter.DroppedFrames, status.Segmenter.Dispatched, status.Segmenter.Rejected)
	fmt.Fprintf(w, "transcribed: %d  failed: %d  pending: %d\n", status.Completed, status.Failed, status.Pending)
	if status.LastHeard != nil {
		fmt.Fprintf(w, "last heard: %s\n", status.LastHeard.Format(time.RFC3339))
	}
	for _, t := range status.Transcripts {
		fmt.Fprintf(w, "%s  %s\n", t.Timestamp.Format("15:04:05"), t.Text)
	}
}

// NewHealthCmd pings the control socket.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			var resp SimpleResponse
			if err := Query(cfg.Paths.SocketPath, "health", &resp); err != nil {
				return err
			}
			if !resp.OK {
				return fmt.Errorf("unhealthy: %s", resp.Message)
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}

// NewTailLogCmd tails the main log file (simple last N lines).
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			path := cfg.Paths.LogPath
			if t, _ := cmd.Flags().GetBool("transcripts"); t {
				path = cfg.Paths.TranscriptPath
			}
			return tailFile(cmd.OutOrStdout(), path, n)
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	cmd.Flags().Bool("transcripts", false, "tail the transcript log instead")
	return cmd
}

func tailFile(w io.Writer, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			fmt.Fprintln(w, l)
		}
	}
	return nil
}

// NewTestHookCmd triggers hook manually.
func NewTestHookCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-hook \"some text\"",
		Short: "Send sample text through hook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger := logging.Console(cfg.Logging.Level)
			r := hook.NewRunner(cfg, logger)
			job := hook.Job{Text: args[0], Timestamp: time.Now()}
			return r.Run(cmd.Context(), job)
		},
	}
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			results := doctor.Run(cfg)
			failed := false
			for _, r := range results {
				status := "ok"
				if !r.Pass {
					status = "fail"
					failed = true
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %-4s %s\n", r.Name, status, r.Detail)
			}
			if failed {
				return fmt.Errorf("doctor found issues")
			}
			return nil
		},
	}
}
