package main

import (
	"fmt"
	"os"

	"earshot/internal/control"
	"earshot/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "earshot",
		Short: "Earshot: always-on voice capture and local transcription",
		Long: `Earshot keeps the microphone open, cuts speech into utterances with a voice-activity
detector, transcribes each one locally with whisper.cpp, and prints the segments as they arrive.
An optional hook command receives every utterance's text.

Key commands:
  listen [--input file.wav]  Foreground capture, transcripts on stdout
  transcribe <file.wav>      One-shot file transcription
  start|stop|restart         Daemon lifecycle
  status [--json]            Segmenter state, counters, last transcripts
  mic list|set               Select microphone (alias: microphone, mics)
  doctor|setup               Check deps / download default model
  models list|download|set   Manage whisper.cpp models
  service install|uninstall|status   launchd / systemd user service
  health|tail-log|test-hook  Liveness, log tail, manual hook

Notable flags/env:
  --metrics-addr <addr>      Enable /metrics (Prometheus text)
  --policy queue|single      Dispatch policy
  Env overrides: EARSHOT_METRICS_ADDR, EARSHOT_MODEL, EARSHOT_DISPATCH_POLICY,
                 EARSHOT_VAD_THRESHOLD, EARSHOT_VAD_SILENCE_MS,
                 EARSHOT_LOG_LEVEL/FORMAT, EARSHOT_TRANSCRIPTS_ENABLED`,
		Example: `  earshot listen
  earshot transcribe meeting.wav
  earshot start --metrics-addr 127.0.0.1:9317
  earshot mic set --index 1
  earshot models download ggml-small-q5_1.bin
  earshot service install --env EARSHOT_METRICS_ADDR=127.0.0.1:9317`,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}

	root.Version = version
	root.SetVersionTemplate("Earshot v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/earshot/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewListenCmd(cfgPath))
	root.AddCommand(daemon.NewTranscribeCmd(cfgPath))
	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewTestHookCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewServiceCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewModelsCmd(cfgPath))

	// Hidden internal serve command used by start and the service unit.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	return root.Execute()
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%sEarshot%s: always-on voice capture and local transcription %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sListens on the mic, splits speech into utterances, transcribes them with whisper.cpp.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  earshot [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  listen [--input f.wav]      foreground capture, transcripts on stdout")
		writeln("  transcribe <file.wav>       one-shot file transcription")
		writeln("  start|stop|restart          daemon lifecycle")
		writeln("  status [--json]             segmenter state, counters, last transcripts")
		writeln("  mic list|set                select input device (alias: microphone, mics)")
		writeln("  doctor                      check config/model/hook/portaudio")
		writeln("  setup                       download default whisper model")
		writeln("  models list|download|set    manage whisper.cpp models")
		writeln("  service install|uninstall|status  launchd (macOS) or systemd user unit")
		writeln("  health                      control-socket liveness ping")
		writeln("  tail-log [--transcripts]    show last log lines")
		writeln("  test-hook \"text\"            invoke hook manually")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus)")
		writeln("  --policy queue|single   dispatch policy for this run")
		writeln("  -c, --config <path>     config file (default ~/.config/earshot/config.toml)")
		writeln("  Env: EARSHOT_METRICS_ADDR=host:port, EARSHOT_MODEL=path,")
		writeln("       EARSHOT_VAD_THRESHOLD=0.05, EARSHOT_VAD_SILENCE_MS=1000,")
		writeln("       EARSHOT_LOG_LEVEL=debug, EARSHOT_LOG_FORMAT=json")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  earshot listen")
		writeln("  earshot listen --input meeting.wav --realtime")
		writeln("  earshot transcribe meeting.wav --hook")
		writeln("  earshot start --metrics-addr 127.0.0.1:9317")
		writeln("  earshot mic set --index 1")
		writeln("  earshot models download ggml-small-q5_1.bin")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
