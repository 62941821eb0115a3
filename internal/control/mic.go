package control

import (
	"encoding/json"
	"fmt"
	"runtime"
	"strconv"

	"earshot/internal/capture"
	"earshot/internal/config"

	"github.com/spf13/cobra"
)

// NewMicCmd groups mic subcommands.
func NewMicCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "mic",
		Aliases: []string{"microphone", "mics"},
		Short:   "Microphone management",
	}
	cmd.AddCommand(newMicListCmd())
	cmd.AddCommand(newMicSetCmd(cfgPath))
	return cmd
}

func newMicListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available microphones",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			devs, err := capture.ListDevices()
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(devs)
			}
			out := cmd.OutOrStdout()
			for _, m := range devs {
				defMark := ""
				if m.Default {
					defMark = " (default)"
				}
				fmt.Fprintf(out, "[%d] %s%s (in %d ch, latency %.2fms)\n", m.Index, m.Name, defMark, m.Channels, m.LatencyMs)
			}
			if len(devs) == 0 && runtime.GOOS == "darwin" {
				fmt.Fprintln(out, "tip: if no devices appear, install PortAudio: brew install portaudio")
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func newMicSetCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set [name]",
		Short: "Set microphone device name or index in config",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			idx, _ := cmd.Flags().GetInt("index")
			if err := applyMic(cfg, args, idx); err != nil {
				return err
			}
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			if cfg.Audio.DeviceIndex >= 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "mic set to index %d in %s\n", cfg.Audio.DeviceIndex, cfg.Paths.ConfigPath)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "mic set to %q in %s\n", cfg.Audio.DeviceName, cfg.Paths.ConfigPath)
			}
			return nil
		},
	}
	cmd.Flags().Int("index", -1, "device index from `mic list`")
	return cmd
}

// applyMic selects a device by index (flag or numeric arg) or by name.
func applyMic(cfg *config.Config, args []string, idx int) error {
	if idx < 0 && len(args) == 1 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			idx = n
		}
	}
	switch {
	case idx >= 0:
		cfg.Audio.DeviceIndex = idx
		cfg.Audio.DeviceName = ""
	case len(args) == 1 && args[0] != "":
		cfg.Audio.DeviceName = args[0]
		cfg.Audio.DeviceIndex = -1
	default:
		return fmt.Errorf("give a device name or --index")
	}
	return nil
}
