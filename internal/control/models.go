package control

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"earshot/internal/asr"
	"earshot/internal/config"

	"github.com/spf13/cobra"
)

// NewModelsCmd wires up the models subcommands (list/download/set).
func NewModelsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "models",
		Short: "List/download/set whisper models",
	}
	cmd.AddCommand(newModelsListCmd(cfgPath))
	cmd.AddCommand(newModelsDownloadCmd(cfgPath))
	cmd.AddCommand(newModelsSetCmd(cfgPath))
	return cmd
}

func newModelsListCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known models and those present locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			modelDir := asr.ModelDir(cfg.Paths.StateDir)
			local := map[string]bool{}
			entries, _ := os.ReadDir(modelDir)
			for _, e := range entries {
				if !e.IsDir() {
					local[e.Name()] = true
				}
			}
			for _, n := range asr.KnownModels() {
				mark := ""
				if local[n] {
					mark = "(downloaded)"
				}
				if filepath.Base(cfg.ASR.ModelPath) == n {
					mark += "(configured)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "- %s %s\n", n, mark)
			}
			return nil
		},
	}
}

func newModelsDownloadCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "download <model>",
		Short: "Download a model from the registry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			name := args[0]
			url, ok := asr.ModelURL(name)
			if !ok {
				return fmt.Errorf("unknown model %q; run models list", name)
			}
			dest := filepath.Join(asr.ModelDir(cfg.Paths.StateDir), name)
			fmt.Fprintf(cmd.OutOrStdout(), "downloading %s -> %s\n", name, dest)
			return asr.Download(cmd.Context(), nil, url, dest)
		},
	}
}

func newModelsSetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <model-name-or-path>",
		Short: "Set asr.model_path in config",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			cfg.ASR.ModelPath = resolveModelArg(cfg, args[0])
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "model set to %s\n", cfg.ASR.ModelPath)
			return nil
		},
	}
}

// resolveModelArg maps a bare model name into the state model directory.
func resolveModelArg(cfg *config.Config, val string) string {
	if !strings.ContainsRune(val, filepath.Separator) && !strings.Contains(val, "/") {
		return filepath.Join(asr.ModelDir(cfg.Paths.StateDir), val)
	}
	return val
}
