package control

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"earshot/internal/asr"
	"earshot/internal/config"

	"github.com/spf13/cobra"
)

// NewSetupCmd downloads the configured model if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download the configured whisper model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			modelPath := os.ExpandEnv(cfg.ASR.ModelPath)
			if found, err := asr.ResolveModel(modelPath); err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "model already present at", found)
				return nil
			} else if !errors.Is(err, asr.ErrModelNotFound) {
				return err
			}
			url, ok := asr.ModelURL(filepath.Base(modelPath))
			if !ok {
				return fmt.Errorf("%s is not a known model; download it manually or run `earshot models set`", modelPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloading model to %s\n", modelPath)
			if err := asr.Download(cmd.Context(), nil, url, modelPath); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "model download complete")
			return nil
		},
	}
}
