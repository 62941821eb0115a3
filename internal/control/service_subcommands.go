package control

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"earshot/internal/config"
	"earshot/internal/service"

	"github.com/spf13/cobra"
)

// NewServiceCmd manages the per-user service definition.
func NewServiceCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage user service (launchd on macOS, systemd elsewhere)",
	}
	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install user service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			envPairs, _ := cmd.Flags().GetStringArray("env")
			env, err := parseEnvPairs(envPairs)
			if err != nil {
				return err
			}
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			kind := service.ForOS(runtime.GOOS)
			path, err := kind.Write(home, service.Params{
				Label:  service.Label,
				Binary: exe,
				Config: cfg.Paths.ConfigPath,
				Log:    cfg.Paths.LogPath,
				Env:    env,
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s service written: %s\n", kind, path)
			for _, h := range kind.Hints(path, service.Label) {
				fmt.Fprintln(out, h)
			}
			return nil
		},
	}
	cmd.Flags().StringArray("env", nil, "Env to set in the service (KEY=VAL)")
	return cmd
}

func parseEnvPairs(pairs []string) (map[string]string, error) {
	env := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("bad env %q, want KEY=VAL", p)
		}
		env[k] = v
	}
	return env, nil
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove user service definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			kind := service.ForOS(runtime.GOOS)
			path := kind.Path(home, service.Label)
			_ = os.Remove(path)
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s (if present); stop the running service manually\n", path)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show service definition path and whether it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			home, err := os.UserHomeDir()
			if err != nil {
				return err
			}
			kind := service.ForOS(runtime.GOOS)
			path, ok := kind.Status(home, service.Label)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s: %s\n", kind, path)
			if ok {
				fmt.Fprintln(out, "status: present")
			} else {
				fmt.Fprintln(out, "status: missing (install via: earshot service install)")
			}
			return nil
		},
	}
}
