// Package doctor checks the local environment for the pieces earshot needs.
package doctor

import (
	"os"
	"os/exec"
	"strings"

	"earshot/internal/asr"
	"earshot/internal/config"
	"earshot/internal/hook"
)

// Result represents a diagnostic check.
type Result struct {
	Name   string
	Pass   bool
	Detail string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	results := []Result{
		checkFile("config", cfg.Paths.ConfigPath),
		checkConfig(cfg),
		checkModel(cfg.ASR.ModelPath),
	}
	if cfg.Hook.Enabled {
		results = append(results, checkHookExecutable(cfg.Hook.Command))
	}
	results = append(results, checkPortAudioPkgConfig(), checkPortAudio())
	return results
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkConfig(cfg *config.Config) Result {
	if err := cfg.Validate(); err != nil {
		return Result{Name: "settings", Pass: false, Detail: strings.ReplaceAll(err.Error(), "\n", "; ")}
	}
	return Result{Name: "settings", Pass: true, Detail: "valid"}
}

func checkModel(path string) Result {
	found, err := asr.ResolveModel(os.ExpandEnv(path))
	if err != nil {
		return Result{Name: "model", Pass: false, Detail: err.Error() + " (run: earshot setup)"}
	}
	return Result{Name: "model", Pass: true, Detail: found}
}

func checkHookExecutable(cmd string) Result {
	label := "hook"
	if cmd == "" {
		return Result{Name: label, Pass: false, Detail: "hook.command not set"}
	}
	path, _, err := hook.ParseCommand(os.ExpandEnv(cmd))
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set hook.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	// Else search PATH.
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "pkg-config not found"}
	}
	cmd := exec.Command(pkg, "--exists", "portaudio-2.0")
	if err := cmd.Run(); err != nil {
		return Result{Name: "pkg-config", Pass: false, Detail: "portaudio-2.0 not found (brew install portaudio / apt install portaudio19-dev)"}
	}
	versionCmd := exec.Command(pkg, "--modversion", "portaudio-2.0")
	if out, err := versionCmd.Output(); err == nil {
		return Result{Name: "pkg-config", Pass: true, Detail: "portaudio " + strings.TrimSpace(string(out))}
	}
	return Result{Name: "pkg-config", Pass: true, Detail: "portaudio found"}
}
