// Package service writes per-user service definitions (launchd on macOS,
// systemd elsewhere) that run the daemon in the foreground.
package service

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/template"
)

const Label = "com.earshot.agent"

const launchdTemplate = `<?xml version='1.0' encoding='UTF-8'?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
  <key>Label</key><string>{{.Label}}</string>
  <key>ProgramArguments</key>
  <array>
    <string>{{.Binary}}</string>
    <string>serve</string>
    <string>--config</string>
    <string>{{.Config}}</string>
  </array>
  <key>RunAtLoad</key><true/>
  <key>KeepAlive</key><dict><key>SuccessfulExit</key><false/></dict>
  <key>StandardOutPath</key><string>{{.Log}}</string>
  <key>StandardErrorPath</key><string>{{.Log}}</string>
  {{- if .Env }}
  <key>EnvironmentVariables</key>
  <dict>
    {{- range $k, $v := .Env }}
    <key>{{$k}}</key><string>{{$v}}</string>
    {{- end }}
  </dict>
  {{- end }}
</dict>
</plist>
`

const systemdTemplate = `[Unit]
Description=earshot always-on transcription
After=sound.target

[Service]
ExecStart="{{.Binary}}" serve --config "{{.Config}}"
Restart=on-failure
{{- range $k, $v := .Env }}
Environment="{{$k}}={{$v}}"
{{- end }}

[Install]
WantedBy=default.target
`

// Params fill the service template.
type Params struct {
	Label  string
	Binary string
	Config string
	Log    string
	Env    map[string]string
}

// Kind selects the service manager.
type Kind string

const (
	Launchd Kind = "launchd"
	Systemd Kind = "systemd"
)

// ForOS picks the service manager for a GOOS value.
func ForOS(goos string) Kind {
	if goos == "darwin" {
		return Launchd
	}
	return Systemd
}

// Path returns where the definition for label lives under home.
func (k Kind) Path(home, label string) string {
	if k == Launchd {
		return filepath.Join(home, "Library", "LaunchAgents", label+".plist")
	}
	return filepath.Join(home, ".config", "systemd", "user", label+".service")
}

// Render writes the definition to w.
func (k Kind) Render(w io.Writer, params Params) error {
	src := systemdTemplate
	if k == Launchd {
		src = launchdTemplate
	}
	tpl, err := template.New(string(k)).Parse(src)
	if err != nil {
		return err
	}
	return tpl.Execute(w, params)
}

// Write renders the definition into its standard location and returns the path.
func (k Kind) Write(home string, params Params) (string, error) {
	path := k.Path(home, params.Label)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := k.Render(f, params); err != nil {
		_ = f.Close()
		return "", err
	}
	return path, f.Close()
}

// Status returns the definition path and whether it exists.
func (k Kind) Status(home, label string) (string, bool) {
	path := k.Path(home, label)
	_, err := os.Stat(path)
	return path, err == nil
}

// Hints are the commands that load, start and stop the installed service.
func (k Kind) Hints(path, label string) []string {
	if k == Launchd {
		return []string{
			"Load:   launchctl load -w " + path,
			fmt.Sprintf("Start:  launchctl kickstart gui/$(id -u)/%s", label),
			fmt.Sprintf("Stop:   launchctl bootout gui/$(id -u)/%s", label),
		}
	}
	return []string{
		"Reload: systemctl --user daemon-reload",
		fmt.Sprintf("Start:  systemctl --user enable --now %s", label),
		fmt.Sprintf("Stop:   systemctl --user stop %s", label),
	}
}
