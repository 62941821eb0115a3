package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultThreshold     = 0.01
	defaultSilenceMS     = 1000
	defaultPreRollBytes  = 16000
	defaultQueueSize     = 4
	defaultMinChars      = 1
	defaultCooldown      = 1.0
	defaultStatusTail    = 10
	defaultStateDirLinux = ".local/state/earshot"
	defaultConfigDir     = ".config/earshot"
)

// Enumerated config values.
const (
	PolicyQueue  = "queue"
	PolicySingle = "single"

	PreRollReset   = "reset"
	PreRollSliding = "sliding"

	MeterEnergy = "energy"
	MeterWebRTC = "webrtc"

	ClockWall  = "wall"
	ClockAudio = "audio"
)

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		DeviceName  string `toml:"device_name"`
		DeviceIndex int    `toml:"device_index"`
		SampleRate  int    `toml:"sample_rate"`
		Channels    int    `toml:"channels"`
		FrameMS     int    `toml:"frame_ms"`
	} `toml:"audio"`

	VAD struct {
		Threshold      float64 `toml:"threshold"`
		SilenceMS      int     `toml:"silence_ms"`
		PreRollBytes   int     `toml:"preroll_bytes"`
		PreRollMode    string  `toml:"preroll_mode"` // reset, sliding
		Meter          string  `toml:"meter"`        // energy, webrtc
		Aggressiveness int     `toml:"aggressiveness"`
		MaxUtteranceMS int     `toml:"max_utterance_ms"`
		Clock          string  `toml:"clock"` // wall, audio
	} `toml:"vad"`

	Dispatch struct {
		Policy    string `toml:"policy"` // queue, single
		QueueSize int    `toml:"queue_size"`
	} `toml:"dispatch"`

	ASR struct {
		ModelPath string `toml:"model_path"`
		Language  string `toml:"language"`
		Threads   int    `toml:"threads"`
	} `toml:"asr"`

	Hook struct {
		Enabled     bool              `toml:"enabled"`
		Command     string            `toml:"command"`
		Args        []string          `toml:"args"`
		Prefix      string            `toml:"prefix"`
		CooldownSec float64           `toml:"cooldown_sec"`
		MinChars    int               `toml:"min_chars"`
		QueueSize   int               `toml:"queue_size"`
		TimeoutSec  float64           `toml:"timeout_sec"`
		Env         map[string]string `toml:"env"`
		RedactPII   bool              `toml:"redact_pii"`
	} `toml:"hook"`

	Output struct {
		Console bool `toml:"console"`
	} `toml:"output"`

	Logging struct {
		Level   string `toml:"level"`   // debug, info, warn, error
		Format  string `toml:"format"`  // text, json
		Console bool   `toml:"console"` // mirror to stderr
	} `toml:"logging"`

	Paths struct {
		StateDir       string `toml:"state_dir"`
		LogPath        string `toml:"log_path"`
		TranscriptPath string `toml:"transcript_path"`
		SocketPath     string `toml:"socket_path"`
		PidPath        string `toml:"pid_path"`
		ConfigPath     string `toml:"-"`
	} `toml:"paths"`

	UI struct {
		StatusTail int `toml:"status_tail"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`

	Transcripts struct {
		Enabled bool `toml:"enabled"`
	} `toml:"transcripts"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/earshot for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "earshot")
	}

	cfg := &Config{}

	cfg.Audio.DeviceIndex = -1
	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.FrameMS = 20

	cfg.VAD.Threshold = defaultThreshold
	cfg.VAD.SilenceMS = defaultSilenceMS
	cfg.VAD.PreRollBytes = defaultPreRollBytes
	cfg.VAD.PreRollMode = PreRollReset
	cfg.VAD.Meter = MeterEnergy
	cfg.VAD.Aggressiveness = 2
	cfg.VAD.Clock = ClockWall

	cfg.Dispatch.Policy = PolicyQueue
	cfg.Dispatch.QueueSize = defaultQueueSize

	cfg.ASR.ModelPath = filepath.Join(stateDir, "models", "ggml-base-q5_1.bin")
	cfg.ASR.Language = "auto"

	cfg.Hook.Prefix = "Heard on ${hostname}: "
	cfg.Hook.CooldownSec = defaultCooldown
	cfg.Hook.MinChars = defaultMinChars
	cfg.Hook.QueueSize = 16
	cfg.Hook.TimeoutSec = 5
	cfg.Hook.Env = map[string]string{}

	cfg.Output.Console = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "earshot.log")
	cfg.Paths.TranscriptPath = filepath.Join(stateDir, "transcripts.log")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "earshot.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "earshot.pid")

	cfg.UI.StatusTail = defaultStatusTail

	cfg.Metrics.Addr = "127.0.0.1:9318"

	cfg.Transcripts.Enabled = true

	return cfg, nil
}

// DefaultPath is ~/.config/earshot/config.toml.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, defaultConfigDir, "config.toml")
}

// Load loads config from file, applying defaults, a sibling .env file and
// EARSHOT_* environment overrides.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultPath()
	}
	cfg.Paths.ConfigPath = path

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := Save(cfg, path); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv populates unset variables from a .env file; a missing file is fine.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Audio.SampleRate != 16000 {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be 16000, got %d", c.Audio.SampleRate))
	}
	if c.Audio.Channels != 1 {
		errs = append(errs, fmt.Errorf("audio.channels must be 1, got %d", c.Audio.Channels))
	}
	if c.Audio.FrameMS <= 0 {
		errs = append(errs, fmt.Errorf("audio.frame_ms must be positive"))
	}
	if c.VAD.Threshold <= 0 || c.VAD.Threshold >= 1 {
		errs = append(errs, fmt.Errorf("vad.threshold must be in (0,1), got %g", c.VAD.Threshold))
	}
	if c.VAD.SilenceMS <= 0 {
		errs = append(errs, fmt.Errorf("vad.silence_ms must be positive"))
	}
	if c.VAD.PreRollBytes <= 0 || c.VAD.PreRollBytes%2 != 0 {
		errs = append(errs, fmt.Errorf("vad.preroll_bytes must be a positive even number, got %d", c.VAD.PreRollBytes))
	}
	if c.VAD.MaxUtteranceMS < 0 {
		errs = append(errs, fmt.Errorf("vad.max_utterance_ms must not be negative"))
	}
	errs = append(errs,
		oneOf("vad.preroll_mode", c.VAD.PreRollMode, PreRollReset, PreRollSliding),
		oneOf("vad.meter", c.VAD.Meter, MeterEnergy, MeterWebRTC),
		oneOf("vad.clock", c.VAD.Clock, ClockWall, ClockAudio),
		oneOf("dispatch.policy", c.Dispatch.Policy, PolicyQueue, PolicySingle),
	)
	if c.VAD.Meter == MeterWebRTC {
		switch c.Audio.FrameMS {
		case 10, 20, 30:
		default:
			errs = append(errs, fmt.Errorf("vad.meter webrtc needs audio.frame_ms of 10, 20 or 30, got %d", c.Audio.FrameMS))
		}
	}
	if c.Dispatch.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("dispatch.queue_size must be positive"))
	}
	return errors.Join(errs...)
}

func oneOf(key, v string, allowed ...string) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), v)
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), filepath.Dir(cfg.Paths.TranscriptPath)} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("EARSHOT_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("EARSHOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("EARSHOT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("EARSHOT_MODEL"); v != "" {
		cfg.ASR.ModelPath = v
	}
	if v := os.Getenv("EARSHOT_VAD_THRESHOLD"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("EARSHOT_VAD_THRESHOLD: %w", err)
		}
		cfg.VAD.Threshold = f
	}
	if v := os.Getenv("EARSHOT_VAD_SILENCE_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EARSHOT_VAD_SILENCE_MS: %w", err)
		}
		cfg.VAD.SilenceMS = n
	}
	if v := os.Getenv("EARSHOT_DISPATCH_POLICY"); v != "" {
		cfg.Dispatch.Policy = strings.ToLower(v)
	}
	if v := os.Getenv("EARSHOT_TRANSCRIPTS_ENABLED"); v != "" {
		cfg.Transcripts.Enabled = v != "0" && strings.ToLower(v) != "false"
	}
	return nil
}
