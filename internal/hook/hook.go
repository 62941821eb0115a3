// Package hook runs a user command for each transcribed utterance.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"earshot/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

var errNoCommand = errors.New("no hook.command configured")

// Job represents a hook invocation request.
type Job struct {
	Utterance uint64
	Text      string
	Timestamp time.Time
}

// Decision is the outcome of offering an utterance to the runner.
type Decision int

const (
	Send Decision = iota
	SkipShort
	SkipCooldown
)

func (d Decision) String() string {
	switch d {
	case Send:
		return "send"
	case SkipShort:
		return "too short"
	case SkipCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// Runner executes the hook command with cooldown and prefix handling.
type Runner struct {
	program  string
	args     []string
	parseErr error

	prefix   string
	env      []string
	minChars int
	cooldown time.Duration
	timeout  time.Duration
	redact   bool

	logger *logrus.Logger

	mu       sync.Mutex
	accepted time.Time
	previous time.Time
}

// NewRunner prepares the command from cfg.Hook. hook.command may carry its
// own arguments ("notify-send -u low"); hook.args are appended after them.
func NewRunner(cfg *config.Config, logger *logrus.Logger) *Runner {
	host, _ := os.Hostname()
	h := cfg.Hook
	r := &Runner{
		prefix:   strings.ReplaceAll(h.Prefix, "${hostname}", host),
		minChars: h.MinChars,
		cooldown: seconds(h.CooldownSec),
		timeout:  seconds(h.TimeoutSec),
		redact:   h.RedactPII,
		logger:   logger,
	}
	for k, v := range h.Env {
		r.env = append(r.env, k+"="+v)
	}
	program, args, err := ParseCommand(os.ExpandEnv(h.Command))
	if err != nil {
		if strings.TrimSpace(h.Command) == "" {
			err = errNoCommand
		}
		r.parseErr = err
		return r
	}
	r.program = program
	r.args = append(args, h.Args...)
	return r
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// Accept decides whether text at time now should be sent. An accepted
// utterance starts a new cooldown window.
func (r *Runner) Accept(now time.Time, text string) Decision {
	text = strings.TrimSpace(text)
	if text == "" || utf8.RuneCountInString(text) < r.minChars {
		return SkipShort
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cooldown > 0 && !r.accepted.IsZero() && now.Sub(r.accepted) < r.cooldown {
		return SkipCooldown
	}
	r.previous, r.accepted = r.accepted, now
	return Send
}

// Release undoes the acceptance made at now, for an utterance that was
// accepted but could not be queued. The cooldown then counts from the last
// utterance that was actually sent.
func (r *Runner) Release(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.accepted.Equal(now) {
		r.accepted = r.previous
	}
}

// Command builds the process for job without starting it. The payload is
// the prefix plus text as the last argument; EARSHOT_TEXT, EARSHOT_PREFIX
// and EARSHOT_UTTERANCE are exported alongside hook.env.
func (r *Runner) Command(ctx context.Context, job Job) (*exec.Cmd, error) {
	if r.parseErr != nil {
		return nil, r.parseErr
	}
	text := job.Text
	if r.redact {
		text = redactPII(text)
	}
	args := append(append([]string{}, r.args...), strings.TrimSpace(r.prefix+text))
	cmd := exec.CommandContext(ctx, r.program, args...)
	cmd.Env = append(os.Environ(), r.env...)
	cmd.Env = append(cmd.Env,
		"EARSHOT_TEXT="+text,
		"EARSHOT_PREFIX="+r.prefix,
		fmt.Sprintf("EARSHOT_UTTERANCE=%d", job.Utterance),
	)
	return cmd, nil
}

// Run executes the hook for job, bounded by hook.timeout_sec.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	cmd, err := r.Command(ctx, job)
	if err != nil {
		return err
	}
	// Grandchildren holding the output pipe must not outlive the timeout.
	cmd.WaitDelay = time.Second
	start := time.Now()
	out, err := cmd.CombinedOutput()
	entry := r.logger.WithFields(logrus.Fields{
		"utterance": job.Utterance,
		"took":      time.Since(start).Round(time.Millisecond),
	})
	if len(out) > 0 {
		entry.Infof("hook output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		return fmt.Errorf("hook %s: %w", r.program, err)
	}
	entry.Debug("hook done")
	return nil
}

// ParseArgs splits a shell-style argument string.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}

// ParseCommand splits a shell-style command line into program and args.
func ParseCommand(raw string) (string, []string, error) {
	parts, err := ParseArgs(raw)
	if err != nil {
		return "", nil, err
	}
	if len(parts) == 0 {
		return "", nil, fmt.Errorf("empty hook command")
	}
	return parts[0], parts[1:], nil
}

var (
	emailRE = regexp.MustCompile(`[\w.+-]+@[\w.-]+\.[A-Za-z]{2,}`)
	phoneRE = regexp.MustCompile(`\+?\d[\d\s\-\(\)]{6,}\d`)
)

func redactPII(s string) string {
	s = emailRE.ReplaceAllString(s, "[redacted-email]")
	return phoneRE.ReplaceAllString(s, "[redacted-phone]")
}
