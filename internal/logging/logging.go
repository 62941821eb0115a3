package logging

import (
	"io"
	"os"
	"strings"

	"earshot/internal/config"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Configure sets up logrus with rotation.
func Configure(cfg *config.Config) (*logrus.Logger, error) {
	if err := config.MustStatePaths(cfg); err != nil {
		return nil, err
	}
	logger := logrus.New()
	applyFormat(logger, cfg.Logging.Format, cfg.Logging.Level)
	rotator := &lumberjack.Logger{
		Filename:   cfg.Paths.LogPath,
		MaxSize:    20, // megabytes
		MaxBackups: 3,
		MaxAge:     30,
		Compress:   false,
	}
	if cfg.Logging.Console {
		// stdout carries transcripts; logs go to stderr.
		logger.SetOutput(io.MultiWriter(os.Stderr, rotator))
	} else {
		logger.SetOutput(rotator)
	}
	return logger, nil
}

// Console returns a stderr-only logger for one-shot commands that should not
// touch the rotated log file.
func Console(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	applyFormat(logger, "text", level)
	return logger
}

// NewTestLogger discards everything.
func NewTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return logger
}

func applyFormat(logger *logrus.Logger, format, level string) {
	switch strings.ToLower(format) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if lvl, err := logrus.ParseLevel(strings.ToLower(level)); err == nil {
		logger.SetLevel(lvl)
	}
}
