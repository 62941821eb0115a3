package run

import (
	"earshot/internal/asr"
	"earshot/internal/capture"
	"earshot/internal/config"

	"github.com/sirupsen/logrus"
)

// NewEngine loads the configured whisper model.
func NewEngine(cfg *config.Config, logger *logrus.Logger) (asr.Engine, error) {
	return asr.New(asr.Options{
		ModelPath: cfg.ASR.ModelPath,
		Language:  cfg.ASR.Language,
		Threads:   cfg.ASR.Threads,
	}, logger)
}

// NewSource returns a WAV replay source when input is set, otherwise the
// configured microphone, plus a short description for status output.
func NewSource(cfg *config.Config, logger *logrus.Logger, input string, realtime bool) (capture.Source, string, error) {
	if input != "" {
		src, err := capture.OpenWAV(input, cfg.Audio.FrameMS, realtime)
		if err != nil {
			return nil, "", err
		}
		return src, "file:" + input, nil
	}
	return &capture.Mic{
		DeviceName:  cfg.Audio.DeviceName,
		DeviceIndex: cfg.Audio.DeviceIndex,
		FrameMS:     cfg.Audio.FrameMS,
		Logger:      logger,
	}, "mic", nil
}
