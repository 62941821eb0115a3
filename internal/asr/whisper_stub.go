//go:build !whisper

package asr

import "github.com/sirupsen/logrus"

func newWhisperEngine(_ Options, _ *logrus.Logger) (Engine, error) {
	return nil, ErrUnsupported
}
