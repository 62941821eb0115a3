//go:build !whisper

package vad

import (
	"errors"

	"earshot/internal/audio"
)

// NewWebRTCMeter is unavailable without cgo dependencies.
func NewWebRTCMeter(audio.Format, int, int) (Meter, error) {
	return nil, errors.New("webrtc vad: build with '-tags whisper' to enable")
}
