//go:build !whisper

package capture

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Mic is unavailable without PortAudio.
type Mic struct {
	DeviceName  string
	DeviceIndex int
	FrameMS     int
	Logger      *logrus.Logger
}

func (m *Mic) Run(context.Context, FrameFunc) error { return ErrUnsupported }

func ListDevices() ([]Device, error) { return nil, ErrUnsupported }
