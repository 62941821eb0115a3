//go:build whisper

package capture

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"earshot/internal/audio"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// Mic reads from a PortAudio input device.
type Mic struct {
	DeviceName  string
	DeviceIndex int
	FrameMS     int
	Logger      *logrus.Logger
}

func (m *Mic) Run(ctx context.Context, fn FrameFunc) error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	dev, err := selectDevice(m.DeviceName, m.DeviceIndex)
	if err != nil {
		return err
	}
	f := audio.PCM16kMono
	frameSamples := f.SampleRate * m.FrameMS / 1000
	buf := make([]int16, frameSamples)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: f.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(f.SampleRate),
		FramesPerBuffer: frameSamples,
	}, &buf)
	if err != nil {
		return fmt.Errorf("open stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Start(); err != nil {
		return fmt.Errorf("start stream: %w", err)
	}
	defer func() { _ = stream.Stop() }()

	m.Logger.Infof("capturing from mic: %s @ %d Hz", dev.Name, f.SampleRate)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err := stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				m.Logger.Warn("input overflow")
				continue
			}
			return fmt.Errorf("stream read: %w", err)
		}
		fn(audio.Int16ToPCM(buf))
	}
}

func selectDevice(preferred string, index int) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if index >= 0 {
		if index < len(devs) && devs[index].MaxInputChannels > 0 {
			return devs[index], nil
		}
		return nil, fmt.Errorf("device index %d is not an input device", index)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(preferred)) {
				return d, nil
			}
		}
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input devices found")
}

// ListDevices returns every device with at least one input channel.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()
	out := []Device{}
	for i, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			Index:     i,
			Name:      d.Name,
			Channels:  d.MaxInputChannels,
			LatencyMs: d.DefaultLowInputLatency.Seconds() * 1000,
			Default:   def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}
