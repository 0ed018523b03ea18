//go:build cgo

package device

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

const malgoAvailable = true

// MalgoDriver plays through miniaudio. The hardware invokes the data
// callback at its own cadence; the callback only forwards to the render
// function, so no driver state is touched from the real-time context.
type MalgoDriver struct {
	ctx    *Context
	cfg    StreamConfig
	render RenderFunc

	device   *malgo.Device
	deviceID string
	started  bool
	opened   bool
	closed   bool
}

// NewMalgoDriver creates a malgo-backed output driver with its own context.
func NewMalgoDriver() (*MalgoDriver, error) {
	ctx, err := NewContext()
	if err != nil {
		return nil, err
	}
	return &MalgoDriver{ctx: ctx}, nil
}

// Open binds a playback device to the render callback.
func (d *MalgoDriver) Open(cfg StreamConfig, deviceID string, render RenderFunc) error {
	if d.closed {
		return ErrDriverClosed
	}
	if render == nil {
		return fmt.Errorf("render callback is nil")
	}

	if d.device != nil {
		d.teardown(d.device)
		d.device = nil
	}

	d.cfg = cfg
	d.render = render

	device, err := d.initDevice(deviceID)
	if err != nil {
		return err
	}

	d.device = device
	d.deviceID = deviceID
	d.opened = true
	d.started = false

	slog.Info("playback device opened",
		"device_id", deviceID,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels)
	return nil
}

// initDevice creates a malgo device bound to the render callback. An empty
// deviceID selects the system default output.
func (d *MalgoDriver) initDevice(deviceID string) (*malgo.Device, error) {
	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(d.cfg.Channels)
	deviceConfig.SampleRate = uint32(d.cfg.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if deviceID != "" {
		info, err := d.ctx.lookup(deviceID)
		if err != nil {
			return nil, err
		}
		deviceConfig.Playback.DeviceID = info.ID.Pointer()
	}

	render := d.render
	callbacks := malgo.DeviceCallbacks{
		Data: func(out, in []byte, frames uint32) {
			render(out)
		},
	}

	device, err := malgo.InitDevice(d.ctx.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		slog.Error("failed to initialize playback device",
			"device_id", deviceID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	return device, nil
}

// Start begins pulling audio through the callback.
func (d *MalgoDriver) Start() error {
	if d.closed {
		return ErrDriverClosed
	}
	if d.device == nil {
		return ErrDriverNotOpen
	}
	if d.started {
		return nil
	}
	if err := d.device.Start(); err != nil {
		slog.Error("failed to start playback device", "error", err)
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	d.started = true
	return nil
}

// Stop halts the hardware callback. Buffered engine audio stays queued.
func (d *MalgoDriver) Stop() error {
	if d.closed {
		return ErrDriverClosed
	}
	if d.device == nil || !d.started {
		return nil
	}
	if err := d.device.Stop(); err != nil {
		slog.Warn("failed to stop playback device", "error", err)
	}
	d.started = false
	return nil
}

// SwitchDevice opens the new device before tearing down the old one so the
// audible gap stays minimal. On failure the old device keeps playing.
func (d *MalgoDriver) SwitchDevice(deviceID string) error {
	if d.closed {
		return ErrDriverClosed
	}
	if !d.opened {
		return ErrDriverNotOpen
	}
	if deviceID == d.deviceID {
		return nil
	}

	next, err := d.initDevice(deviceID)
	if err != nil {
		slog.Warn("device switch failed, keeping current device",
			"device_id", deviceID, "error", err)
		return err
	}
	if d.started {
		if err := next.Start(); err != nil {
			next.Uninit()
			slog.Warn("new device failed to start, keeping current device",
				"device_id", deviceID, "error", err)
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
	}

	old := d.device
	d.device = next
	d.deviceID = deviceID
	d.teardown(old)

	slog.Info("playback device switched", "device_id", deviceID)
	return nil
}

// Devices enumerates playback devices.
func (d *MalgoDriver) Devices() ([]DeviceInfo, error) {
	if d.closed {
		return nil, ErrDriverClosed
	}
	return d.ctx.Devices()
}

// Close tears down the device and the context.
func (d *MalgoDriver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true

	if d.device != nil {
		d.teardown(d.device)
		d.device = nil
	}
	if d.ctx != nil {
		return d.ctx.Close()
	}
	return nil
}

func (d *MalgoDriver) teardown(device *malgo.Device) {
	if device == nil {
		return
	}
	device.Stop()
	device.Uninit()
}
