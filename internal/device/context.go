//go:build cgo

package device

import (
	"fmt"
	"log/slog"

	"github.com/gen2brain/malgo"
)

// Context wraps malgo.AllocatedContext with lifecycle management and device
// enumeration.
type Context struct {
	ctx *malgo.AllocatedContext
}

// NewContext initializes a new malgo context with slog integration.
func NewContext() (*Context, error) {
	slog.Debug("initializing audio context")

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		slog.Debug("malgo internal", "message", message)
	})
	if err != nil {
		slog.Error("failed to initialize audio context", "error", err)
		return nil, fmt.Errorf("init audio context: %w", err)
	}

	slog.Info("audio context initialized")
	return &Context{ctx: ctx}, nil
}

// Devices enumerates playback devices known to the context.
func (c *Context) Devices() ([]DeviceInfo, error) {
	if c.ctx == nil {
		return nil, ErrDriverClosed
	}

	infos, err := c.ctx.Devices(malgo.Playback)
	if err != nil {
		slog.Error("device enumeration failed", "error", err)
		return nil, fmt.Errorf("enumerate playback devices: %w", err)
	}

	devices := make([]DeviceInfo, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, DeviceInfo{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}

	slog.Debug("playback devices enumerated", "count", len(devices))
	return devices, nil
}

// lookup finds the malgo device info matching an enumerated ID string.
func (c *Context) lookup(deviceID string) (*malgo.DeviceInfo, error) {
	if c.ctx == nil {
		return nil, ErrDriverClosed
	}

	infos, err := c.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("enumerate playback devices: %w", err)
	}
	for i := range infos {
		if infos[i].ID.String() == deviceID {
			return &infos[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, deviceID)
}

// Close properly cleans up the audio context. malgo requires both Uninit
// and Free.
func (c *Context) Close() error {
	if c.ctx == nil {
		return nil
	}

	if err := c.ctx.Uninit(); err != nil {
		slog.Error("failed to uninitialize audio context", "error", err)
		return err
	}
	c.ctx.Free()
	c.ctx = nil

	slog.Debug("audio context closed")
	return nil
}
