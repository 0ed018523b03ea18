package device

import "errors"

// Common errors for output driver implementations
var (
	ErrDriverClosed      = errors.New("output driver is closed")
	ErrDriverNotOpen     = errors.New("output driver has no open stream")
	ErrDeviceUnavailable = errors.New("output device unavailable")
	ErrNotSupported      = errors.New("operation not supported by this driver")
)

// DeviceInfo describes one playback device known to a driver.
type DeviceInfo struct {
	ID        string
	Name      string
	IsDefault bool
}

// StreamConfig fixes the hardware stream format for one session. The engine
// re-negotiates by closing the stream and opening a new one.
type StreamConfig struct {
	SampleRate int
	Channels   int
}

// FrameBytes returns the size of one interleaved S16 frame.
func (c StreamConfig) FrameBytes() int {
	return c.Channels * 2
}

// RenderFunc fills out with interleaved S16 PCM. It is invoked from the
// driver's real-time context and must always fill the whole slice: silence
// on underrun, never a partial buffer.
type RenderFunc func(out []byte)

// Driver abstracts a playback backend. Implementations form a small closed
// set (malgo, oto, null) selected by the factory at construction time.
// Drivers are driven from the decode worker goroutine only; the render
// callback is the single concurrent entry point.
type Driver interface {
	// Open binds a hardware stream with the given format to the render
	// callback. deviceID selects an output from Devices; empty means the
	// system default. The stream starts paused; call Start.
	Open(cfg StreamConfig, deviceID string, render RenderFunc) error

	Start() error
	Stop() error

	// SwitchDevice rebinds the open stream to another output. The new
	// device is opened before the old one is torn down; on failure the old
	// device keeps playing and the error is returned.
	SwitchDevice(deviceID string) error

	// Devices enumerates playback devices.
	Devices() ([]DeviceInfo, error)

	Close() error
}
