//go:build cgo

package device

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/ebitengine/oto/v3"
)

const otoAvailable = true

// oto allows exactly one context per process, fixed to its first stream
// format. The shared state below caches it for the driver's lifetime.
var (
	otoMu   sync.Mutex
	otoCtx  *oto.Context
	otoRate int
	otoCh   int
)

// OtoDriver plays through ebitengine/oto. It has no device selection or
// enumeration; it exists as a fallback where miniaudio is not usable. Like
// malgo it needs cgo on Linux (ALSA), so builds without cgo get the stub.
type OtoDriver struct {
	player  *oto.Player
	cfg     StreamConfig
	started bool
	closed  bool
}

// NewOtoDriver creates an oto-backed output driver.
func NewOtoDriver() (*OtoDriver, error) {
	return &OtoDriver{}, nil
}

// renderReader adapts the render callback to the io.Reader oto pulls from.
type renderReader struct {
	render RenderFunc
}

func (r *renderReader) Read(p []byte) (int, error) {
	r.render(p)
	return len(p), nil
}

// Open binds the default output to the render callback.
func (d *OtoDriver) Open(cfg StreamConfig, deviceID string, render RenderFunc) error {
	if d.closed {
		return ErrDriverClosed
	}
	if deviceID != "" {
		return fmt.Errorf("%w: oto cannot select output devices", ErrNotSupported)
	}

	ctx, err := sharedOtoContext(cfg)
	if err != nil {
		return err
	}

	if d.player != nil {
		d.player.Close()
	}
	d.player = ctx.NewPlayer(&renderReader{render: render})
	d.cfg = cfg
	d.started = false

	slog.Info("oto playback stream opened",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels)
	return nil
}

func sharedOtoContext(cfg StreamConfig) (*oto.Context, error) {
	otoMu.Lock()
	defer otoMu.Unlock()

	if otoCtx != nil {
		if otoRate != cfg.SampleRate || otoCh != cfg.Channels {
			return nil, fmt.Errorf("%w: oto context is fixed to %d Hz/%d ch",
				ErrNotSupported, otoRate, otoCh)
		}
		return otoCtx, nil
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   cfg.SampleRate,
		ChannelCount: cfg.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		slog.Error("failed to initialize oto context", "error", err)
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	<-ready

	otoCtx = ctx
	otoRate = cfg.SampleRate
	otoCh = cfg.Channels
	return ctx, nil
}

// Start begins pulling audio through the callback.
func (d *OtoDriver) Start() error {
	if d.closed {
		return ErrDriverClosed
	}
	if d.player == nil {
		return ErrDriverNotOpen
	}
	if !d.started {
		d.player.Play()
		d.started = true
	}
	return nil
}

// Stop pauses the stream.
func (d *OtoDriver) Stop() error {
	if d.closed {
		return ErrDriverClosed
	}
	if d.player == nil || !d.started {
		return nil
	}
	d.player.Pause()
	d.started = false
	return nil
}

// SwitchDevice is not supported; the caller treats this as recoverable and
// keeps the current output.
func (d *OtoDriver) SwitchDevice(deviceID string) error {
	return fmt.Errorf("%w: oto cannot switch output devices", ErrNotSupported)
}

// Devices reports the single system default output.
func (d *OtoDriver) Devices() ([]DeviceInfo, error) {
	if d.closed {
		return nil, ErrDriverClosed
	}
	return []DeviceInfo{{ID: "", Name: "System Default", IsDefault: true}}, nil
}

// Close releases the player. The process-wide oto context stays alive; oto
// offers no way to tear it down.
func (d *OtoDriver) Close() error {
	if d.closed {
		return nil
	}
	d.closed = true
	if d.player != nil {
		if err := d.player.Close(); err != nil {
			slog.Warn("failed to close oto player", "error", err)
		}
		d.player = nil
	}
	return nil
}
