package device

import (
	"log/slog"
	"sync"
	"time"
)

// NullDriver consumes audio on a software clock without touching any
// hardware. It keeps the producer/consumer machinery honest in tests and on
// headless systems: the render callback is invoked at a fixed cadence with a
// buffer sized to the elapsed interval, exactly like a hardware callback.
type NullDriver struct {
	interval time.Duration

	mu      sync.Mutex
	cfg     StreamConfig
	render  RenderFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
	started bool
	opened  bool
	closed  bool
	device  string
}

// NewNullDriver creates a null driver ticking every 10ms.
func NewNullDriver() *NullDriver {
	return NewNullDriverWithInterval(10 * time.Millisecond)
}

// NewNullDriverWithInterval creates a null driver with a custom callback
// period.
func NewNullDriverWithInterval(interval time.Duration) *NullDriver {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &NullDriver{interval: interval}
}

// Open binds the software clock to the render callback.
func (d *NullDriver) Open(cfg StreamConfig, deviceID string, render RenderFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDriverClosed
	}
	d.stopLocked()

	d.cfg = cfg
	d.render = render
	d.device = deviceID
	d.opened = true

	slog.Debug("null output opened",
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"interval", d.interval)
	return nil
}

// Start launches the consumer clock.
func (d *NullDriver) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDriverClosed
	}
	if !d.opened {
		return ErrDriverNotOpen
	}
	if d.started {
		return nil
	}

	frames := d.cfg.SampleRate * int(d.interval.Milliseconds()) / 1000
	if frames < 1 {
		frames = 1
	}
	buf := make([]byte, frames*d.cfg.FrameBytes())

	stopCh := make(chan struct{})
	d.stopCh = stopCh
	d.started = true
	render := d.render
	interval := d.interval

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stopCh:
				return
			case <-ticker.C:
				render(buf)
			}
		}
	}()
	return nil
}

// Stop halts the consumer clock.
func (d *NullDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	d.stopLocked()
	return nil
}

func (d *NullDriver) stopLocked() {
	if !d.started {
		return
	}
	close(d.stopCh)
	d.started = false
	d.mu.Unlock()
	d.wg.Wait()
	d.mu.Lock()
}

// SwitchDevice accepts any identifier; there is no hardware to rebind.
func (d *NullDriver) SwitchDevice(deviceID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDriverClosed
	}
	if !d.opened {
		return ErrDriverNotOpen
	}
	d.device = deviceID
	return nil
}

// Devices reports the single virtual output.
func (d *NullDriver) Devices() ([]DeviceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDriverClosed
	}
	return []DeviceInfo{{ID: "null", Name: "Null Output", IsDefault: true}}, nil
}

// Close stops the clock permanently.
func (d *NullDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.stopLocked()
	d.closed = true
	return nil
}
