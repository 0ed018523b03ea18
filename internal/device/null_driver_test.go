package device

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNullDriverLifecycle(t *testing.T) {
	drv := NewNullDriverWithInterval(5 * time.Millisecond)
	cfg := StreamConfig{SampleRate: 8000, Channels: 2}

	var calls atomic.Int64
	render := func(out []byte) {
		if len(out) != 8000*5/1000*cfg.FrameBytes() {
			t.Errorf("unexpected callback buffer size %d", len(out))
		}
		calls.Add(1)
	}

	if err := drv.Start(); err != ErrDriverNotOpen {
		t.Errorf("expected ErrDriverNotOpen before Open, got %v", err)
	}

	if err := drv.Open(cfg, "", render); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := drv.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	time.Sleep(60 * time.Millisecond)
	if calls.Load() < 5 {
		t.Errorf("expected several render callbacks, got %d", calls.Load())
	}

	if err := drv.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	stopped := calls.Load()
	time.Sleep(30 * time.Millisecond)
	if calls.Load() != stopped {
		t.Error("render callback still running after Stop")
	}

	// Restart works after a stop.
	if err := drv.Start(); err != nil {
		t.Fatalf("restart failed: %v", err)
	}

	if err := drv.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := drv.Start(); err != ErrDriverClosed {
		t.Errorf("expected ErrDriverClosed after Close, got %v", err)
	}
}

func TestNullDriverSwitchDevice(t *testing.T) {
	drv := NewNullDriver()
	defer drv.Close()

	if err := drv.SwitchDevice("anything"); err != ErrDriverNotOpen {
		t.Errorf("expected ErrDriverNotOpen before Open, got %v", err)
	}

	if err := drv.Open(StreamConfig{SampleRate: 44100, Channels: 2}, "", func([]byte) {}); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := drv.SwitchDevice("other"); err != nil {
		t.Errorf("SwitchDevice failed: %v", err)
	}
}

func TestNullDriverDevices(t *testing.T) {
	drv := NewNullDriver()
	defer drv.Close()

	devices, err := drv.Devices()
	if err != nil {
		t.Fatalf("Devices failed: %v", err)
	}
	if len(devices) != 1 || !devices[0].IsDefault {
		t.Errorf("expected a single default device, got %+v", devices)
	}
}

func TestStreamConfigFrameBytes(t *testing.T) {
	if got := (StreamConfig{SampleRate: 44100, Channels: 2}).FrameBytes(); got != 4 {
		t.Errorf("expected 4 bytes per stereo frame, got %d", got)
	}
	if got := (StreamConfig{SampleRate: 44100, Channels: 1}).FrameBytes(); got != 2 {
		t.Errorf("expected 2 bytes per mono frame, got %d", got)
	}
}
