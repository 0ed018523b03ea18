// Package engine implements a real-time audio playback engine: a lock-free
// ring buffer between a decode worker and an output device callback, a
// serialized control channel, and a generation counter that invalidates
// stale audio and stale events on every seek or stream change.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/spf13/afero"

	"waveline.click/internal/device"
)

// Engine errors
var (
	ErrEngineClosed = errors.New("engine is closed")
	ErrInvalidLoop  = errors.New("invalid loop region")
)

const (
	// DefaultBufferMs is the ring buffer window. Large enough to ride out
	// scheduling hiccups, small enough that a full drain is inaudible as
	// latency after a seek.
	DefaultBufferMs = 300

	// DefaultEventIntervalMs is the position update cadence.
	DefaultEventIntervalMs = 150

	commandQueueDepth = 64
)

// Options configures an Engine. Zero values select the defaults.
type Options struct {
	// BufferMs is the ring buffer capacity in milliseconds of audio.
	BufferMs int

	// EventIntervalMs is the period between PositionUpdate events.
	EventIntervalMs int

	// Device is the preferred output device ID; empty means system default.
	Device string

	// FS is the filesystem audio files are read from. Defaults to the OS
	// filesystem; tests substitute an in-memory one.
	FS afero.Fs
}

// Engine is the host-facing facade. All control methods enqueue onto the
// worker's command channel and return immediately; a full queue blocks the
// caller rather than dropping the command. Methods are safe for concurrent
// use from any goroutine.
type Engine struct {
	cmds      chan command
	worker    *worker
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
	driver    device.Driver
}

// New creates an engine bound to the given output driver and event sink and
// starts its decode worker. The engine owns the driver and closes it on
// Close.
func New(driver device.Driver, sink Sink, opts Options) *Engine {
	if opts.BufferMs <= 0 {
		opts.BufferMs = DefaultBufferMs
	}
	if opts.EventIntervalMs <= 0 {
		opts.EventIntervalMs = DefaultEventIntervalMs
	}
	if opts.FS == nil {
		opts.FS = afero.NewOsFs()
	}
	if sink == nil {
		sink = NullSink{}
	}

	cmds := make(chan command, commandQueueDepth)
	e := &Engine{
		cmds:   cmds,
		worker: newWorker(opts.FS, driver, sink, cmds, opts.BufferMs, opts.Device),
		closed: make(chan struct{}),
		driver: driver,
	}

	e.wg.Add(2)
	go func() {
		defer e.wg.Done()
		e.worker.run()
	}()
	go func() {
		defer e.wg.Done()
		e.emitPositions(sink, time.Duration(opts.EventIntervalMs)*time.Millisecond)
	}()

	slog.Info("engine started",
		"buffer_ms", opts.BufferMs,
		"event_interval_ms", opts.EventIntervalMs)
	return e
}

// emitPositions periodically publishes the playback position. Timestamps are
// derived from the ring buffer's read cursor, so they track what is audible
// rather than what has been decoded. The generation is sampled around the
// computation; a mismatch means a seek or stream change raced the tick and
// the update is dropped instead of reporting a stale position.
func (e *Engine) emitPositions(sink Sink, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.worker.done:
			return
		case <-ticker.C:
		}

		w := e.worker
		if !w.snap.active.Load() {
			continue
		}
		gen := w.snap.gen.Load()
		rate := w.snap.rate.Load()
		if rate <= 0 {
			continue
		}

		var buffered int64
		if rb := w.ring.Load(); rb != nil {
			buffered = rb.BufferedFrames()
		}
		posFrames := w.tracker.position(buffered)

		var duration float64
		if durFrames := w.snap.durFrames.Load(); durFrames >= 0 {
			duration = float64(durFrames) / float64(rate)
		}

		if w.snap.gen.Load() != gen || !w.snap.active.Load() {
			continue
		}

		sink.Emit(PositionUpdate{
			Position:   float64(posFrames) / float64(rate),
			Duration:   duration,
			Generation: gen,
		})
	}
}

// StreamFile starts playback of path from startPosition seconds at the
// given volume, replacing any active session.
func (e *Engine) StreamFile(path string, startPosition float64, volume float32) error {
	if startPosition < 0 {
		startPosition = 0
	}
	return e.send(command{
		kind:     cmdStream,
		path:     path,
		position: startPosition,
		volume:   clampVolume(volume),
	})
}

// Seek repositions playback to position seconds. Buffered audio from before
// the seek never reaches the output.
func (e *Engine) Seek(position float64) error {
	if position < 0 {
		position = 0
	}
	return e.send(command{kind: cmdSeek, position: position})
}

// SetPaused pauses or resumes playback. Idempotent; takes effect within one
// output callback period.
func (e *Engine) SetPaused(paused bool) error {
	return e.send(command{kind: cmdSetPaused, paused: paused})
}

// SetVolume sets the playback gain, clamped to [0, 1].
func (e *Engine) SetVolume(volume float32) error {
	return e.send(command{kind: cmdSetVolume, volume: clampVolume(volume)})
}

// SetLoop arms a loop region [start, end) in seconds. Playback wraps
// seamlessly at the boundary until the loop is cleared or a seek leaves the
// region.
func (e *Engine) SetLoop(start, end float64) error {
	if start < 0 || end <= start {
		return fmt.Errorf("%w: [%f, %f)", ErrInvalidLoop, start, end)
	}
	return e.send(command{kind: cmdSetLoop, loopStart: start, loopEnd: end})
}

// ClearLoop disarms any active loop region.
func (e *Engine) ClearLoop() error {
	return e.send(command{kind: cmdClearLoop})
}

// SetDevice switches the output to the given device ID. On failure the
// previous device keeps playing and a recoverable ErrorEvent is emitted.
func (e *Engine) SetDevice(deviceID string) error {
	return e.send(command{kind: cmdChangeDevice, deviceID: deviceID})
}

// Stop ends the session and returns the engine to Idle. The engine stays
// usable for a subsequent StreamFile.
func (e *Engine) Stop() error {
	return e.send(command{kind: cmdStop})
}

// State reports the current player state.
func (e *Engine) State() State {
	return State(e.worker.snap.state.Load())
}

// Devices enumerates the available output devices.
func (e *Engine) Devices() ([]device.DeviceInfo, error) {
	return e.driver.Devices()
}

// Underruns reports how often the output callback found the buffer empty
// mid-playback. Diagnostic only.
func (e *Engine) Underruns() int64 {
	rb := e.worker.ring.Load()
	if rb == nil {
		return 0
	}
	return rb.Underruns()
}

// Close shuts the engine down: the worker tears down any session, the
// output driver is closed, and all goroutines exit. Further control calls
// return ErrEngineClosed.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		close(e.closed)
		e.cmds <- command{kind: cmdShutdown}
		e.wg.Wait()
		slog.Info("engine closed")
	})
	return nil
}

// send enqueues a command for the worker. A full queue applies backpressure
// by blocking; commands are never dropped or reordered.
func (e *Engine) send(cmd command) error {
	select {
	case <-e.closed:
		return ErrEngineClosed
	default:
	}
	select {
	case e.cmds <- cmd:
		return nil
	case <-e.worker.done:
		return ErrEngineClosed
	}
}

func clampVolume(v float32) float32 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
