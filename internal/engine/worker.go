package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync/atomic"
	"time"

	"github.com/spf13/afero"

	"waveline.click/internal/decode"
	"waveline.click/internal/device"
)

const (
	// chunkFrames is how many frames are decoded per loop iteration:
	// roughly 46ms at 44.1kHz, small enough to keep command latency low.
	chunkFrames = 2048

	// writeStallTimeout bounds how long a full-buffer wait can outlast a
	// missed space signal.
	writeStallTimeout = 50 * time.Millisecond

	// drainPollInterval paces end-of-stream drain checks.
	drainPollInterval = 25 * time.Millisecond

	// frameErrorLimit is how many consecutive undecodable chunks are
	// skipped before the session is declared dead.
	frameErrorLimit = 16
)

// snapshot publishes worker-owned values the emitter goroutine may read.
type snapshot struct {
	active    atomic.Bool
	gen       atomic.Uint64
	rate      atomic.Int64
	durFrames atomic.Int64
	state     atomic.Int32
}

// worker is the decode thread: the sole producer into the ring buffer and
// the sole owner of the player state, the session and the decoder stream.
// Everything it shares with the render callback and the emitter is atomic.
type worker struct {
	fs       afero.Fs
	registry *decode.Registry
	driver   device.Driver
	sink     Sink
	cmds     chan command
	done     chan struct{}

	bufferMs int
	device   string

	// shared with the render callback
	paused atomic.Bool
	volume atomic.Uint32
	ring   atomic.Pointer[RingBuffer]

	// shared with the emitter
	snap    snapshot
	tracker positionTracker

	// worker-owned state
	state      State
	sess       *session
	file       afero.File
	generation uint64
	loopArmed  bool
	loopStart  int64
	loopEnd    int64
	chunk      []byte
	pending    []byte
	frameErrs  int
	closing    bool
}

func newWorker(fs afero.Fs, driver device.Driver, sink Sink, cmds chan command, bufferMs int, preferredDevice string) *worker {
	w := &worker{
		fs:       fs,
		registry: decode.NewDefaultRegistry(),
		driver:   driver,
		sink:     sink,
		cmds:     cmds,
		done:     make(chan struct{}),
		bufferMs: bufferMs,
		device:   preferredDevice,
		state:    StateIdle,
	}
	w.volume.Store(math.Float32bits(1.0))
	w.snap.state.Store(int32(StateIdle))
	return w
}

// render fills the output buffer from the ring. It runs in the audio
// callback context: atomic loads, a lock-free ring read and an in-place
// volume scale — no locks, no allocation, no I/O.
func (w *worker) render(out []byte) {
	if w.paused.Load() {
		zeroBytes(out)
		return
	}
	rb := w.ring.Load()
	if rb == nil {
		zeroBytes(out)
		return
	}
	frames := rb.Read(out)
	if frames == 0 {
		return
	}
	v := math.Float32frombits(w.volume.Load())
	if v != 1.0 {
		scaleS16(out[:frames*rb.FrameBytes()], v)
	}
}

// run is the worker loop. Decode failures of any kind become state
// transitions; a panic in a decoder must never take the process down.
func (w *worker) run() {
	defer close(w.done)
	for !w.closing {
		w.step()
	}
	w.teardownSession()
	if err := w.driver.Close(); err != nil {
		slog.Warn("output driver close failed", "error", err)
	}
	slog.Debug("decode worker exited")
}

func (w *worker) step() {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("decode worker recovered from panic", "panic", r)
			w.failSession(fmt.Sprintf("internal decode failure: %v", r))
		}
	}()

	// Apply everything already queued without blocking.
drain:
	for {
		select {
		case cmd, ok := <-w.cmds:
			if !ok {
				w.closing = true
				return
			}
			w.handle(cmd)
			if w.closing {
				return
			}
		default:
			break drain
		}
	}

	switch {
	case w.sess == nil || w.state == StatePaused || w.state == StateEnded || w.state == StateError:
		// Nothing to produce. Block on the control channel: zero CPU
		// while idle or paused, woken by the next command.
		cmd, ok := <-w.cmds
		if !ok {
			w.closing = true
			return
		}
		w.handle(cmd)
	case w.sess.eof && len(w.pending) == 0:
		// The ring can reject the tail of the last chunk; pending must be
		// flushed before the drain wait, or the track ends short.
		w.awaitDrain()
	default:
		w.pump()
	}
}

func (w *worker) handle(cmd command) {
	slog.Debug("applying control command", "command", cmd.kind.String())
	switch cmd.kind {
	case cmdStream:
		w.startStream(cmd)
	case cmdSeek:
		w.seek(cmd.position)
	case cmdSetPaused:
		w.setPaused(cmd.paused)
	case cmdSetVolume:
		w.setVolume(cmd.volume)
	case cmdSetLoop:
		w.setLoop(cmd.loopStart, cmd.loopEnd)
	case cmdClearLoop:
		w.clearLoop()
	case cmdChangeDevice:
		w.changeDevice(cmd.deviceID)
	case cmdStop:
		w.stop()
	case cmdShutdown:
		w.closing = true
	}
}

// startStream replaces any active session with a new one for cmd.path.
func (w *worker) startStream(cmd command) {
	w.teardownSession()
	w.transition(StateLoading)

	file, err := w.fs.Open(cmd.path)
	if err != nil {
		w.failSession(fmt.Sprintf("cannot open %s: %v", cmd.path, err))
		return
	}

	stream, err := w.registry.Open(cmd.path, file)
	if err != nil {
		file.Close()
		w.failSession(fmt.Sprintf("cannot decode %s: %v", cmd.path, err))
		return
	}

	sess := &session{
		path:           cmd.path,
		stream:         stream,
		sampleRate:     stream.SampleRate(),
		channels:       stream.Channels(),
		generation:     w.generation,
		durationFrames: stream.Length(),
	}

	cfg := device.StreamConfig{SampleRate: sess.sampleRate, Channels: sess.channels}
	if err := w.openOutput(cfg); err != nil {
		stream.Close()
		file.Close()
		w.failSession(fmt.Sprintf("cannot open output device: %v", err))
		return
	}

	w.sess = sess
	w.file = file
	w.chunk = make([]byte, chunkFrames*sess.frameBytes())
	w.pending = nil
	w.frameErrs = 0
	w.setVolume(cmd.volume)
	w.paused.Store(false)

	if cmd.position > 0 {
		target := sess.clampFrame(int64(cmd.position * float64(sess.sampleRate)))
		if err := stream.Seek(target); err != nil {
			slog.Warn("initial seek failed, starting from the beginning",
				"path", cmd.path, "position", cmd.position, "error", err)
			target = 0
		}
		sess.sourceFrame = target
	}

	rb := NewRingBuffer(sess.sampleRate, sess.channels, w.bufferMs)
	w.ring.Store(rb)
	w.tracker.reset(sess.sourceFrame)

	w.snap.rate.Store(int64(sess.sampleRate))
	w.snap.durFrames.Store(sess.durationFrames)
	w.snap.gen.Store(sess.generation)
	w.snap.active.Store(true)

	if err := w.driver.Start(); err != nil {
		w.failSession(fmt.Sprintf("cannot start output device: %v", err))
		return
	}

	slog.Info("session started",
		"path", cmd.path,
		"sample_rate", sess.sampleRate,
		"channels", sess.channels,
		"duration_s", sess.durationSeconds(),
		"generation", sess.generation)
}

// openOutput binds the output stream, falling back to the default device
// when the preferred one cannot be opened.
func (w *worker) openOutput(cfg device.StreamConfig) error {
	err := w.driver.Open(cfg, w.device, w.render)
	if err == nil {
		return nil
	}
	if w.device == "" {
		return err
	}

	slog.Warn("preferred device unavailable, falling back to default",
		"device_id", w.device, "error", err)
	w.emitError(SeverityRecoverable,
		fmt.Sprintf("preferred output device unavailable: %v", err))
	w.device = ""
	return w.driver.Open(cfg, "", w.render)
}

// seek repositions the decoder natively and invalidates all buffered audio.
// The generation bump guarantees no pre-seek frame survives, even ones
// already handed to the ring.
func (w *worker) seek(position float64) {
	sess := w.sess
	if sess == nil || sess.stream == nil {
		slog.Debug("seek ignored, no active session", "position", position)
		return
	}

	target := sess.clampFrame(int64(position * float64(sess.sampleRate)))

	w.generation++
	sess.generation = w.generation
	w.snap.gen.Store(w.generation)

	if rb := w.ring.Load(); rb != nil {
		rb.Clear()
	}
	w.pending = nil

	// An explicit seek outside an armed loop region disarms the loop.
	if w.loopArmed && (target < w.loopStart || target >= w.loopEnd) {
		slog.Debug("seek outside loop region, clearing loop",
			"target_frame", target,
			"loop_start", w.loopStart,
			"loop_end", w.loopEnd)
		w.clearLoop()
	}

	if err := sess.stream.Seek(target); err != nil {
		slog.Error("decoder seek failed", "path", sess.path, "position", position, "error", err)
		w.emitError(SeverityRecoverable, fmt.Sprintf("seek failed: %v", err))
		return
	}

	sess.sourceFrame = target
	sess.eof = sess.durationFrames >= 0 && target >= sess.durationFrames
	w.tracker.reset(target)
	w.frameErrs = 0

	if w.state == StateEnded && !sess.eof {
		w.transition(StatePlaying)
	}

	slog.Debug("seek applied",
		"position", position,
		"target_frame", target,
		"generation", w.generation)
}

// setPaused flips the shared pause flag. The output callback observes it
// within one callback period; the decode loop blocks on the control channel
// while paused. The paused flag is orthogonal to the generation: a seek
// while paused re-arms but stays paused.
func (w *worker) setPaused(paused bool) {
	w.paused.Store(paused)
	if paused && w.state == StatePlaying {
		w.transition(StatePaused)
	} else if !paused && w.state == StatePaused {
		w.transition(StatePlaying)
	}
}

func (w *worker) setVolume(volume float32) {
	if volume < 0 {
		volume = 0
	} else if volume > 1 {
		volume = 1
	}
	w.volume.Store(math.Float32bits(volume))
	slog.Debug("volume applied", "volume", volume)
}

func (w *worker) setLoop(start, end float64) {
	sess := w.sess
	if sess == nil {
		slog.Debug("loop ignored, no active session")
		return
	}
	if start < 0 || end <= start {
		w.emitError(SeverityRecoverable,
			fmt.Sprintf("invalid loop region [%f, %f)", start, end))
		return
	}

	w.loopStart = sess.clampFrame(int64(start * float64(sess.sampleRate)))
	w.loopEnd = sess.clampFrame(int64(end * float64(sess.sampleRate)))
	if w.loopEnd <= w.loopStart {
		w.emitError(SeverityRecoverable, "loop region is empty after clamping")
		return
	}
	w.loopArmed = true

	slog.Info("loop region armed",
		"loop_start_s", start,
		"loop_end_s", end,
		"loop_start_frame", w.loopStart,
		"loop_end_frame", w.loopEnd)
}

func (w *worker) clearLoop() {
	if w.loopArmed {
		slog.Info("loop region cleared")
	}
	w.loopArmed = false
}

// changeDevice rebinds the output. A failed switch keeps the previous
// device and is recoverable; losing all devices is fatal for the session.
func (w *worker) changeDevice(deviceID string) {
	if err := w.driver.SwitchDevice(deviceID); err != nil {
		slog.Warn("device change failed", "device_id", deviceID, "error", err)
		w.emitError(SeverityRecoverable,
			fmt.Sprintf("cannot switch to device %s: %v", deviceID, err))

		if devices, derr := w.driver.Devices(); derr != nil || len(devices) == 0 {
			w.failSession("no output device available")
		}
		return
	}
	w.device = deviceID
	slog.Info("output device changed", "device_id", deviceID)
}

// stop ends the session and returns to Idle.
func (w *worker) stop() {
	w.teardownSession()
	w.paused.Store(false)
	w.transition(StateIdle)
}

// pump decodes one chunk and feeds the ring buffer, handling loop wrap,
// end of stream and frame-level decode errors.
func (w *worker) pump() {
	sess := w.sess
	rb := w.ring.Load()
	if rb == nil {
		return
	}

	// Flush leftovers from a previous short write before decoding more.
	if len(w.pending) > 0 {
		w.flush(rb)
		return
	}

	if w.loopArmed && sess.sourceFrame >= w.loopEnd {
		w.wrapLoop()
		return
	}

	want := chunkFrames
	if w.loopArmed {
		if remain := w.loopEnd - sess.sourceFrame; remain < int64(want) {
			want = int(remain)
		}
	}

	fb := sess.frameBytes()
	n, err := io.ReadFull(sess.stream, w.chunk[:want*fb])
	if whole := n - n%fb; whole > 0 {
		w.pending = w.chunk[:whole]
		w.flush(rb)
	}

	switch {
	case err == nil:
		w.frameErrs = 0
	case errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF):
		if w.loopArmed {
			// Source ended before loop_end; wrap anyway.
			w.wrapLoop()
			return
		}
		slog.Debug("decoder exhausted", "path", sess.path, "source_frame", sess.sourceFrame)
		sess.eof = true
	default:
		w.skipCorruptChunk(err)
	}
}

// flush writes pending frames to the ring; on a full buffer it waits for
// space, the next command or a timeout, so cancellation latency stays
// bounded by one loop iteration.
func (w *worker) flush(rb *RingBuffer) {
	sess := w.sess
	frames := rb.Write(w.pending)
	if frames > 0 {
		n := frames * sess.frameBytes()
		w.tracker.append(sess.sourceFrame, int64(frames))
		sess.framesWritten += int64(frames)
		sess.sourceFrame += int64(frames)
		w.pending = w.pending[n:]
		if w.state == StateLoading {
			// A pause issued while still loading must not surface as Playing.
			if w.paused.Load() {
				w.transition(StatePaused)
			} else {
				w.transition(StatePlaying)
			}
		}
	}
	if len(w.pending) == 0 {
		w.pending = nil
		return
	}

	select {
	case cmd, ok := <-w.cmds:
		if !ok {
			w.closing = true
			return
		}
		w.handle(cmd)
	case <-rb.Space():
	case <-time.After(writeStallTimeout):
	}
}

// wrapLoop repositions the decoder to loop_start. This is an internal seek:
// no generation bump and no ring clear, since audio decoded before the
// boundary still has to play.
func (w *worker) wrapLoop() {
	sess := w.sess
	if err := sess.stream.Seek(w.loopStart); err != nil {
		slog.Error("loop wrap seek failed", "error", err)
		w.emitError(SeverityRecoverable, fmt.Sprintf("loop wrap failed: %v", err))
		w.clearLoop()
		return
	}
	sess.sourceFrame = w.loopStart
	sess.eof = false
	slog.Debug("loop wrapped", "loop_start_frame", w.loopStart)
}

// skipCorruptChunk recovers from a frame-level decode error by hopping the
// decoder past the damage. Sustained failures end the session.
func (w *worker) skipCorruptChunk(err error) {
	sess := w.sess
	w.frameErrs++
	slog.Warn("corrupt audio chunk skipped",
		"path", sess.path,
		"source_frame", sess.sourceFrame,
		"consecutive_errors", w.frameErrs,
		"error", err)

	if w.frameErrs >= frameErrorLimit {
		w.failSession(fmt.Sprintf("sustained decode failures in %s: %v", sess.path, err))
		return
	}

	target := sess.sourceFrame + chunkFrames
	if sess.durationFrames >= 0 && target >= sess.durationFrames {
		sess.eof = true
		return
	}
	if serr := sess.stream.Seek(target); serr != nil {
		w.failSession(fmt.Sprintf("cannot recover decoder position in %s: %v", sess.path, serr))
		return
	}
	sess.sourceFrame = target
}

// awaitDrain lets buffered audio finish playing after the decoder is
// exhausted, then emits Ended. The session stays alive so the final
// position remains readable until the next command.
func (w *worker) awaitDrain() {
	rb := w.ring.Load()
	if rb == nil || rb.BufferedFrames() == 0 || w.paused.Load() {
		w.finishTrack()
		return
	}
	select {
	case cmd, ok := <-w.cmds:
		if !ok {
			w.closing = true
			return
		}
		w.handle(cmd)
	case <-time.After(drainPollInterval):
	}
}

func (w *worker) finishTrack() {
	sess := w.sess
	slog.Info("end of stream",
		"path", sess.path,
		"frames_written", sess.framesWritten,
		"generation", sess.generation)
	w.transition(StateEnded)
	w.sink.Emit(EndOfTrack{Generation: sess.generation})
}

// failSession converts any fatal failure into an Error state plus a
// critical event. Recovery requires a new StreamFile.
func (w *worker) failSession(message string) {
	slog.Error("session failed", "message", message)
	w.teardownSession()
	w.emitError(SeverityCritical, message)
	w.transition(StateError)
}

// teardownSession releases the active session: generation bump first so any
// in-flight frames and events are already stale when the ring is cleared.
func (w *worker) teardownSession() {
	w.generation++
	w.snap.gen.Store(w.generation)
	w.snap.active.Store(false)

	if rb := w.ring.Load(); rb != nil {
		rb.Clear()
	}
	w.ring.Store(nil)

	if err := w.driver.Stop(); err != nil && !errors.Is(err, device.ErrDriverClosed) {
		slog.Debug("driver stop during teardown", "error", err)
	}

	if w.sess != nil {
		w.sess.close()
		w.sess = nil
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	w.pending = nil
	w.loopArmed = false
	w.frameErrs = 0
	w.tracker.reset(0)
}

func (w *worker) transition(next State) {
	if w.state == next {
		return
	}
	prev := w.state
	w.state = next
	w.snap.state.Store(int32(next))

	gen := w.generation
	if w.sess != nil {
		gen = w.sess.generation
	}

	slog.Debug("state transition",
		"previous", prev.String(),
		"current", next.String(),
		"generation", gen)
	w.sink.Emit(StateChange{Previous: prev, Current: next, Generation: gen})
}

func (w *worker) emitError(severity Severity, message string) {
	w.sink.Emit(ErrorEvent{Severity: severity, Message: message})
}

// scaleS16 applies a gain factor to interleaved little-endian 16-bit
// samples in place.
func scaleS16(samples []byte, volume float32) {
	for i := 0; i+1 < len(samples); i += 2 {
		s := int16(samples[i]) | int16(samples[i+1])<<8
		s = int16(float32(s) * volume)
		samples[i] = byte(s)
		samples[i+1] = byte(s >> 8)
	}
}
