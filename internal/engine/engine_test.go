package engine

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/youpy/go-wav"

	"waveline.click/internal/device"
)

const testSampleRate = 8000

// writeWavFixture generates a stereo 16-bit sine tone on the in-memory
// filesystem.
func writeWavFixture(t *testing.T, fs afero.Fs, path string, seconds float64) {
	t.Helper()

	frames := int(seconds * float64(testSampleRate))
	f, err := fs.Create(path)
	if err != nil {
		t.Fatalf("failed to create fixture file: %v", err)
	}
	defer f.Close()

	w := wav.NewWriter(f, uint32(frames), 2, testSampleRate, 16)
	samples := make([]wav.Sample, frames)
	for i := range samples {
		v := int(3000 * math.Sin(2*math.Pi*220*float64(i)/float64(testSampleRate)))
		samples[i].Values[0] = v
		samples[i].Values[1] = v
	}
	if err := w.WriteSamples(samples); err != nil {
		t.Fatalf("failed to write fixture samples: %v", err)
	}
}

// eventCollector is a thread-safe Sink recording every emitted event.
type eventCollector struct {
	mu     sync.Mutex
	events []Event
}

func (c *eventCollector) Emit(ev Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *eventCollector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *eventCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

// waitFor polls until pred matches an event or the timeout expires.
func (c *eventCollector) waitFor(t *testing.T, timeout time.Duration, what string, pred func(Event) bool) Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, ev := range c.snapshot() {
			if pred(ev) {
				return ev
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
	return nil
}

func newTestEngine(t *testing.T) (*Engine, afero.Fs, *eventCollector) {
	t.Helper()

	fs := afero.NewMemMapFs()
	col := &eventCollector{}
	drv := device.NewNullDriverWithInterval(5 * time.Millisecond)

	eng := New(drv, col, Options{
		BufferMs:        60,
		EventIntervalMs: 20,
		FS:              fs,
	})
	t.Cleanup(func() { eng.Close() })
	return eng, fs, col
}

func isState(s State) func(Event) bool {
	return func(ev Event) bool {
		sc, ok := ev.(StateChange)
		return ok && sc.Current == s
	}
}

func isEndOfTrack(ev Event) bool {
	_, ok := ev.(EndOfTrack)
	return ok
}

func TestStreamFilePlaysToEnd(t *testing.T) {
	eng, fs, col := newTestEngine(t)
	writeWavFixture(t, fs, "/tone.wav", 0.4)

	if err := eng.StreamFile("/tone.wav", 0, 1.0); err != nil {
		t.Fatalf("StreamFile failed: %v", err)
	}

	col.waitFor(t, time.Second, "Playing state", isState(StatePlaying))
	col.waitFor(t, 5*time.Second, "end of track", isEndOfTrack)
	col.waitFor(t, time.Second, "Ended state", isState(StateEnded))

	if got := eng.State(); got != StateEnded {
		t.Errorf("expected StateEnded, got %s", got)
	}

	// Position updates must be monotonic without seeks and finish near the
	// track duration.
	var last, final float64
	for _, ev := range col.snapshot() {
		if pu, ok := ev.(PositionUpdate); ok {
			if pu.Position < last-0.001 {
				t.Errorf("position went backwards: %f after %f", pu.Position, last)
			}
			last = pu.Position
			final = pu.Position
			if pu.Duration < 0.39 || pu.Duration > 0.41 {
				t.Errorf("expected duration ~0.4s, got %f", pu.Duration)
			}
		}
	}
	if final < 0.3 {
		t.Errorf("expected final position near track end, got %f", final)
	}
}

func TestPauseFreezesPositionAndResumeContinues(t *testing.T) {
	eng, fs, col := newTestEngine(t)
	writeWavFixture(t, fs, "/tone.wav", 2.0)

	if err := eng.StreamFile("/tone.wav", 0, 1.0); err != nil {
		t.Fatalf("StreamFile failed: %v", err)
	}
	col.waitFor(t, time.Second, "Playing state", isState(StatePlaying))

	if err := eng.SetPaused(true); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}
	col.waitFor(t, time.Second, "Paused state", isState(StatePaused))

	// Let the pause settle past any buffered callbacks, then sample the
	// position twice; it must not advance.
	time.Sleep(100 * time.Millisecond)
	first := lastPosition(col)
	time.Sleep(200 * time.Millisecond)
	second := lastPosition(col)

	if second > first+0.001 {
		t.Errorf("position advanced while paused: %f -> %f", first, second)
	}

	if err := eng.SetPaused(false); err != nil {
		t.Fatalf("SetPaused(false) failed: %v", err)
	}
	col.waitFor(t, time.Second, "Playing state after resume", func(ev Event) bool {
		sc, ok := ev.(StateChange)
		return ok && sc.Previous == StatePaused && sc.Current == StatePlaying
	})

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if lastPosition(col) > second+0.05 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Error("position did not advance after resume")
}

func TestPauseBeforeFirstAudioEntersPausedState(t *testing.T) {
	eng, fs, col := newTestEngine(t)
	writeWavFixture(t, fs, "/tone.wav", 2.0)

	if err := eng.StreamFile("/tone.wav", 0, 1.0); err != nil {
		t.Fatalf("StreamFile failed: %v", err)
	}
	// Queued behind StreamFile, so the worker sees the pause while the
	// session is still loading.
	if err := eng.SetPaused(true); err != nil {
		t.Fatalf("SetPaused failed: %v", err)
	}

	col.waitFor(t, time.Second, "Paused state", isState(StatePaused))

	// The engine must not settle in Playing while output is muted.
	time.Sleep(100 * time.Millisecond)
	if got := eng.State(); got != StatePaused {
		t.Errorf("expected StatePaused while pause flag is set, got %s", got)
	}

	if err := eng.SetPaused(false); err != nil {
		t.Fatalf("SetPaused(false) failed: %v", err)
	}
	col.waitFor(t, time.Second, "Playing state after resume", isState(StatePlaying))
}

func lastPosition(col *eventCollector) float64 {
	var pos float64
	for _, ev := range col.snapshot() {
		if pu, ok := ev.(PositionUpdate); ok {
			pos = pu.Position
		}
	}
	return pos
}

func TestSeekJumpsAndInvalidatesStaleAudio(t *testing.T) {
	eng, fs, col := newTestEngine(t)
	writeWavFixture(t, fs, "/tone.wav", 2.0)

	if err := eng.StreamFile("/tone.wav", 0, 1.0); err != nil {
		t.Fatalf("StreamFile failed: %v", err)
	}
	col.waitFor(t, time.Second, "Playing state", isState(StatePlaying))
	col.waitFor(t, time.Second, "pre-seek position update", func(ev Event) bool {
		_, ok := ev.(PositionUpdate)
		return ok
	})

	genBefore := lastGeneration(col)
	marker := col.count()

	if err := eng.Seek(1.5); err != nil {
		t.Fatalf("Seek failed: %v", err)
	}

	ev := col.waitFor(t, time.Second, "post-seek position update", func(ev Event) bool {
		pu, ok := ev.(PositionUpdate)
		return ok && pu.Generation > genBefore
	})
	pu := ev.(PositionUpdate)
	if pu.Position < 1.45 {
		t.Errorf("expected post-seek position >= 1.5, got %f", pu.Position)
	}

	// No position update after the seek may carry the old generation.
	for _, ev := range col.snapshot()[marker:] {
		if p, ok := ev.(PositionUpdate); ok && p.Generation > genBefore && p.Position < 1.45 {
			t.Errorf("stale position %f reported under new generation", p.Position)
		}
	}
}

func lastGeneration(col *eventCollector) uint64 {
	var gen uint64
	for _, ev := range col.snapshot() {
		if pu, ok := ev.(PositionUpdate); ok {
			gen = pu.Generation
		}
	}
	return gen
}

func TestStopReturnsIdleAndStopsEvents(t *testing.T) {
	eng, fs, col := newTestEngine(t)
	writeWavFixture(t, fs, "/tone.wav", 5.0)

	if err := eng.StreamFile("/tone.wav", 0, 1.0); err != nil {
		t.Fatalf("StreamFile failed: %v", err)
	}
	col.waitFor(t, time.Second, "Playing state", isState(StatePlaying))

	if err := eng.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	col.waitFor(t, time.Second, "Idle state", isState(StateIdle))

	// Give in-flight ticks time to land, then verify silence.
	time.Sleep(100 * time.Millisecond)
	marker := col.count()
	time.Sleep(200 * time.Millisecond)

	for _, ev := range col.snapshot()[marker:] {
		if _, ok := ev.(PositionUpdate); ok {
			t.Error("position update emitted after stop")
		}
	}

	if got := eng.State(); got != StateIdle {
		t.Errorf("expected StateIdle after stop, got %s", got)
	}
}

func TestLoopRegionWrapsWithoutEnding(t *testing.T) {
	eng, fs, col := newTestEngine(t)
	writeWavFixture(t, fs, "/tone.wav", 1.0)

	if err := eng.StreamFile("/tone.wav", 0, 1.0); err != nil {
		t.Fatalf("StreamFile failed: %v", err)
	}
	if err := eng.SetLoop(0.1, 0.35); err != nil {
		t.Fatalf("SetLoop failed: %v", err)
	}
	col.waitFor(t, time.Second, "Playing state", isState(StatePlaying))

	// Long enough to wrap several times.
	time.Sleep(1200 * time.Millisecond)

	for _, ev := range col.snapshot() {
		if isEndOfTrack(ev) {
			t.Fatal("track ended while loop was armed")
		}
		if pu, ok := ev.(PositionUpdate); ok && pu.Position > 0.45 {
			t.Errorf("position %f escaped the loop region", pu.Position)
		}
	}

	// Clearing the loop lets the track run out.
	if err := eng.ClearLoop(); err != nil {
		t.Fatalf("ClearLoop failed: %v", err)
	}
	col.waitFor(t, 5*time.Second, "end of track after loop cleared", isEndOfTrack)
}

func TestStreamMissingFileFails(t *testing.T) {
	eng, _, col := newTestEngine(t)

	if err := eng.StreamFile("/missing.wav", 0, 1.0); err != nil {
		t.Fatalf("StreamFile enqueue failed: %v", err)
	}

	ev := col.waitFor(t, time.Second, "critical error event", func(ev Event) bool {
		ee, ok := ev.(ErrorEvent)
		return ok && ee.Severity == SeverityCritical
	})
	if ee := ev.(ErrorEvent); ee.Message == "" {
		t.Error("expected a descriptive error message")
	}
	col.waitFor(t, time.Second, "Error state", isState(StateError))

	// The engine recovers on the next stream command.
	fs := eng.worker.fs
	writeWavFixture(t, fs, "/tone.wav", 0.2)
	if err := eng.StreamFile("/tone.wav", 0, 1.0); err != nil {
		t.Fatalf("StreamFile after error failed: %v", err)
	}
	col.waitFor(t, 5*time.Second, "end of track after recovery", isEndOfTrack)
}

func TestStartPositionOffset(t *testing.T) {
	eng, fs, col := newTestEngine(t)
	writeWavFixture(t, fs, "/tone.wav", 1.0)

	if err := eng.StreamFile("/tone.wav", 0.8, 1.0); err != nil {
		t.Fatalf("StreamFile failed: %v", err)
	}

	ev := col.waitFor(t, time.Second, "first position update", func(ev Event) bool {
		_, ok := ev.(PositionUpdate)
		return ok
	})
	if pu := ev.(PositionUpdate); pu.Position < 0.75 {
		t.Errorf("expected playback to start near 0.8s, got %f", pu.Position)
	}
	col.waitFor(t, 3*time.Second, "end of track", isEndOfTrack)
}

func TestSetLoopValidation(t *testing.T) {
	eng, _, _ := newTestEngine(t)

	if err := eng.SetLoop(5, 2); err == nil {
		t.Error("expected error for inverted loop region")
	}
	if err := eng.SetLoop(-1, 2); err == nil {
		t.Error("expected error for negative loop start")
	}
}

func TestCloseRejectsFurtherCommands(t *testing.T) {
	fs := afero.NewMemMapFs()
	drv := device.NewNullDriverWithInterval(5 * time.Millisecond)
	eng := New(drv, nil, Options{FS: fs})

	if err := eng.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := eng.Seek(1); err != ErrEngineClosed {
		t.Errorf("expected ErrEngineClosed, got %v", err)
	}
	if err := eng.Stop(); err != ErrEngineClosed {
		t.Errorf("expected ErrEngineClosed, got %v", err)
	}
	// Closing twice is fine.
	if err := eng.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestVolumeClamp(t *testing.T) {
	if got := clampVolume(1.5); got != 1.0 {
		t.Errorf("expected clamp to 1.0, got %f", got)
	}
	if got := clampVolume(-0.5); got != 0.0 {
		t.Errorf("expected clamp to 0.0, got %f", got)
	}
	if got := clampVolume(0.25); got != 0.25 {
		t.Errorf("expected 0.25 unchanged, got %f", got)
	}
}

func TestScaleS16(t *testing.T) {
	samples := []byte{0x00, 0x10, 0x00, 0xF0} // 4096, -4096
	scaleS16(samples, 0.5)

	s0 := int16(samples[0]) | int16(samples[1])<<8
	s1 := int16(samples[2]) | int16(samples[3])<<8
	if s0 != 2048 {
		t.Errorf("expected 2048, got %d", s0)
	}
	if s1 != -2048 {
		t.Errorf("expected -2048, got %d", s1)
	}
}
