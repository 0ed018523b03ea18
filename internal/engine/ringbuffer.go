package engine

import (
	"log/slog"
	"sync/atomic"
)

// RingBuffer is a fixed-capacity single-producer/single-consumer PCM queue.
// The decode worker is the only producer, the output driver callback the only
// consumer. Both cursors are monotonic byte counters: the producer advances
// the write cursor with a plain store, the consumer advances the read cursor
// with a CAS so that a concurrent Clear (producer thread) can jump it
// forward safely.
//
// Read is safe for a real-time audio callback: it never blocks, never locks
// and never allocates. An empty buffer produces silence and bumps the
// underrun counter; it is not an error.
type RingBuffer struct {
	buf        []byte
	capacity   int64
	frameBytes int

	widx atomic.Int64
	ridx atomic.Int64

	// gen is bumped by Clear. A consumer that observes a generation change
	// mid-read zeroes its output instead of delivering stale audio.
	gen atomic.Int64

	underruns atomic.Int64

	// space carries at most one pending "consumer freed space" signal for
	// the producer to wait on. The consumer posts it with a non-blocking
	// send, which is callback-safe.
	space chan struct{}
}

// NewRingBuffer creates a buffer holding bufferMs of audio at the given
// session format. Assumes 16-bit interleaved PCM (2 bytes per sample).
func NewRingBuffer(sampleRate, channels, bufferMs int) *RingBuffer {
	frameBytes := channels * 2
	frames := sampleRate * bufferMs / 1000
	if frames < 1 {
		frames = 1
	}
	capacity := int64(frames) * int64(frameBytes)

	slog.Debug("creating ring buffer",
		"sample_rate", sampleRate,
		"channels", channels,
		"buffer_ms", bufferMs,
		"capacity_frames", frames,
		"capacity_bytes", capacity)

	return &RingBuffer{
		buf:        make([]byte, capacity),
		capacity:   capacity,
		frameBytes: frameBytes,
		space:      make(chan struct{}, 1),
	}
}

// FrameBytes returns the size of one interleaved frame in bytes.
func (rb *RingBuffer) FrameBytes() int {
	return rb.frameBytes
}

// CapacityFrames returns the total capacity in frames.
func (rb *RingBuffer) CapacityFrames() int64 {
	return rb.capacity / int64(rb.frameBytes)
}

// Write copies as many whole frames from p as currently fit and returns the
// number of frames accepted. It never blocks; the producer applies
// backpressure by waiting on Space() and retrying. Producer thread only.
func (rb *RingBuffer) Write(p []byte) int {
	n := int64(len(p) - len(p)%rb.frameBytes)
	if n == 0 {
		return 0
	}

	w := rb.widx.Load()
	r := rb.ridx.Load()
	free := rb.capacity - (w - r)
	if free <= 0 {
		return 0
	}
	if n > free {
		n = free - free%int64(rb.frameBytes)
		if n == 0 {
			return 0
		}
	}

	off := w % rb.capacity
	first := rb.capacity - off
	if first >= n {
		copy(rb.buf[off:off+n], p[:n])
	} else {
		copy(rb.buf[off:], p[:first])
		copy(rb.buf[:n-first], p[first:n])
	}
	rb.widx.Store(w + n)

	return int(n) / rb.frameBytes
}

// Read fills p from the buffer and returns the number of frames delivered.
// Any remainder of p is zero-filled (silence). Consumer context only.
func (rb *RingBuffer) Read(p []byte) int {
	want := int64(len(p) - len(p)%rb.frameBytes)
	if want == 0 {
		return 0
	}

	g := rb.gen.Load()
	r := rb.ridx.Load()
	w := rb.widx.Load()

	avail := w - r
	if avail < 0 {
		avail = 0
	}
	take := want
	if take > avail {
		take = avail - avail%int64(rb.frameBytes)
	}

	if take > 0 {
		off := r % rb.capacity
		first := rb.capacity - off
		if first >= take {
			copy(p[:take], rb.buf[off:off+take])
		} else {
			copy(p[:first], rb.buf[off:])
			copy(p[first:take], rb.buf[:take-first])
		}

		// A Clear raced us: the bytes just copied belong to a superseded
		// generation, so deliver silence instead.
		if rb.gen.Load() != g || !rb.ridx.CompareAndSwap(r, r+take) {
			zeroBytes(p)
			return 0
		}
		rb.signalSpace()
	}

	if take < want {
		rb.underruns.Add(1)
	}
	zeroBytes(p[take:])
	return int(take) / rb.frameBytes
}

// Clear discards all buffered audio by bumping the generation and jumping the
// read cursor to the write cursor. Producer thread only; called on seek and
// stop so that no pre-seek audio survives the cursor jump.
func (rb *RingBuffer) Clear() {
	rb.gen.Add(1)
	for {
		r := rb.ridx.Load()
		w := rb.widx.Load()
		if r >= w || rb.ridx.CompareAndSwap(r, w) {
			break
		}
	}
	rb.signalSpace()
}

// BufferedFrames reports how many frames are waiting to be consumed. The
// value is a racy snapshot, suitable for drain checks and diagnostics.
func (rb *RingBuffer) BufferedFrames() int64 {
	d := rb.widx.Load() - rb.ridx.Load()
	if d < 0 {
		return 0
	}
	return d / int64(rb.frameBytes)
}

// Underruns returns the number of reads that found less data than requested.
func (rb *RingBuffer) Underruns() int64 {
	return rb.underruns.Load()
}

// Space returns a channel that receives a signal whenever the consumer frees
// capacity. The producer selects on it together with the control channel so
// a full buffer never delays command handling.
func (rb *RingBuffer) Space() <-chan struct{} {
	return rb.space
}

func (rb *RingBuffer) signalSpace() {
	select {
	case rb.space <- struct{}{}:
	default:
	}
}

func zeroBytes(p []byte) {
	for i := range p {
		p[i] = 0
	}
}
