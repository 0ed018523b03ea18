package engine

import "sync"

// posSegment is a contiguous run of source frames handed to the ring buffer.
type posSegment struct {
	source int64
	frames int64
}

// positionTracker maps the ring buffer's consumption back to source-frame
// positions. The decode worker appends a segment per ring write; the emitter
// asks for the position of the frame currently at the read cursor. Because
// consumption is strictly FIFO the mapping is a walk over the segment queue,
// which makes reported positions exact across seeks and loop wraps instead
// of leading playback by a full buffer window.
type positionTracker struct {
	mu      sync.Mutex
	segs    []posSegment
	tracked int64 // frames across all segments, consumed or not
	base    int64 // position when nothing is tracked
}

// reset discards all segments and pins the position to target. Called on
// stream start, seek and stop, after the ring has been cleared.
func (t *positionTracker) reset(target int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.segs = t.segs[:0]
	t.tracked = 0
	t.base = target
}

// append records frames written to the ring starting at source frame.
// Contiguous runs collapse into one segment, so steady playback keeps the
// queue at length one.
func (t *positionTracker) append(source, frames int64) {
	if frames <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if n := len(t.segs); n > 0 {
		last := &t.segs[n-1]
		if last.source+last.frames == source {
			last.frames += frames
			t.tracked += frames
			return
		}
	}
	t.segs = append(t.segs, posSegment{source: source, frames: frames})
	t.tracked += frames
}

// position returns the source frame at the read cursor, given how many
// frames are still buffered. Fully consumed segments are pruned as a side
// effect.
func (t *positionTracker) position(buffered int64) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	consumed := t.tracked - buffered
	if consumed < 0 {
		consumed = 0
	}

	for len(t.segs) > 0 && consumed >= t.segs[0].frames {
		seg := t.segs[0]
		consumed -= seg.frames
		t.tracked -= seg.frames
		t.base = seg.source + seg.frames
		t.segs = t.segs[1:]
	}
	if len(t.segs) == 0 {
		return t.base
	}
	return t.segs[0].source + consumed
}
